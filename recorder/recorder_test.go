package recorder

import (
	"errors"
	"sync"
	"testing"
	"time"

	"muse/audio"
)

// stubDevice stands in for a capture device; tests push PCM through it
// with feed.
type stubDevice struct {
	mu       sync.Mutex
	cb       audio.DataCallback
	startErr error
	starts   int
	stops    int
	closes   int
}

func (d *stubDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.starts++
	return d.startErr
}

func (d *stubDevice) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
}

func (d *stubDevice) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
}

func (d *stubDevice) SetCallback(cb audio.DataCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cb = cb
}

func (d *stubDevice) ClearCallback() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cb = nil
}

func (d *stubDevice) DeviceName() string { return "stub" }

func (d *stubDevice) feed(data []byte) {
	d.mu.Lock()
	cb := d.cb
	d.mu.Unlock()
	if cb != nil {
		cb(data, uint32(len(data)/2))
	}
}

// makePCM builds n bytes of nonzero S16LE samples.
func makePCM(n int) []byte {
	data := make([]byte, n)
	for i := 0; i+1 < n; i += 2 {
		data[i] = byte(i)
		data[i+1] = 0x10
	}
	return data
}

func waitCapture(t *testing.T, ch <-chan Capture) Capture {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for capture")
		return Capture{}
	}
}

func TestStartStopDeliversCapture(t *testing.T) {
	dev := &stubDevice{}
	rec := New(dev, nil)

	if err := rec.Start(); err != nil {
		t.Fatal(err)
	}
	if !rec.Recording() {
		t.Fatal("should be recording after Start")
	}

	dev.feed(makePCM(3200))
	dev.feed(makePCM(3200))
	done := rec.Done()
	rec.Stop()

	c := waitCapture(t, done)
	if c.Err != nil {
		t.Fatal(c.Err)
	}
	if len(c.PCM) != 6400 {
		t.Errorf("capture length = %d, want 6400", len(c.PCM))
	}
	if rec.Recording() {
		t.Error("should not be recording after Stop")
	}
}

func TestStopWithTooLittleAudio(t *testing.T) {
	dev := &stubDevice{}
	rec := New(dev, nil)

	if err := rec.Start(); err != nil {
		t.Fatal(err)
	}
	dev.feed(makePCM(160))
	done := rec.Done()
	rec.Stop()

	c := waitCapture(t, done)
	if !errors.Is(c.Err, ErrNoAudio) {
		t.Errorf("err = %v, want ErrNoAudio", c.Err)
	}
}

func TestStopWithNoAudioAtAll(t *testing.T) {
	dev := &stubDevice{}
	rec := New(dev, nil)

	if err := rec.Start(); err != nil {
		t.Fatal(err)
	}
	done := rec.Done()
	rec.Stop()

	c := waitCapture(t, done)
	if !errors.Is(c.Err, ErrNoAudio) {
		t.Errorf("err = %v, want ErrNoAudio", c.Err)
	}
}

func TestDoubleStart(t *testing.T) {
	dev := &stubDevice{}
	rec := New(dev, nil)

	if err := rec.Start(); err != nil {
		t.Fatal(err)
	}
	if err := rec.Start(); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("err = %v, want ErrAlreadyRecording", err)
	}
}

func TestStartDeviceError(t *testing.T) {
	dev := &stubDevice{startErr: errors.New("device busy")}
	rec := New(dev, nil)

	if err := rec.Start(); err == nil {
		t.Fatal("expected device error")
	}
	if rec.Recording() {
		t.Error("failed Start must not leave recorder recording")
	}
	dev.mu.Lock()
	cb := dev.cb
	dev.mu.Unlock()
	if cb != nil {
		t.Error("failed Start must clear the device callback")
	}
}

func TestStopWhileIdleIsNoop(t *testing.T) {
	dev := &stubDevice{}
	rec := New(dev, nil)
	rec.Stop()

	dev.mu.Lock()
	stops := dev.stops
	dev.mu.Unlock()
	if stops != 0 {
		t.Error("Stop while idle must not touch the device")
	}
}

func TestSecondTakeStartsFresh(t *testing.T) {
	dev := &stubDevice{}
	rec := New(dev, nil)

	if err := rec.Start(); err != nil {
		t.Fatal(err)
	}
	dev.feed(makePCM(4000))
	first := rec.Done()
	rec.Stop()
	waitCapture(t, first)

	if err := rec.Start(); err != nil {
		t.Fatal(err)
	}
	second := rec.Done()
	if second == first {
		t.Fatal("each take needs its own completion channel")
	}
	dev.feed(makePCM(3200))
	rec.Stop()

	c := waitCapture(t, second)
	if c.Err != nil {
		t.Fatal(c.Err)
	}
	if len(c.PCM) != 3200 {
		t.Errorf("second capture length = %d, want 3200 (no leftovers)", len(c.PCM))
	}
}

func TestDataAfterStopIgnored(t *testing.T) {
	dev := &stubDevice{}
	rec := New(dev, nil)

	if err := rec.Start(); err != nil {
		t.Fatal(err)
	}
	dev.feed(makePCM(3200))
	done := rec.Done()
	rec.Stop()
	dev.feed(makePCM(3200))

	c := waitCapture(t, done)
	if c.Err != nil {
		t.Fatal(c.Err)
	}
	if len(c.PCM) != 3200 {
		t.Errorf("capture length = %d, want 3200", len(c.PCM))
	}
}

func TestLevelCallback(t *testing.T) {
	var mu sync.Mutex
	var levels []float64
	dev := &stubDevice{}
	rec := New(dev, func(rms float64) {
		mu.Lock()
		levels = append(levels, rms)
		mu.Unlock()
	})

	if err := rec.Start(); err != nil {
		t.Fatal(err)
	}
	dev.feed(makePCM(3200))

	mu.Lock()
	defer mu.Unlock()
	if len(levels) != 1 {
		t.Fatalf("got %d level callbacks, want 1", len(levels))
	}
	if levels[0] <= 0 || levels[0] > 1 {
		t.Errorf("rms = %v, want within (0, 1]", levels[0])
	}
}

func TestSwapDeviceWhileIdle(t *testing.T) {
	oldDev := &stubDevice{}
	newDev := &stubDevice{}
	rec := New(oldDev, nil)

	if err := rec.SwapDevice(newDev); err != nil {
		t.Fatal(err)
	}
	oldDev.mu.Lock()
	closes := oldDev.closes
	oldDev.mu.Unlock()
	if closes != 1 {
		t.Errorf("old device closes = %d, want 1", closes)
	}

	if err := rec.Start(); err != nil {
		t.Fatal(err)
	}
	newDev.mu.Lock()
	starts := newDev.starts
	newDev.mu.Unlock()
	if starts != 1 {
		t.Errorf("new device starts = %d, want 1", starts)
	}
	oldDev.mu.Lock()
	oldStarts := oldDev.starts
	oldDev.mu.Unlock()
	if oldStarts != 0 {
		t.Error("Start after swap must use the new device")
	}
}

func TestSwapDeviceWhileRecording(t *testing.T) {
	oldDev := &stubDevice{}
	newDev := &stubDevice{}
	rec := New(oldDev, nil)

	if err := rec.Start(); err != nil {
		t.Fatal(err)
	}
	if err := rec.SwapDevice(newDev); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("err = %v, want ErrAlreadyRecording", err)
	}
	oldDev.mu.Lock()
	closes := oldDev.closes
	oldDev.mu.Unlock()
	if closes != 0 {
		t.Error("refused swap must not close the active device")
	}

	oldDev.feed(makePCM(3200))
	done := rec.Done()
	rec.Stop()
	c := waitCapture(t, done)
	if c.Err != nil {
		t.Fatal(c.Err)
	}
	if len(c.PCM) != 3200 {
		t.Errorf("capture length = %d, want 3200", len(c.PCM))
	}
}

func TestSwapDeviceAfterTake(t *testing.T) {
	oldDev := &stubDevice{}
	newDev := &stubDevice{}
	rec := New(oldDev, nil)

	if err := rec.Start(); err != nil {
		t.Fatal(err)
	}
	oldDev.feed(makePCM(3200))
	done := rec.Done()
	rec.Stop()
	waitCapture(t, done)

	if err := rec.SwapDevice(newDev); err != nil {
		t.Fatal(err)
	}
	if err := rec.Start(); err != nil {
		t.Fatal(err)
	}
	newDev.mu.Lock()
	starts := newDev.starts
	newDev.mu.Unlock()
	if starts != 1 {
		t.Errorf("new device starts = %d, want 1", starts)
	}
}

func TestRMSLevel(t *testing.T) {
	silent := make([]byte, 320)
	if got := rmsLevel(silent); got != 0 {
		t.Errorf("silent rms = %v, want 0", got)
	}

	loud := make([]byte, 320)
	for i := 0; i+1 < len(loud); i += 2 {
		loud[i] = 0xFF
		loud[i+1] = 0x7F // +32767 everywhere
	}
	if got := rmsLevel(loud); got < 0.99 {
		t.Errorf("full-scale rms = %v, want ~1", got)
	}
}
