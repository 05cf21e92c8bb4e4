// Package recorder owns the capture device for the duration of a take
// and delivers the finished PCM buffer asynchronously.
package recorder

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"muse/audio"
	"muse/encoder"
)

// Capture is the result of one take: the complete S16LE mono buffer, or
// the error that ended it.
type Capture struct {
	PCM []byte
	Err error
}

var (
	ErrAlreadyRecording = errors.New("recording already in progress")

	// ErrNoAudio means the take stopped before the device delivered a
	// usable amount of audio (under 100ms).
	ErrNoAudio = errors.New("no audio captured")
)

const minCaptureBytes = encoder.SampleRate / 10 * 2

// Recorder turns start/stop toggles into one Capture per take. Start and
// Stop return immediately; the result lands on the take's Done channel
// exactly once, after the device has drained.
type Recorder struct {
	dev     audio.CaptureDevice
	onLevel func(rms float64)

	mu        sync.Mutex
	recording bool
	finalized bool
	buf       []byte
	done      chan Capture
}

// New wraps dev. onLevel, when non-nil, receives the RMS level of every
// chunk; it runs on the capture thread and must not block.
func New(dev audio.CaptureDevice, onLevel func(rms float64)) *Recorder {
	return &Recorder{dev: dev, onLevel: onLevel}
}

// Done returns the completion channel for the current take. Each Start
// allocates a fresh one, so callers grab it per take.
func (r *Recorder) Done() <-chan Capture {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// SwapDevice adopts a new capture device and closes the old one. Refused
// while a take is open or still draining.
func (r *Recorder) SwapDevice(dev audio.CaptureDevice) error {
	r.mu.Lock()
	if r.recording || (r.done != nil && !r.finalized) {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	old := r.dev
	r.dev = dev
	r.mu.Unlock()

	old.Close()
	return nil
}

func (r *Recorder) Start() error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	r.recording = true
	r.finalized = false
	r.buf = r.buf[:0]
	r.done = make(chan Capture, 1)
	r.mu.Unlock()

	r.dev.SetCallback(r.onData)
	if err := r.dev.Start(); err != nil {
		r.dev.ClearCallback()
		r.mu.Lock()
		r.recording = false
		r.mu.Unlock()
		return fmt.Errorf("audio device start: %w", err)
	}
	return nil
}

func (r *Recorder) onData(data []byte, frameCount uint32) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return
	}
	r.buf = append(r.buf, data...)
	r.mu.Unlock()

	if r.onLevel != nil && len(data) > 1 {
		r.onLevel(rmsLevel(data))
	}
}

// Stop ends the take and returns immediately. Draining the device blocks,
// so the finalize step runs on its own goroutine.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return
	}
	r.recording = false
	dev := r.dev
	r.mu.Unlock()

	go r.finish(dev)
}

func (r *Recorder) finish(dev audio.CaptureDevice) {
	dev.Stop()
	dev.ClearCallback()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return
	}
	r.finalized = true

	if len(r.buf) < minCaptureBytes {
		r.done <- Capture{Err: ErrNoAudio}
		return
	}
	// Ownership of the buffer moves to the receiver; the next take
	// allocates fresh.
	pcm := r.buf
	r.buf = nil
	r.done <- Capture{PCM: pcm}
}

// rmsLevel is the root mean square of an S16LE chunk, normalized to 0..1.
func rmsLevel(data []byte) float64 {
	var sumSquares float64
	for i := 0; i+1 < len(data); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(data[i:]))
		normalized := float64(sample) / 32768.0
		sumSquares += normalized * normalized
	}
	return math.Sqrt(sumSquares / float64(len(data)/2))
}
