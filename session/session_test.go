package session

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"muse/pipeline"
	"muse/prompter"
	"muse/recorder"
	"muse/transcriber"
)

type fakeRecorder struct {
	mu       sync.Mutex
	startErr error
	starts   int
	stops    int
	capture  recorder.Capture
	done     chan recorder.Capture
}

func (r *fakeRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.starts++
	r.done = make(chan recorder.Capture, 1)
	return nil
}

func (r *fakeRecorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	r.done <- r.capture
}

func (r *fakeRecorder) Done() <-chan recorder.Capture {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// fakeProcessor responds instantly with a canned outcome.
type fakeProcessor struct {
	mu      sync.Mutex
	calls   int
	outcome pipeline.Outcome
}

func (p *fakeProcessor) Process(ctx context.Context, pcm []byte) <-chan pipeline.Outcome {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	out := make(chan pipeline.Outcome, 1)
	out <- p.outcome
	return out
}

func (p *fakeProcessor) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// manualProcessor holds the run open until the test releases it.
type manualProcessor struct {
	ch chan pipeline.Outcome
}

func (p *manualProcessor) Process(ctx context.Context, pcm []byte) <-chan pipeline.Outcome {
	return p.ch
}

type fakeHandoff struct {
	mu      sync.Mutex
	err     error
	prompts []string
}

func (h *fakeHandoff) Deliver(prompt string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.prompts = append(h.prompts, prompt)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	copied []bool
	fails  []string
	images [][]byte
}

func (n *recordingNotifier) PhaseChanged(from, to Phase) {}

func (n *recordingNotifier) PromptReady(o pipeline.Outcome, copied bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.copied = append(n.copied, copied)
}

func (n *recordingNotifier) Failed(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fails = append(n.fails, message)
}

func (n *recordingNotifier) ImageProvided(image []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.images = append(n.images, image)
}

func startController(t *testing.T, rec Recorder, pipe Processor, h Handoff, n Notifier) *Controller {
	t.Helper()
	c := NewController(rec, pipe, h, n)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.Run(ctx)
	return c
}

func waitForPhase(t *testing.T, c *Controller, want Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Phase() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for phase %s (still %s)", want, c.Phase())
}

func validCapture() recorder.Capture {
	return recorder.Capture{PCM: make([]byte, 6400)}
}

func TestFullSessionCycle(t *testing.T) {
	rec := &fakeRecorder{capture: validCapture()}
	pipe := pipeline.New(
		transcriber.NewFake("a red fox in a forest", nil),
		prompter.NewFake("a red fox in a forest, oil painting, dramatic lighting", nil),
	)
	h := &fakeHandoff{}
	n := &recordingNotifier{}
	c := startController(t, rec, pipe, h, n)

	c.Toggle()
	waitForPhase(t, c, PhaseRecording)

	c.Toggle()
	waitForPhase(t, c, PhaseAwaiting)

	s := c.Snapshot()
	if s.Transcript != "a red fox in a forest" {
		t.Errorf("transcript = %q", s.Transcript)
	}
	if s.Prompt != "a red fox in a forest, oil painting, dramatic lighting" {
		t.Errorf("prompt = %q", s.Prompt)
	}
	if s.Runs != 1 {
		t.Errorf("runs = %d, want 1", s.Runs)
	}

	h.mu.Lock()
	delivered := append([]string(nil), h.prompts...)
	h.mu.Unlock()
	if len(delivered) != 1 || delivered[0] != s.Prompt {
		t.Errorf("handoff got %v", delivered)
	}

	img := []byte{0x89, 'P', 'N', 'G'}
	c.ProvideImage(img)
	waitForPhase(t, c, PhaseDisplaying)

	s = c.Snapshot()
	if !bytes.Equal(s.Image, img) {
		t.Errorf("stored image = %v, want exactly the provided bytes", s.Image)
	}

	c.Reset()
	waitForPhase(t, c, PhaseIdle)

	s = c.Snapshot()
	if s.Image != nil || s.Transcript != "" || s.Prompt != "" {
		t.Errorf("reset left state behind: %+v", s)
	}

	// The machine accepts the next take after a full cycle.
	c.Toggle()
	waitForPhase(t, c, PhaseRecording)
}

func TestEmptyCaptureNeverReachesPipeline(t *testing.T) {
	rec := &fakeRecorder{capture: recorder.Capture{Err: recorder.ErrNoAudio}}
	pipe := &fakeProcessor{}
	c := startController(t, rec, pipe, nil, nil)

	c.Toggle()
	waitForPhase(t, c, PhaseRecording)
	c.Toggle()
	waitForPhase(t, c, PhaseError)

	if got := pipe.callCount(); got != 0 {
		t.Errorf("pipeline ran %d times, want 0", got)
	}
	if s := c.Snapshot(); s.ErrMsg != recorder.ErrNoAudio.Error() {
		t.Errorf("error message = %q", s.ErrMsg)
	}
}

func TestDeviceStartFailure(t *testing.T) {
	rec := &fakeRecorder{startErr: errors.New("device busy")}
	n := &recordingNotifier{}
	c := startController(t, rec, &fakeProcessor{}, nil, n)

	c.Toggle()
	waitForPhase(t, c, PhaseError)

	if s := c.Snapshot(); s.ErrMsg != "device busy" {
		t.Errorf("error message = %q", s.ErrMsg)
	}

	// Error demands an acknowledge before the next take.
	c.Acknowledge()
	waitForPhase(t, c, PhaseIdle)
}

func TestTranscriptionFailureShortCircuits(t *testing.T) {
	rec := &fakeRecorder{capture: validCapture()}
	fp := prompter.NewFake("unused", nil)
	pipe := pipeline.New(transcriber.NewFake("", errors.New("model unavailable")), fp)
	h := &fakeHandoff{}
	c := startController(t, rec, pipe, h, nil)

	c.Toggle()
	waitForPhase(t, c, PhaseRecording)
	c.Toggle()
	waitForPhase(t, c, PhaseError)

	if fp.Calls != 0 {
		t.Errorf("prompter ran %d times, want 0", fp.Calls)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.prompts) != 0 {
		t.Errorf("handoff ran on a failed pipeline: %v", h.prompts)
	}
}

func TestToggleWhileProcessingIgnored(t *testing.T) {
	rec := &fakeRecorder{capture: validCapture()}
	pipe := &manualProcessor{ch: make(chan pipeline.Outcome, 1)}
	c := startController(t, rec, pipe, nil, nil)

	c.Toggle()
	waitForPhase(t, c, PhaseRecording)
	c.Toggle()
	waitForPhase(t, c, PhaseProcessing)

	c.Toggle() // must not start a second take
	time.Sleep(20 * time.Millisecond)
	if got := c.Phase(); got != PhaseProcessing {
		t.Fatalf("phase = %s, want processing", got)
	}

	rec.mu.Lock()
	starts := rec.starts
	rec.mu.Unlock()
	if starts != 1 {
		t.Errorf("device started %d times, want 1", starts)
	}

	pipe.ch <- pipeline.Outcome{Transcript: "t", Prompt: "p"}
	waitForPhase(t, c, PhaseAwaiting)
}

func TestCancelDuringAwaiting(t *testing.T) {
	rec := &fakeRecorder{capture: validCapture()}
	pipe := &fakeProcessor{outcome: pipeline.Outcome{Transcript: "t", Prompt: "p"}}
	n := &recordingNotifier{}
	c := startController(t, rec, pipe, nil, n)

	c.Toggle()
	waitForPhase(t, c, PhaseRecording)
	c.Toggle()
	waitForPhase(t, c, PhaseAwaiting)

	c.Cancel()
	waitForPhase(t, c, PhaseError)
	if s := c.Snapshot(); s.ErrMsg != CancelledMessage {
		t.Errorf("error message = %q, want %q", s.ErrMsg, CancelledMessage)
	}

	c.Acknowledge()
	waitForPhase(t, c, PhaseIdle)
	if s := c.Snapshot(); s.ErrMsg != "" || s.Prompt != "" {
		t.Errorf("acknowledge left state behind: %+v", s)
	}
}

func TestProvideImageWhileIdleIgnored(t *testing.T) {
	rec := &fakeRecorder{capture: validCapture()}
	n := &recordingNotifier{}
	c := startController(t, rec, &fakeProcessor{}, nil, n)

	c.ProvideImage([]byte{1, 2, 3})
	c.Toggle() // queued behind the image action, proves it was processed
	waitForPhase(t, c, PhaseRecording)

	if s := c.Snapshot(); s.Image != nil {
		t.Errorf("image stored while idle: %v", s.Image)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.images) != 0 {
		t.Error("notifier fired for an ignored image")
	}
}

func TestHandoffFailureStillAwaits(t *testing.T) {
	rec := &fakeRecorder{capture: validCapture()}
	pipe := &fakeProcessor{outcome: pipeline.Outcome{Transcript: "t", Prompt: "p"}}
	h := &fakeHandoff{err: errors.New("clipboard unavailable")}
	n := &recordingNotifier{}
	c := startController(t, rec, pipe, h, n)

	c.Toggle()
	waitForPhase(t, c, PhaseRecording)
	c.Toggle()
	waitForPhase(t, c, PhaseAwaiting)

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.copied) != 1 || n.copied[0] {
		t.Errorf("copied flags = %v, want one false", n.copied)
	}
}

func TestSynthesisFailureKeepsTranscript(t *testing.T) {
	rec := &fakeRecorder{capture: validCapture()}
	pipe := pipeline.New(transcriber.NewFake("a city at night", nil), prompter.NewFake("", errors.New("rate limited")))
	c := startController(t, rec, pipe, nil, nil)

	c.Toggle()
	waitForPhase(t, c, PhaseRecording)
	c.Toggle()
	waitForPhase(t, c, PhaseError)

	s := c.Snapshot()
	if s.Transcript != "a city at night" {
		t.Errorf("transcript = %q, should survive synthesis failure", s.Transcript)
	}
}
