// Package session coordinates one image-prompt session: recording,
// processing, external hand-off, display.
package session

import (
	"context"
	"sync"

	"muse/log"
	"muse/pipeline"
	"muse/recorder"
)

// CancelledMessage is what the error phase shows when the operator
// abandons the external step.
const CancelledMessage = "Operation cancelled"

type actionKind int

const (
	actionToggle actionKind = iota + 1
	actionImage
	actionCancel
	actionAck
	actionReset
)

type action struct {
	kind  actionKind
	image []byte
}

// Recorder is the session-facing capture surface.
type Recorder interface {
	Start() error
	Stop()
	Done() <-chan recorder.Capture
}

// Processor runs one transcribe-and-synthesize pass per capture.
type Processor interface {
	Process(ctx context.Context, pcm []byte) <-chan pipeline.Outcome
}

// Handoff carries a finished prompt out to the external tool.
type Handoff interface {
	Deliver(prompt string) error
}

type noopHandoff struct{}

func (noopHandoff) Deliver(string) error { return nil }

// Notifier receives session changes on the controller goroutine.
// Implementations forward to their own context and must not block.
type Notifier interface {
	PhaseChanged(from, to Phase)
	PromptReady(outcome pipeline.Outcome, copied bool)
	Failed(message string)
	ImageProvided(image []byte)
}

type noopNotifier struct{}

func (noopNotifier) PhaseChanged(from, to Phase)                 {}
func (noopNotifier) PromptReady(o pipeline.Outcome, copied bool) {}
func (noopNotifier) Failed(message string)                       {}
func (noopNotifier) ImageProvided(image []byte)                  {}

// Session is a snapshot of the controller's state.
type Session struct {
	Phase      Phase
	Transcript string
	Prompt     string
	ErrMsg     string
	Image      []byte
	Runs       int
}

// Controller owns the session state. All mutations happen on the Run
// goroutine; the public methods only enqueue requests, and background
// completions arrive over channels selected in the same loop.
type Controller struct {
	rec     Recorder
	pipe    Processor
	handoff Handoff
	notify  Notifier

	mu   sync.RWMutex
	sess Session

	actions chan action

	// Non-nil only while the matching background context is active.
	// At most one of the two is armed at any time.
	captureDone <-chan recorder.Capture
	pipeDone    <-chan pipeline.Outcome
}

// NewController wires the collaborators. handoff and notify may be nil.
func NewController(rec Recorder, pipe Processor, handoff Handoff, notify Notifier) *Controller {
	if handoff == nil {
		handoff = noopHandoff{}
	}
	if notify == nil {
		notify = noopNotifier{}
	}
	return &Controller{
		rec:     rec,
		pipe:    pipe,
		handoff: handoff,
		notify:  notify,
		sess:    Session{Phase: PhaseIdle},
		actions: make(chan action, 8),
	}
}

// Toggle starts a take from idle or stops the active one.
func (c *Controller) Toggle() { c.actions <- action{kind: actionToggle} }

// ProvideImage hands the externally generated image back to the session.
func (c *Controller) ProvideImage(image []byte) {
	c.actions <- action{kind: actionImage, image: image}
}

// Cancel abandons the external hand-off step.
func (c *Controller) Cancel() { c.actions <- action{kind: actionCancel} }

// Acknowledge leaves the error phase.
func (c *Controller) Acknowledge() { c.actions <- action{kind: actionAck} }

// Reset ends the display phase, ready for the next take.
func (c *Controller) Reset() { c.actions <- action{kind: actionReset} }

func (c *Controller) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess.Phase
}

func (c *Controller) Snapshot() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess
}

// Run processes actions and background completions until ctx is
// cancelled. In-flight work is abandoned on shutdown, never joined.
func (c *Controller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-c.actions:
			c.handleAction(ctx, a)
		case cap := <-c.captureDone:
			c.captureDone = nil
			c.handleCapture(ctx, cap)
		case o := <-c.pipeDone:
			c.pipeDone = nil
			c.handleOutcome(o)
		}
	}
}

func (c *Controller) handleAction(ctx context.Context, a action) {
	switch a.kind {
	case actionToggle:
		c.handleToggle(ctx)
	case actionImage:
		if c.apply(EventImage, func(s *Session) { s.Image = a.image }) {
			c.notify.ImageProvided(a.image)
		}
	case actionCancel:
		if c.apply(EventCancel, func(s *Session) { s.ErrMsg = CancelledMessage }) {
			c.notify.Failed(CancelledMessage)
		}
	case actionAck:
		c.apply(EventAck, func(s *Session) {
			s.Transcript, s.Prompt, s.ErrMsg = "", "", ""
		})
	case actionReset:
		c.apply(EventReset, func(s *Session) {
			s.Transcript, s.Prompt = "", ""
			s.Image = nil
		})
	}
}

func (c *Controller) handleToggle(ctx context.Context) {
	switch c.Phase() {
	case PhaseIdle:
		// The device starts first so the phase never claims a take
		// that has no stream behind it.
		if err := c.rec.Start(); err != nil {
			c.fail(err.Error())
			return
		}
		c.apply(EventToggle, nil)
	case PhaseRecording:
		if c.apply(EventToggle, nil) {
			c.captureDone = c.rec.Done()
			c.rec.Stop()
		}
	default:
		c.apply(EventToggle, nil) // logged no-op
	}
}

// handleCapture runs when the device has drained. A failed capture
// never reaches the pipeline.
func (c *Controller) handleCapture(ctx context.Context, cap recorder.Capture) {
	if cap.Err != nil {
		c.fail(cap.Err.Error())
		return
	}
	c.pipeDone = c.pipe.Process(ctx, cap.PCM)
}

func (c *Controller) handleOutcome(o pipeline.Outcome) {
	if o.Err != nil {
		c.mu.Lock()
		c.sess.Transcript = o.Transcript
		c.mu.Unlock()
		c.fail(o.Err.Error())
		return
	}

	// Delivery failure is not fatal: the prompt is still on screen for
	// a manual copy, so the session moves on with copied=false.
	copied := true
	if err := c.handoff.Deliver(o.Prompt); err != nil {
		log.Errorf("Hand-off delivery failed: %v", err)
		copied = false
	}

	if c.apply(EventPipelineOK, func(s *Session) {
		s.Transcript = o.Transcript
		s.Prompt = o.Prompt
		s.Runs++
	}) {
		c.notify.PromptReady(o, copied)
	}
}

func (c *Controller) fail(msg string) {
	c.apply(EventFail, func(s *Session) { s.ErrMsg = msg })
	c.notify.Failed(msg)
}

// apply runs one transition and, when it is valid, the state mutation
// under the same lock. Invalid events only produce a log line.
func (c *Controller) apply(ev Event, mutate func(*Session)) bool {
	c.mu.Lock()
	from := c.sess.Phase
	next, err := Transition(from, ev)
	if err != nil {
		c.mu.Unlock()
		log.Infof("Ignoring %s while %s", ev, from)
		return false
	}
	c.sess.Phase = next
	if mutate != nil {
		mutate(&c.sess)
	}
	c.mu.Unlock()

	log.Phase(string(from), string(next))
	c.notify.PhaseChanged(from, next)
	return true
}
