// Package pipeline chains transcription and prompt synthesis for one
// capture at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"muse/prompter"
	"muse/transcriber"
)

// ErrNoSpeech means transcription succeeded but heard nothing usable.
var ErrNoSpeech = errors.New("no speech detected")

// Outcome is the result of one run. On failure Err carries the failing
// service's message untouched; Transcript is set when transcription got
// that far.
type Outcome struct {
	Transcript string
	Prompt     string
	Err        error

	// Transcription holds the upload and timing detail for display;
	// nil when transcription itself failed.
	Transcription *transcriber.Result
	SynthMs       float64
}

// MetricLines renders the whole run's timing breakdown.
func (o *Outcome) MetricLines() []string {
	var lines []string
	if o.Transcription != nil {
		lines = o.Transcription.MetricLines()
	}
	if o.SynthMs > 0 {
		lines = append(lines, fmt.Sprintf("synth:      %.0fms", o.SynthMs))
	}
	return lines
}

type Pipeline struct {
	mu          sync.Mutex
	transcriber transcriber.Transcriber
	prompter    prompter.Prompter
}

func New(t transcriber.Transcriber, p prompter.Prompter) *Pipeline {
	return &Pipeline{transcriber: t, prompter: p}
}

// SetTranscriber swaps the transcription backend. Takes effect on the
// next run.
func (p *Pipeline) SetTranscriber(t transcriber.Transcriber) {
	p.mu.Lock()
	p.transcriber = t
	p.mu.Unlock()
}

// SetPrompter swaps the synthesis backend. Takes effect on the next run.
func (p *Pipeline) SetPrompter(pr prompter.Prompter) {
	p.mu.Lock()
	p.prompter = pr
	p.mu.Unlock()
}

func (p *Pipeline) backends() (transcriber.Transcriber, prompter.Prompter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transcriber, p.prompter
}

// Process runs transcribe-then-synthesize in the background and delivers
// exactly one Outcome on the returned channel. There are no retries, and
// the controller keeps at most one run outstanding.
func (p *Pipeline) Process(ctx context.Context, pcm []byte) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		out <- p.run(ctx, pcm)
	}()
	return out
}

func (p *Pipeline) run(ctx context.Context, pcm []byte) Outcome {
	tr, pr := p.backends()

	res, err := tr.Transcribe(ctx, pcm)
	if err != nil {
		return Outcome{Err: err}
	}
	if res.Text == "" {
		return Outcome{Transcription: res, Err: ErrNoSpeech}
	}

	start := time.Now()
	prompt, err := pr.Synthesize(ctx, res.Text)
	if err != nil {
		return Outcome{Transcript: res.Text, Transcription: res, Err: err}
	}

	return Outcome{
		Transcript:    res.Text,
		Prompt:        prompt,
		Transcription: res,
		SynthMs:       float64(time.Since(start).Milliseconds()),
	}
}
