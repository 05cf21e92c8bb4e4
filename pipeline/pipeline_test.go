package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"muse/prompter"
	"muse/transcriber"
)

func waitOutcome(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pipeline outcome")
		return Outcome{}
	}
}

func TestProcessSuccess(t *testing.T) {
	fp := prompter.NewFake("a red fox in a forest, oil painting, dramatic lighting", nil)
	p := New(transcriber.NewFake("a red fox in a forest", nil), fp)

	o := waitOutcome(t, p.Process(context.Background(), make([]byte, 3200)))
	if o.Err != nil {
		t.Fatal(o.Err)
	}
	if o.Transcript != "a red fox in a forest" {
		t.Errorf("transcript = %q", o.Transcript)
	}
	if o.Prompt != "a red fox in a forest, oil painting, dramatic lighting" {
		t.Errorf("prompt = %q", o.Prompt)
	}
	if fp.LastInput != "a red fox in a forest" {
		t.Errorf("prompter saw %q, want the transcript", fp.LastInput)
	}
	if o.Transcription == nil {
		t.Error("success outcome should carry transcription detail")
	}
}

func TestProcessTranscriptionFailureShortCircuits(t *testing.T) {
	fp := prompter.NewFake("unused", nil)
	p := New(transcriber.NewFake("", errors.New("model unavailable")), fp)

	o := waitOutcome(t, p.Process(context.Background(), make([]byte, 3200)))
	if o.Err == nil {
		t.Fatal("expected transcription error")
	}
	if !strings.Contains(o.Err.Error(), "model unavailable") {
		t.Errorf("err = %v, want the service's message", o.Err)
	}
	if fp.Calls != 0 {
		t.Errorf("prompter ran %d times, want 0", fp.Calls)
	}
	if o.Prompt != "" {
		t.Errorf("prompt = %q, want empty", o.Prompt)
	}
}

func TestProcessEmptyTranscript(t *testing.T) {
	fp := prompter.NewFake("unused", nil)
	p := New(transcriber.NewFake("", nil), fp)

	o := waitOutcome(t, p.Process(context.Background(), make([]byte, 3200)))
	if !errors.Is(o.Err, ErrNoSpeech) {
		t.Errorf("err = %v, want ErrNoSpeech", o.Err)
	}
	if fp.Calls != 0 {
		t.Errorf("prompter ran %d times, want 0", fp.Calls)
	}
}

func TestProcessSynthesisFailureKeepsTranscript(t *testing.T) {
	p := New(transcriber.NewFake("a city at night", nil), prompter.NewFake("", errors.New("rate limited")))

	o := waitOutcome(t, p.Process(context.Background(), make([]byte, 3200)))
	if o.Err == nil {
		t.Fatal("expected synthesis error")
	}
	if !strings.Contains(o.Err.Error(), "rate limited") {
		t.Errorf("err = %v, want the service's message", o.Err)
	}
	if o.Transcript != "a city at night" {
		t.Errorf("transcript = %q, should survive synthesis failure", o.Transcript)
	}
}

func TestOutcomeMetricLines(t *testing.T) {
	o := Outcome{
		Transcription: &transcriber.Result{
			Metrics: &transcriber.NetworkMetrics{TTFB: 100 * time.Millisecond},
		},
		SynthMs: 840,
	}
	lines := o.MetricLines()
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "synth:      840ms") {
		t.Errorf("missing synth line: %s", joined)
	}
	if !strings.Contains(joined, "ttfb") {
		t.Errorf("missing transcription lines: %s", joined)
	}

	var failed Outcome
	if got := failed.MetricLines(); got != nil {
		t.Errorf("failed run should have no metric lines, got %v", got)
	}
}
