package prompter

import (
	"context"
	"fmt"
	"time"
)

// FakePrompter returns a canned prompt (or error) without any network.
// Calls and LastInput let tests assert whether synthesis ran at all.
type FakePrompter struct {
	prompt    string
	err       error
	Delay     time.Duration
	Calls     int
	LastInput string
}

func NewFake(prompt string, err error) *FakePrompter {
	return &FakePrompter{prompt: prompt, err: err}
}

func (f *FakePrompter) Name() string { return "fake" }

func (f *FakePrompter) Synthesize(ctx context.Context, spokenText string) (string, error) {
	f.Calls++
	f.LastInput = spokenText
	if f.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.Delay):
		}
	}
	if f.err != nil {
		return "", fmt.Errorf("fake prompter error: %w", f.err)
	}
	return f.prompt, nil
}
