package transcriber

import (
	"context"
	"fmt"
	"time"
)

// FakeTranscriber returns a canned transcript (or error) without any
// network. Set Delay to keep the processing phase observable in tests.
type FakeTranscriber struct {
	text  string
	err   error
	lang  string
	Delay time.Duration
}

func NewFake(text string, err error) *FakeTranscriber {
	return &FakeTranscriber{text: text, err: err}
}

func (f *FakeTranscriber) Name() string            { return "fake" }
func (f *FakeTranscriber) SetLanguage(lang string) { f.lang = lang }
func (f *FakeTranscriber) GetLanguage() string     { return f.lang }

func (f *FakeTranscriber) Transcribe(ctx context.Context, pcm []byte) (*Result, error) {
	if f.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.Delay):
		}
	}
	if f.err != nil {
		return nil, fmt.Errorf("fake transcriber error: %w", f.err)
	}
	return &Result{
		Text: f.text,
		Upload: UploadStats{
			AudioLengthS: float64(len(pcm)/2) / 16000,
			RawSizeKB:    float64(len(pcm)) / 1024,
		},
	}, nil
}
