// Package transcriber turns a raw PCM capture into text via a hosted
// speech API. Each provider encodes the capture to FLAC, uploads it in
// one shot, and reports detailed network timings for the TUI.
package transcriber

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"muse/encoder"
)

type NetworkMetrics struct {
	DNS        time.Duration
	ConnWait   time.Duration
	TCP        time.Duration
	TLS        time.Duration
	ReqHeaders time.Duration
	ReqBody    time.Duration
	TTFB       time.Duration
	Download   time.Duration
	Total      time.Duration
	ConnReused bool
}

func (m *NetworkMetrics) Sum() time.Duration {
	return m.ConnWait + m.DNS + m.TCP + m.TLS + m.ReqHeaders + m.ReqBody + m.TTFB + m.Download
}

func firstNonEmpty(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return "?"
}

// UploadStats describes the FLAC payload that went over the wire.
type UploadStats struct {
	AudioLengthS     float64
	RawSizeKB        float64
	CompressedSizeKB float64
	CompressionPct   float64
	EncodeTimeMs     float64
}

type Result struct {
	Text         string
	Metrics      *NetworkMetrics
	RateLimit    string // "remaining/limit" from response headers
	Confidence   float64
	NoSpeechProb float64
	Duration     float64
	Upload       UploadStats
}

// MetricLines renders the run's timing breakdown for display.
func (r *Result) MetricLines() []string {
	m := r.Metrics
	if m == nil {
		return nil
	}

	reusedStatus := ""
	if m.ConnReused {
		reusedStatus = " (reused)"
	}

	lines := []string{
		fmt.Sprintf("audio:      %.1fs | %.1f KB → %.1f KB (%.0f%% smaller)",
			r.Upload.AudioLengthS, r.Upload.RawSizeKB, r.Upload.CompressedSizeKB, r.Upload.CompressionPct),
		fmt.Sprintf("encode:     %.0fms", r.Upload.EncodeTimeMs),
		fmt.Sprintf("conn_wait:  %dms%s", m.ConnWait.Milliseconds(), reusedStatus),
		fmt.Sprintf("dns:        %dms", m.DNS.Milliseconds()),
		fmt.Sprintf("tcp:        %dms", m.TCP.Milliseconds()),
		fmt.Sprintf("tls:        %dms", m.TLS.Milliseconds()),
		fmt.Sprintf("req_head:   %dms", m.ReqHeaders.Milliseconds()),
		fmt.Sprintf("req_body:   %dms", m.ReqBody.Milliseconds()),
		fmt.Sprintf("ttfb:       %dms", m.TTFB.Milliseconds()),
		fmt.Sprintf("download:   %dms", m.Download.Milliseconds()),
		fmt.Sprintf("total:      %dms", m.Sum().Milliseconds()),
	}
	if r.Duration > 0 {
		lines = append(lines, fmt.Sprintf("api_dur:    %.2fs", r.Duration))
	}
	if r.Confidence > 0 {
		lines = append(lines, fmt.Sprintf("confidence: %.4f", r.Confidence))
	}
	if r.NoSpeechProb > 0 {
		lines = append(lines, fmt.Sprintf("no_speech:  %.2f", r.NoSpeechProb))
	}
	return lines
}

type Transcriber interface {
	Name() string
	SetLanguage(lang string)
	GetLanguage() string
	Transcribe(ctx context.Context, pcm []byte) (*Result, error)
}

type baseTranscriber struct {
	client *TracedClient
	apiURL string
	lang   string
}

func (b *baseTranscriber) SetLanguage(lang string) { b.lang = lang }

func (b *baseTranscriber) GetLanguage() string { return b.lang }

// Warm opens a connection to the API host so the TLS handshake overlaps
// with speech instead of delaying the upload.
func (b *baseTranscriber) Warm() { b.client.Warm() }

// encodeUpload compresses a capture to FLAC and fills in the payload
// stats shared by every provider.
func encodeUpload(pcm []byte) ([]byte, UploadStats, error) {
	start := time.Now()
	data, err := encoder.EncodePCM(pcm)
	if err != nil {
		return nil, UploadStats{}, fmt.Errorf("flac encode: %w", err)
	}

	stats := UploadStats{
		AudioLengthS:     encoder.DurationSeconds(pcm),
		RawSizeKB:        float64(len(pcm)) / 1024,
		CompressedSizeKB: float64(len(data)) / 1024,
		EncodeTimeMs:     float64(time.Since(start).Milliseconds()),
	}
	if len(pcm) > 0 {
		stats.CompressionPct = (1.0 - float64(len(data))/float64(len(pcm))) * 100
	}
	return data, stats, nil
}

// New picks a provider from the environment: GROQ_API_KEY first, then
// OPENAI_API_KEY, then DEEPGRAM_API_KEY.
func New() (Transcriber, error) {
	if k := os.Getenv("GROQ_API_KEY"); k != "" {
		return NewGroq(k), nil
	}
	if k := os.Getenv("OPENAI_API_KEY"); k != "" {
		return NewOpenAI(k), nil
	}
	if k := os.Getenv("DEEPGRAM_API_KEY"); k != "" {
		return NewDeepgram(k), nil
	}
	return nil, fmt.Errorf("set GROQ_API_KEY, OPENAI_API_KEY, or DEEPGRAM_API_KEY environment variable")
}
