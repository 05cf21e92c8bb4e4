// Package beep plays short audio cues so the operator can keep their
// eyes on Discord while toggling takes: start/end of recording, prompt
// ready, and failure.
package beep

var disabled bool

// Disable turns all cues into no-ops (headless test mode).
func Disable() { disabled = true }

const (
	sampleRate = 44100

	// Start cue: high pitch, short
	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	// End cue: medium pitch, slightly longer
	endFreq   = 900
	endVolume = 0.5
	endDecay  = 40

	// Ready cue: rising two-tone once the prompt lands on the clipboard
	readyLoFreq = 880
	readyHiFreq = 1320
	readyVolume = 0.5
	readyDecay  = 35

	// Error cue: low pitch double-beep
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30
)
