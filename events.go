package main

import "muse/session"

// EventSink abstracts the display layer so both the Bubble Tea TUI
// and the Fyne GUI can receive the same session events.
type EventSink interface {
	PhaseChanged(from, to session.Phase)
	RecordingTick(duration float64)
	AudioLevel(level float64)
	PromptReady(prompt, transcript string, metrics []string, copied bool)
	SessionFailed(message string)
	ImageShown(image []byte, width, height int)
	ModeLine(text string)
	DeviceLine(text string)
	RateLimit(text string)
}
