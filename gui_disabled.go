//go:build !gui

package main

import (
	"muse/audio"
	"muse/session"
)

// Stubs for non-GUI builds (these are never used since guiMode is false)
var guiAudioCtx audio.Context
var guiCaptureDevice audio.CaptureDevice

func initGUI() {
	panic("muse: built without GUI support (rebuild with -tags gui)")
}

func newGUISink() EventSink { return tuiSink{} }

func wireGUI(ctrl *session.Controller) {}
