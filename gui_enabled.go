//go:build gui

package main

import (
	"fmt"
	"os"
	"runtime"

	"muse/audio"
	"muse/encoder"
	"muse/gui"
	"muse/session"
)

var guiApp *gui.App

// Audio context initialized on main thread for macOS Core Audio compatibility
var guiAudioCtx audio.Context
var guiCaptureDevice audio.CaptureDevice

func initGUI() {
	guiMode = true

	// Initialize audio on the main thread BEFORE Fyne starts. macOS
	// Core Audio requires main thread access for capture setup.
	var err error
	guiAudioCtx, err = audio.NewContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing audio context: %v\n", err)
		os.Exit(1)
	}
	captureConfig := audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	}
	guiCaptureDevice, err = guiAudioCtx.NewCapture(nil, captureConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing capture device: %v\n", err)
		os.Exit(1)
	}

	// Lock this goroutine to OS thread for Fyne/GLFW
	runtime.LockOSThread()

	guiApp = gui.NewApp(func() {
		run()
	})
	if err := gui.Run(guiApp); err != nil {
		guiCaptureDevice.Close()
		guiAudioCtx.Close()
		panic(err)
	}
}

func newGUISink() EventSink { return guiApp }

func wireGUI(ctrl *session.Controller) { guiApp.SetController(ctrl) }
