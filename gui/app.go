//go:build gui

package gui

import (
	"fmt"
	"io"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"

	"muse/handoff"
	"muse/session"
)

// Controller is the slice of the session the windows drive.
type Controller interface {
	ProvideImage(image []byte)
	Cancel()
	Acknowledge()
	Reset()
}

// App runs two windows: a small status window that mirrors the session,
// and a borderless fullscreen viewer for the generated image. Esc or a
// click on the viewer resets the session.
type App struct {
	fyneApp   fyne.App
	statusWin fyne.Window
	viewWin   fyne.Window
	status    *widget.Label
	view      *ArtView
	onReady   func()

	mu    sync.Mutex
	ctrl  Controller
	phase session.Phase
}

func NewApp(onReady func()) *App {
	return &App{onReady: onReady}
}

// SetController wires the session once the caller has built it.
func (a *App) SetController(c Controller) {
	a.mu.Lock()
	a.ctrl = c
	a.mu.Unlock()
}

func (a *App) controller() Controller {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ctrl
}

func (a *App) currentPhase() session.Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

func Run(a *App) error {
	a.fyneApp = app.NewWithID("io.muse.gui")
	a.fyneApp.Settings().SetTheme(&darkTheme{})

	a.status = widget.NewLabel("ready — Ctrl+Shift+Space to record")
	a.status.Wrapping = fyne.TextWrapWord
	a.statusWin = a.fyneApp.NewWindow("muse")
	a.statusWin.SetContent(a.status)
	a.statusWin.Resize(fyne.NewSize(420, 160))
	a.statusWin.SetCloseIntercept(func() { a.statusWin.Hide() })
	a.statusWin.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		if ev.Name != fyne.KeyEscape {
			return
		}
		c := a.controller()
		if c == nil {
			return
		}
		switch a.currentPhase() {
		case session.PhaseAwaiting:
			c.Cancel()
		case session.PhaseError:
			c.Acknowledge()
		}
	})
	a.statusWin.Show()

	a.view = NewArtView(func() {
		if c := a.controller(); c != nil {
			c.Reset()
		}
	})

	// Borderless window for the artwork; fullscreen when shown.
	if drv, ok := a.fyneApp.Driver().(desktop.Driver); ok {
		a.viewWin = drv.CreateSplashWindow()
	} else {
		a.viewWin = a.fyneApp.NewWindow("muse")
	}
	a.viewWin.SetContent(a.view)
	a.viewWin.SetPadded(false)
	a.viewWin.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		if ev.Name == fyne.KeyEscape {
			if c := a.controller(); c != nil {
				c.Reset()
			}
		}
	})

	go a.onReady()

	a.fyneApp.Run()
	return nil
}

func (a *App) Quit() {
	if a.fyneApp != nil {
		a.fyneApp.Quit()
	}
}

func (a *App) setStatus(text string) {
	fyne.Do(func() {
		a.status.SetText(text)
	})
}

// pickImage opens the file dialog for the saved render. Cancelling the
// dialog abandons the hand-off.
func (a *App) pickImage() {
	fyne.Do(func() {
		fd := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
			c := a.controller()
			if c == nil {
				return
			}
			if err != nil || rc == nil {
				c.Cancel()
				return
			}
			defer rc.Close()
			data, err := io.ReadAll(rc)
			if err != nil {
				c.Cancel()
				return
			}
			c.ProvideImage(data)
		}, a.statusWin)
		fd.SetFilter(storage.NewExtensionFileFilter([]string{".png", ".jpg", ".jpeg", ".gif", ".webp"}))
		fd.Show()
	})
}

func (a *App) PhaseChanged(from, to session.Phase) {
	a.mu.Lock()
	a.phase = to
	a.mu.Unlock()

	switch to {
	case session.PhaseIdle:
		a.setStatus("ready — Ctrl+Shift+Space to record")
		fyne.Do(func() { a.viewWin.Hide() })
	case session.PhaseRecording:
		a.setStatus("● REC")
	case session.PhaseProcessing:
		a.setStatus("composing prompt…")
	case session.PhaseAwaiting:
		a.pickImage()
	}
}

func (a *App) RecordingTick(duration float64) {
	if a.currentPhase() == session.PhaseRecording {
		a.setStatus(fmt.Sprintf("● REC %.1fs", duration))
	}
}

func (a *App) AudioLevel(level float64) {}

func (a *App) PromptReady(prompt, transcript string, metrics []string, copied bool) {
	text := handoff.Command(prompt)
	if copied {
		text += "\n[copied — paste into the MidJourney channel, then pick the saved image]"
	} else {
		text += "\n[copy failed — copy the command above by hand]"
	}
	a.setStatus(text)
}

func (a *App) SessionFailed(message string) {
	a.setStatus("error: " + message + " (Esc to dismiss)")
}

func (a *App) ImageShown(image []byte, width, height int) {
	fyne.Do(func() {
		if err := a.view.SetImage(image); err != nil {
			a.status.SetText("could not decode image: " + err.Error())
			return
		}
		a.viewWin.SetFullScreen(true)
		a.viewWin.Show()
	})
}

func (a *App) ModeLine(text string)   {}
func (a *App) DeviceLine(text string) {}
func (a *App) RateLimit(text string)  {}
