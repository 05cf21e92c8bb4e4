// Package handoff carries a finished prompt out to the operator's
// image tool. The tool itself stays human-operated: we put the full
// command on the clipboard and the operator pastes it into Discord.
package handoff

import (
	"fmt"
	"sync"

	"muse/clipboard"
	"muse/log"
)

const commandPrefix = "/imagine "

// Command is the full slash command for a prompt, ready to send.
func Command(prompt string) string {
	return commandPrefix + prompt
}

// Instructions is the operator checklist shown once a prompt is ready.
// Surfaces append their own step for bringing the image back.
func Instructions() []string {
	return []string{
		"1. Switch to Discord and open the MidJourney channel",
		"2. Paste the /imagine command and send it",
		"3. Wait for the render and save the image you like",
	}
}

// Deliverer copies prompts to the clipboard, optionally following up
// with a synthetic paste keystroke.
type Deliverer struct {
	mu        sync.Mutex
	autoPaste bool
	copyText  func(string) error
	paste     func() error
}

func New(autoPaste bool) *Deliverer {
	return &Deliverer{
		autoPaste: autoPaste,
		copyText:  clipboard.Copy,
		paste:     clipboard.Paste,
	}
}

// SetAutoPaste flips the paste-after-copy behavior. Safe to call from
// the tray menu while a session is running.
func (d *Deliverer) SetAutoPaste(on bool) {
	d.mu.Lock()
	d.autoPaste = on
	d.mu.Unlock()
}

// Deliver puts the /imagine command on the clipboard. A paste failure
// is logged but not fatal: the copy already succeeded, so the operator
// can paste by hand.
func (d *Deliverer) Deliver(prompt string) error {
	d.mu.Lock()
	autoPaste := d.autoPaste
	d.mu.Unlock()

	cmd := Command(prompt)
	if err := d.copyText(cmd); err != nil {
		return fmt.Errorf("clipboard copy: %w", err)
	}
	if autoPaste {
		if err := d.paste(); err != nil {
			log.Errorf("Auto-paste failed: %v", err)
		}
	}
	log.HandoffDelivered(len(cmd), autoPaste)
	return nil
}
