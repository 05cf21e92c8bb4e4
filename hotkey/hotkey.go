// Package hotkey delivers the global Ctrl+Shift+Space toggle. Each press
// emits one keydown; releases and key auto-repeat are swallowed.
package hotkey

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
}
