// Package clipboard copies finished prompts to the system clipboard and
// optionally delivers the paste keystroke into the frontmost app.
package clipboard

import cb "github.com/atotto/clipboard"

func Read() (string, error) {
	return cb.ReadAll()
}

func Copy(text string) error {
	return cb.WriteAll(text)
}
