//go:build windows

package clipboard

import "errors"

func Init() error { return nil }

func Paste() error {
	return errors.New("paste keystroke not supported on windows")
}

func Verify() (string, error) {
	return "", errors.New("paste keystroke not supported on windows")
}
