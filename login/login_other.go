//go:build !darwin

package login

import "errors"

func Enabled() bool { return false }

func Enable() error { return errors.New("start-on-login is only supported on macOS") }

func Disable() error { return nil }
