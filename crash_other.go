//go:build !go1.23

package main

import "os"

// debug.SetCrashOutput is only available from Go 1.23.
func setCrashOutput(*os.File) {}
