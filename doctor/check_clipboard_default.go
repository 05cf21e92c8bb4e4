//go:build linux && !nativeclipboard

package doctor

import (
	"fmt"

	"muse/clipboard"
)

// preflightClipboard opens the uinput device paste needs before the
// interactive test wastes the operator's time on a countdown.
func preflightClipboard() bool {
	if err := clipboard.Init(); err != nil {
		fmt.Printf("  FAIL: uinput init: %v\n", err)
		fmt.Println("  Fix with: sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput")
		return false
	}

	fmt.Println("  uinput device initialized")
	return true
}
