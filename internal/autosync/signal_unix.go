//go:build !windows

package autosync

import (
	"os"
	"syscall"
)

// focusSignals asks for an immediate cycle, e.g. `kill -USR1 <pid>` from an
// editor hook when the terminal regains focus.
var focusSignals = []os.Signal{syscall.SIGUSR1}
