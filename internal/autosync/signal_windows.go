//go:build windows

package autosync

import "os"

var focusSignals []os.Signal
