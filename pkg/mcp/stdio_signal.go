package mcp

import (
	"os"
	"syscall"
)

// terminateSignal is the graceful-termination signal sent before
// escalating to Kill.
func terminateSignal() os.Signal {
	return syscall.SIGTERM
}
