//go:build !windows

package main

import (
	"os"
	"syscall"
)

// shutdownSignals end long-running commands (watch, mcp-server) cleanly.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
