//go:build windows

package main

import "os"

// shutdownSignals only holds os.Interrupt; Windows has no SIGTERM.
var shutdownSignals = []os.Signal{os.Interrupt}
