//go:build windows

package mcp

import (
	"os"
	"os/signal"
)

// notifySignals only registers os.Interrupt; Windows has no SIGTERM.
func notifySignals(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt)
}
