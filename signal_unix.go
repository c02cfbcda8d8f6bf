//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// setupReloadSignal rebuilds on SIGUSR1
func setupReloadSignal(rebuild func(string)) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1)
	go func() {
		for range sigChan {
			rebuild("Manual rebuild triggered (SIGUSR1)")
		}
	}()
}
