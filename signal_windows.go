//go:build windows

package main

func setupReloadSignal(rebuild func(string)) {
	// Windows doesn't support SIGUSR1, so we skip signal-based rebuilds
}
