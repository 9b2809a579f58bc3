//go:build unix

package main

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// signalDaemon asks the daemon with pid to run a cycle now.
func signalDaemon(pid int) error {
	return unix.Kill(pid, unix.SIGUSR1)
}

// notifyFocus calls focus on every SIGUSR1 until the returned stop is called.
func notifyFocus(focus func()) (stop func()) {
	ch := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(ch, unix.SIGUSR1)
	go func() {
		for {
			select {
			case <-ch:
				focus()
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
