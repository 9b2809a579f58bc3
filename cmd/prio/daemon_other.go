//go:build !unix

package main

import "errors"

func signalDaemon(pid int) error {
	return errors.New("signalling the daemon is not supported on this platform")
}

// notifyFocus is a no-op without SIGUSR1; the daemon still syncs on its timer.
func notifyFocus(focus func()) (stop func()) {
	return func() {}
}
