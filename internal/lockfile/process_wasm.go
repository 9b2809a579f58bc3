//go:build js && wasm

package lockfile

func isProcessRunning(pid int) bool { return pid > 0 }
