package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/prioritylab/prio/internal/outbox"
	"github.com/prioritylab/prio/internal/remote"
	"github.com/prioritylab/prio/internal/storage"
)

// FatalError writes an error message to stderr and exits with code 1.
// Use this for fatal errors that prevent the command from completing.
// The store is closed first so pending writes reach disk.
func FatalError(format string, args ...interface{}) {
	closeStore()
	if jsonOutput {
		outputJSONError(fmt.Errorf(format, args...))
	}
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// FatalErrorWithHint writes an error message with a hint to stderr and exits.
// Use this when you can provide an actionable suggestion to fix the error.
func FatalErrorWithHint(message, hint string) {
	closeStore()
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
	fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
	os.Exit(1)
}

// WarnError writes a warning message to stderr and returns.
// Use this for optional operations that enhance functionality but aren't required.
func WarnError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}

// errorCode classifies err for JSON consumers.
func errorCode(err error) string {
	var retry *outbox.RetryExhaustedError
	switch {
	case errors.Is(err, storage.ErrValidation):
		return "validation"
	case errors.Is(err, storage.ErrNotFound):
		return "not_found"
	case errors.As(err, &retry):
		return "retry_exhausted"
	case remote.IsTransport(err):
		return "remote"
	}
	var se *storage.StorageError
	if errors.As(err, &se) {
		return "storage"
	}
	return ""
}

// fail reports err through FatalError, adding hints for the error kinds a
// user can act on.
func fail(err error) {
	if jsonOutput {
		closeStore()
		outputJSONError(err)
	}
	switch {
	case remote.IsNotFound(err):
		FatalErrorWithHint(err.Error(), "the task was deleted on the server; run `prio sync` to refresh")
	case errors.Is(err, remote.ErrNotConfigured):
		FatalErrorWithHint(err.Error(), "run `prio config set remote.url https://...`")
	case errors.Is(err, storage.ErrClosed):
		FatalErrorWithHint(err.Error(), "the database was closed; rerun the command")
	}
	FatalError("%v", err)
}
