package utils

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// replaceRetries bounds how long ReplaceFile waits for a locked target:
// 100ms, 200ms, 400ms.
const replaceRetries = 3

// ReplaceFile renames src over dst. Windows refuses the rename while another
// process holds dst open, so there the rename is retried on a short
// exponential schedule. Elsewhere the first failure is final.
func ReplaceFile(src, dst string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0

	var retries uint64
	if runtime.GOOS == "windows" {
		retries = replaceRetries
	}
	op := func() error { return os.Rename(src, dst) }
	if err := backoff.Retry(op, backoff.WithMaxRetries(b, retries)); err != nil {
		return fmt.Errorf("replace %s: %w", dst, err)
	}
	return nil
}
