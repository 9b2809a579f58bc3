// Package lockfile guards the sync daemon with an exclusive file lock next
// to the database. The lock file also records who holds it, so other
// commands can find the running daemon.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrLockBusy is returned when another process holds the lock.
var ErrLockBusy = errors.New("lock is held by another process")

// LockInfo is written into the lock file by its holder.
type LockInfo struct {
	PID       int       `json:"pid"`
	Database  string    `json:"database"`
	Version   string    `json:"version"`
	StartedAt time.Time `json:"started_at"`
}

// PathFor returns the daemon lock path for a database file.
func PathFor(dbPath string) string {
	return dbPath + ".daemon.lock"
}

// Lock is a held exclusive lock.
type Lock struct {
	f    *os.File
	path string
}

// Acquire takes the exclusive lock at path without waiting and records
// info in it. It returns ErrLockBusy when the lock is held elsewhere.
func Acquire(path string, info LockInfo) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600) // #nosec G304 - path derived from the db path
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := flockExclusive(f); err != nil {
		_ = f.Close()
		if errors.Is(err, ErrLockBusy) {
			return nil, ErrLockBusy
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	if info.PID == 0 {
		info.PID = os.Getpid()
	}
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}
	data, err := json.Marshal(info)
	if err == nil {
		if err = f.Truncate(0); err == nil {
			_, err = f.WriteAt(data, 0)
		}
	}
	if err != nil {
		_ = flockUnlock(f)
		_ = f.Close()
		return nil, fmt.Errorf("write lock info: %w", err)
	}
	return &Lock{f: f, path: path}, nil
}

// Release drops the lock and removes the file.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	// Remove while still holding the lock so no one reads a stale holder.
	_ = os.Remove(l.path)
	err := flockUnlock(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}

// ReadLockInfo reads the holder recorded at path. A file holding only a
// PID is accepted too.
func ReadLockInfo(path string) (*LockInfo, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path derived from the db path
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err == nil {
		return &info, nil
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid lock file format: %w", err)
	}
	return &LockInfo{PID: pid}, nil
}

// Holder reports the live process holding the lock at path, or nil when
// nobody does. A leftover file from a dead process counts as free.
func Holder(path string) (*LockInfo, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0) // #nosec G304 - path derived from the db path
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	err = flockShared(f)
	if err == nil {
		_ = flockUnlock(f)
		return nil, nil
	}
	if !errors.Is(err, ErrLockBusy) {
		return nil, err
	}

	info, err := ReadLockInfo(path)
	if err != nil {
		// Held but not written yet.
		return &LockInfo{}, nil
	}
	if info.PID > 0 && !isProcessRunning(info.PID) {
		return nil, nil
	}
	return info, nil
}
