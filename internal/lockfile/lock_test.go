package lockfile

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireRelease(t *testing.T) {
	path := PathFor(filepath.Join(t.TempDir(), "prio.db"))

	lock, err := Acquire(path, LockInfo{Database: "prio.db", Version: "1.0.0"})
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if _, err := Acquire(path, LockInfo{}); !errors.Is(err, ErrLockBusy) {
		t.Errorf("second Acquire: expected ErrLockBusy, got %v", err)
	}

	info, err := Holder(path)
	if err != nil {
		t.Fatalf("Holder failed: %v", err)
	}
	if info == nil {
		t.Fatal("expected a holder while locked")
	}
	if info.PID != os.Getpid() {
		t.Errorf("PID mismatch: got %d, want %d", info.PID, os.Getpid())
	}
	if info.Database != "prio.db" || info.Version != "1.0.0" {
		t.Errorf("unexpected lock info: %+v", info)
	}
	if info.StartedAt.IsZero() {
		t.Error("StartedAt should be filled in")
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release should be a no-op: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("lock file should be removed on release")
	}

	again, err := Acquire(path, LockInfo{})
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	_ = again.Release()
}

func TestHolder(t *testing.T) {
	t.Run("no lock file", func(t *testing.T) {
		info, err := Holder(filepath.Join(t.TempDir(), "missing.lock"))
		if err != nil || info != nil {
			t.Errorf("expected no holder, got %+v, %v", info, err)
		}
	})

	t.Run("stale file not locked", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "daemon.lock")
		data, _ := json.Marshal(LockInfo{PID: os.Getpid(), StartedAt: time.Now()})
		if err := os.WriteFile(path, data, 0600); err != nil {
			t.Fatal(err)
		}
		info, err := Holder(path)
		if err != nil || info != nil {
			t.Errorf("unlocked file should not report a holder, got %+v, %v", info, err)
		}
	})
}

func TestReadLockInfo(t *testing.T) {
	tmpDir := t.TempDir()
	lockPath := filepath.Join(tmpDir, "daemon.lock")

	t.Run("JSON format", func(t *testing.T) {
		want := LockInfo{PID: 12345, Database: "/path/to/db", Version: "1.0.0", StartedAt: time.Now()}
		data, err := json.Marshal(want)
		if err != nil {
			t.Fatalf("failed to marshal lock info: %v", err)
		}
		if err := os.WriteFile(lockPath, data, 0600); err != nil {
			t.Fatalf("failed to write lock file: %v", err)
		}

		got, err := ReadLockInfo(lockPath)
		if err != nil {
			t.Fatalf("ReadLockInfo failed: %v", err)
		}
		if got.PID != want.PID || got.Database != want.Database {
			t.Errorf("got %+v, want %+v", got, want)
		}
	})

	t.Run("plain PID", func(t *testing.T) {
		if err := os.WriteFile(lockPath, []byte("98765\n"), 0600); err != nil {
			t.Fatalf("failed to write lock file: %v", err)
		}
		got, err := ReadLockInfo(lockPath)
		if err != nil {
			t.Fatalf("ReadLockInfo failed: %v", err)
		}
		if got.PID != 98765 {
			t.Errorf("PID mismatch: got %d, want %d", got.PID, 98765)
		}
	})

	t.Run("file not found", func(t *testing.T) {
		if _, err := ReadLockInfo(filepath.Join(tmpDir, "nonexistent")); err == nil {
			t.Error("expected error for non-existent file")
		}
	})

	t.Run("invalid format", func(t *testing.T) {
		if err := os.WriteFile(lockPath, []byte("invalid json"), 0600); err != nil {
			t.Fatalf("failed to write lock file: %v", err)
		}
		if _, err := ReadLockInfo(lockPath); err == nil {
			t.Error("expected error for invalid format")
		}
	})
}

func TestFlockFunctions(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "test.lock")
	if err := os.WriteFile(lockPath, []byte("test"), 0600); err != nil {
		t.Fatalf("failed to create lock file: %v", err)
	}

	f1, err := os.OpenFile(lockPath, os.O_RDWR, 0600)
	if err != nil {
		t.Fatalf("failed to open lock file: %v", err)
	}
	defer f1.Close()
	f2, err := os.OpenFile(lockPath, os.O_RDWR, 0600)
	if err != nil {
		t.Fatalf("failed to open second handle: %v", err)
	}
	defer f2.Close()

	if err := flockShared(f1); err != nil {
		t.Fatalf("shared lock failed: %v", err)
	}
	if err := flockShared(f2); err != nil {
		t.Errorf("two shared locks should coexist: %v", err)
	}
	_ = flockUnlock(f2)
	if err := flockExclusive(f2); !errors.Is(err, ErrLockBusy) {
		t.Errorf("exclusive over shared: expected ErrLockBusy, got %v", err)
	}
	if err := flockUnlock(f1); err != nil {
		t.Errorf("unlock failed: %v", err)
	}
	if err := flockExclusive(f2); err != nil {
		t.Errorf("exclusive after unlock failed: %v", err)
	}
	_ = flockUnlock(f2)
}

func TestIsProcessRunning(t *testing.T) {
	if !isProcessRunning(os.Getpid()) {
		t.Error("expected current process to be running")
	}
	if isProcessRunning(0) || isProcessRunning(-1) {
		t.Error("non-positive PIDs are never running")
	}
	if ppid := os.Getppid(); ppid > 0 && !isProcessRunning(ppid) {
		t.Error("expected parent process to be running")
	}
}
