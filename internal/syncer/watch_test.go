package syncer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchAsksOnceAfterBurst(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "tasks.db")
	h := newHarness(t, WithWatch(dbPath, 40*time.Millisecond))

	ctx, cancel := context.WithCancel(h.ctx)
	done := make(chan error, 1)
	go func() { done <- h.coord.watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond) // watcher setup

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(dbPath+"-wal", []byte{byte(i)}, 0o600))
		time.Sleep(5 * time.Millisecond)
	}
	// Files that are not the database are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	select {
	case got := <-h.coord.triggers:
		assert.Equal(t, TriggerLocalChange, got)
	case <-time.After(2 * time.Second):
		t.Fatal("no cycle requested after writes settled")
	}

	select {
	case got := <-h.coord.triggers:
		t.Fatalf("burst produced a second trigger: %s", got)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatchStaysQuietWithoutWrites(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, WithWatch(filepath.Join(dir, "tasks.db"), 20*time.Millisecond))

	ctx, cancel := context.WithTimeout(h.ctx, 150*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, h.coord.watch(ctx), context.DeadlineExceeded)
	assert.Empty(t, h.coord.triggers)
}

func TestHasOutboundWork(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.coord.hasOutboundWork(h.ctx), "empty store")

	h.add(t, "Write it down", 0)
	assert.True(t, h.coord.hasOutboundWork(h.ctx), "queued create is ready")

	require.NoError(t, h.coord.Sync(h.ctx, TriggerManual).Err())
	assert.False(t, h.coord.hasOutboundWork(h.ctx), "our own cycle leaves nothing to send")
}
