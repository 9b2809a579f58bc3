package syncer

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/prioritylab/prio/internal/outbox"
	"github.com/prioritylab/prio/internal/types"
)

// Trigger asks for a cycle. It never blocks: while a cycle is running the
// request is dropped, and requests made while idle coalesce into one.
func (c *Coordinator) Trigger(t Trigger) {
	if c.running.Load() {
		c.log.Debug("sync in flight, trigger ignored", "trigger", string(t))
		return
	}
	select {
	case c.triggers <- t:
	default:
	}
}

// Focus reports that the user came back to the application.
func (c *Coordinator) Focus() { c.Trigger(TriggerFocus) }

// Run drives cycles until ctx is cancelled: an initial cycle, the periodic
// timer, explicit triggers, reconnects seen by the network monitor and,
// when configured, writes to the database file by other processes.
func (c *Coordinator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return c.loop(ctx) })
	g.Go(func() error { return c.monitor.Run(ctx) })
	if c.watchPath != "" {
		g.Go(func() error { return c.watch(ctx) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Coordinator) loop(ctx context.Context) error {
	c.Sync(ctx, TriggerInitial)

	var tick <-chan time.Time
	if c.interval > 0 {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			c.Sync(ctx, TriggerTimer)
		case t := <-c.triggers:
			if t == TriggerLocalChange && !c.hasOutboundWork(ctx) {
				continue
			}
			c.Sync(ctx, t)
		}
	}
}

// hasOutboundWork reports whether a local change left anything to upload.
// Our own cycles write to the database too, so a write alone is not enough.
func (c *Coordinator) hasOutboundWork(ctx context.Context) bool {
	entries, err := c.queue.Drain(ctx)
	if err != nil {
		return false
	}
	if len(outbox.Ready(entries, c.now().UTC())) > 0 {
		return true
	}
	queued := make(map[string]bool, len(entries))
	for _, e := range entries {
		queued[e.TaskID] = true
	}
	pending, err := c.store.SearchTasks(ctx, types.TaskFilter{SyncStatuses: []types.SyncStatus{types.SyncPending}})
	if err != nil {
		return false
	}
	for _, t := range pending {
		if !queued[t.ID] {
			return true
		}
	}
	return false
}

// watch triggers a cycle after writes to the database file settle.
func (c *Coordinator) watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		c.log.Warn("file watcher unavailable, relying on timer", "error", err)
		<-ctx.Done()
		return ctx.Err()
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(c.watchPath)
	if err := watcher.Add(dir); err != nil {
		c.log.Warn("cannot watch database directory, relying on timer", "dir", dir, "error", err)
		<-ctx.Done()
		return ctx.Err()
	}

	// Writes arrive in bursts. A cycle is asked for once the file has been
	// quiet for c.debounce; the loop then checks there is work to upload.
	settle := time.NewTimer(c.debounce)
	settle.Stop()
	defer settle.Stop()

	base := filepath.Base(c.watchPath)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-settle.C:
			c.log.Debug("database changed on disk")
			c.Trigger(TriggerLocalChange)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// The WAL file takes most writes.
			if event.Has(fsnotify.Write) && strings.HasPrefix(filepath.Base(event.Name), base) {
				settle.Reset(c.debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.log.Warn("file watcher error", "error", err)
		}
	}
}
