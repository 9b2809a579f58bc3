package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prioritylab/prio/internal/outbox"
	"github.com/prioritylab/prio/internal/rank"
	"github.com/prioritylab/prio/internal/remote"
	"github.com/prioritylab/prio/internal/storage"
	"github.com/prioritylab/prio/internal/types"
)

var (
	// errTaskGone marks an entry whose local task no longer exists.
	errTaskGone = errors.New("local task no longer exists")
	// errTaskErrored marks an entry held back until a manual retry.
	errTaskErrored = errors.New("task is in error state")
	// errBadEntry marks an entry that can never be delivered as stored. It
	// spends its retries like a server failure so it ends in exhaustion.
	errBadEntry = errors.New("unreadable queue entry")
)

// recoverInterrupted returns tasks left in syncing by a cycle that never
// finished to pending.
func (c *Coordinator) recoverInterrupted(ctx context.Context) error {
	stuck, err := c.store.SearchTasks(ctx, types.TaskFilter{SyncStatuses: []types.SyncStatus{types.SyncSyncing}})
	if err != nil {
		return err
	}
	for _, t := range stuck {
		if err := c.store.SetSyncStatus(ctx, t.ID, types.SyncPending); err != nil {
			return err
		}
	}
	return nil
}

// drain delivers ready entries in queue order. After a task's entry fails,
// its later entries wait for the next cycle so they never overtake it.
func (c *Coordinator) drain(ctx context.Context, report *Report) {
	entries, err := c.queue.Drain(ctx)
	if err != nil {
		report.fail("drain", err)
		return
	}
	ready := outbox.Ready(entries, c.now().UTC())
	blocked := map[string]bool{}

	for _, e := range ready {
		if ctx.Err() != nil {
			report.fail("drain", ctx.Err())
			return
		}
		if blocked[e.TaskID] {
			continue
		}

		sent, err := c.deliver(ctx, e)
		switch {
		case errors.Is(err, errTaskGone):
			report.Dropped++
			if err := c.queue.Remove(ctx, e.QueueID); err != nil {
				report.fail("drain", err)
			}
			continue
		case errors.Is(err, errTaskErrored):
			blocked[e.TaskID] = true
			continue
		case err != nil && ctx.Err() != nil:
			// Shutting down; the attempt does not count.
			c.setStatus(context.WithoutCancel(ctx), report, e.TaskID, types.SyncPending)
			report.fail("drain", ctx.Err())
			return
		case err != nil && !remote.IsTransport(err) && !errors.Is(err, errBadEntry):
			// Local failure; leave the entry for the next cycle.
			if e.Operation != types.OpDelete {
				c.setStatus(ctx, report, e.TaskID, types.SyncPending)
			}
			report.fail("drain", err)
			blocked[e.TaskID] = true
			continue
		case err != nil:
			blocked[e.TaskID] = true
			c.metrics.Failure(ctx, "drain")
			c.failed(ctx, report, e, err)
			if unreachable(err) {
				c.monitor.MarkOffline()
				return
			}
			continue
		}

		if err := c.queue.Remove(ctx, e.QueueID); err != nil {
			report.fail("drain", err)
			blocked[e.TaskID] = true
			continue
		}
		c.monitor.markOnline()
		report.Delivered++
		c.metrics.EntryDelivered(ctx, string(e.Operation))
		if e.Operation != types.OpDelete {
			if err := c.settle(ctx, e.TaskID, sent); err != nil {
				report.fail("drain", err)
			}
		}
	}
}

// sentVersion is what a create or update put on the server.
type sentVersion struct {
	localUpdatedAt time.Time
	server         *types.Task
}

// deliver performs the remote call for one entry.
func (c *Coordinator) deliver(ctx context.Context, e *types.QueueEntry) (*sentVersion, error) {
	if e.Operation == types.OpDelete {
		return nil, c.deliverDelete(ctx, e)
	}

	local, err := c.store.GetTask(ctx, e.TaskID)
	if storage.IsNotFound(err) {
		return nil, errTaskGone
	}
	if err != nil {
		return nil, err
	}
	if local.SyncStatus == types.SyncError {
		return nil, errTaskErrored
	}
	if err := c.store.SetSyncStatus(ctx, e.TaskID, types.SyncSyncing); err != nil {
		return nil, err
	}

	var server *types.Task
	switch e.Operation {
	case types.OpCreate:
		server, err = c.remote.Create(ctx, local)
		if conflict(err) {
			// A previous attempt may have landed without us seeing the reply.
			server, err = c.remote.Update(ctx, local.ID, snapshot(local))
		}
	case types.OpUpdate:
		server, err = c.remote.Update(ctx, local.ID, e.Payload)
		if remote.IsNotFound(err) {
			// Local is authoritative: recreate from the current row.
			server, err = c.remote.Create(ctx, local)
		}
	default:
		err = fmt.Errorf("%w: unknown operation %q", errBadEntry, e.Operation)
	}
	if err != nil {
		return nil, err
	}
	return &sentVersion{localUpdatedAt: local.UpdatedAt, server: server}, nil
}

// deliverDelete removes the task and any descendants named in the payload.
// Already-missing tasks count as deleted.
func (c *Coordinator) deliverDelete(ctx context.Context, e *types.QueueEntry) error {
	ids := []string{e.TaskID}
	if len(e.Payload) > 0 {
		var p rank.DeletePayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return fmt.Errorf("%w: decode delete entry %d: %v", errBadEntry, e.QueueID, err)
		}
		ids = append(ids, p.Descendants...)
	}
	for _, id := range ids {
		if err := c.remote.Delete(ctx, id); err != nil && !remote.IsNotFound(err) {
			return err
		}
	}
	return nil
}

// settle marks a task synced once its last queued entry is confirmed. A row
// changed locally while the call was in flight stays pending so the next
// cycle uploads the newer version.
func (c *Coordinator) settle(ctx context.Context, taskID string, sent *sentVersion) error {
	return c.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		task, err := tx.GetTask(ctx, taskID)
		if storage.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		remaining, err := tx.EntriesForTask(ctx, taskID)
		if err != nil {
			return err
		}
		if len(remaining) > 0 || task.UpdatedAt.After(sent.localUpdatedAt) {
			return tx.SetSyncStatus(ctx, taskID, types.SyncPending)
		}
		var serverUpdated *time.Time
		if sent.server != nil && !sent.server.UpdatedAt.IsZero() {
			t := sent.server.UpdatedAt
			serverUpdated = &t
		}
		return tx.MarkSynced(ctx, taskID, c.now().UTC(), serverUpdated)
	})
}

// failed records a failed attempt. Once the entry is out of retries it is
// dropped and the task marked error.
func (c *Coordinator) failed(ctx context.Context, report *Report, e *types.QueueEntry, cause error) {
	if err := c.queue.IncrementRetry(ctx, e, cause); err != nil {
		report.fail("drain", err)
		return
	}
	report.Retried++

	if !c.queue.Exhausted(e) {
		report.fail("drain", cause)
		if e.Operation != types.OpDelete {
			c.setStatus(ctx, report, e.TaskID, types.SyncPending)
		}
		return
	}

	if e.Operation != types.OpDelete {
		c.setStatus(ctx, report, e.TaskID, types.SyncError)
	}
	if err := c.queue.Remove(ctx, e.QueueID); err != nil {
		report.fail("drain", err)
	}
	exhausted := &outbox.RetryExhaustedError{
		QueueID:   e.QueueID,
		TaskID:    e.TaskID,
		Operation: e.Operation,
		Attempts:  e.RetryCount,
		Err:       cause,
	}
	report.Exhausted = append(report.Exhausted, exhausted)
	report.Errors = append(report.Errors, exhausted)
}

func (c *Coordinator) setStatus(ctx context.Context, report *Report, id string, status types.SyncStatus) {
	err := c.store.SetSyncStatus(ctx, id, status)
	if err != nil && !storage.IsNotFound(err) {
		report.fail("drain", err)
	}
}

func snapshot(t *types.Task) json.RawMessage {
	b, _ := json.Marshal(t.Wire())
	return b
}

func conflict(err error) bool {
	var te *remote.TransportError
	return errors.As(err, &te) && te.StatusCode == http.StatusConflict
}

// unreachable reports a failure where no HTTP response arrived at all.
func unreachable(err error) bool {
	var te *remote.TransportError
	return errors.As(err, &te) && te.StatusCode == 0
}
