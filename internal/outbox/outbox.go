// Package outbox is the durable queue of local mutations waiting to be
// applied remotely.
//
// Entries live in the store's sync_queue table and are appended in the same
// transaction as the mutation they describe. The queue never sleeps: a failed
// entry records when it may next be attempted, and Ready filters each drain
// to the entries whose time has come.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/prioritylab/prio/internal/storage"
	"github.com/prioritylab/prio/internal/types"
)

// MaxRetry is the number of failed attempts after which an entry is dropped
// and its task marked as errored.
const MaxRetry = 5

// Backoff schedule bounds: 1s, 2s, 4s, 8s, 16s.
const (
	InitialDelay = 1 * time.Second
	MaxDelay     = 16 * time.Second
)

// RetryExhaustedError reports an entry that failed MaxRetry times.
type RetryExhaustedError struct {
	QueueID   int64
	TaskID    string
	Operation types.Operation
	Attempts  int
	Err       error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s of task %s failed %d times, giving up: %v", e.Operation, e.TaskID, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// IsRetryExhausted reports whether err is or wraps a *RetryExhaustedError.
func IsRetryExhausted(err error) bool {
	var re *RetryExhaustedError
	return errors.As(err, &re)
}

// Queue applies retry policy on top of the store's queue table.
type Queue struct {
	store    storage.Store
	maxRetry int
	now      func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxRetry overrides MaxRetry.
func WithMaxRetry(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxRetry = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New creates a queue over store.
func New(store storage.Store, opts ...Option) *Queue {
	q := &Queue{store: store, maxRetry: MaxRetry, now: time.Now}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// MaxRetry returns the configured retry limit.
func (q *Queue) MaxRetry() int { return q.maxRetry }

// Enqueue appends an entry outside any engine transaction.
func (q *Queue) Enqueue(ctx context.Context, taskID string, op types.Operation, payload any) (*types.QueueEntry, error) {
	entry, err := types.NewEntry(taskID, op, payload)
	if err != nil {
		return nil, storage.Validationf("%v", err)
	}
	entry.EnqueuedAt = q.now().UTC()
	if _, err := q.store.Enqueue(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Drain returns every entry in enqueue order. It does not consume anything,
// so an interrupted drain can simply be restarted.
func (q *Queue) Drain(ctx context.Context) ([]*types.QueueEntry, error) {
	return q.store.Entries(ctx)
}

// Remove deletes an entry after confirmed success or exhaustion.
func (q *Queue) Remove(ctx context.Context, queueID int64) error {
	return q.store.RemoveEntry(ctx, queueID)
}

// IncrementRetry records a failed attempt on entry, updating it in place
// with the new count, the error text and the earliest next attempt.
func (q *Queue) IncrementRetry(ctx context.Context, entry *types.QueueEntry, cause error) error {
	retries := entry.RetryCount + 1
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	next := q.now().UTC().Add(Delay(retries))
	if err := q.store.UpdateEntryRetry(ctx, entry.QueueID, retries, msg, &next); err != nil {
		return err
	}
	entry.RetryCount = retries
	entry.LastError = msg
	entry.NextAttemptAt = &next
	return nil
}

// Exhausted reports whether entry has used up its retries.
func (q *Queue) Exhausted(entry *types.QueueEntry) bool {
	return entry.RetryCount >= q.maxRetry
}

// Pending returns the number of queued entries.
func (q *Queue) Pending(ctx context.Context) (int, error) {
	entries, err := q.store.Entries(ctx)
	return len(entries), err
}

// ForTask returns the queued entries of one task.
func (q *Queue) ForTask(ctx context.Context, taskID string) ([]*types.QueueEntry, error) {
	return q.store.EntriesForTask(ctx, taskID)
}

// Delay is the wait before attempt n+1 after n failures: 1s doubling to a
// 16s ceiling.
func Delay(failures int) time.Duration {
	if failures < 1 {
		return 0
	}
	b := newSchedule()
	d := b.NextBackOff()
	for i := 1; i < failures; i++ {
		d = b.NextBackOff()
	}
	return d
}

func newSchedule() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = InitialDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = MaxDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Ready returns the entries that may be attempted at now, preserving enqueue
// order. Once an entry of a task is still backing off, every later entry of
// that task waits too, so one task's mutations never overtake each other.
func Ready(entries []*types.QueueEntry, now time.Time) []*types.QueueEntry {
	blocked := map[string]bool{}
	var out []*types.QueueEntry
	for _, e := range entries {
		if blocked[e.TaskID] {
			continue
		}
		if e.NextAttemptAt != nil && e.NextAttemptAt.After(now) {
			blocked[e.TaskID] = true
			continue
		}
		out = append(out, e)
	}
	return out
}

// Backfill queues a full-snapshot update for every pending task that has no
// entry of its own, such as siblings whose rank shifted or rows rewritten by
// a merge. It returns the number of entries added.
func (q *Queue) Backfill(ctx context.Context) (int, error) {
	added := 0
	err := q.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		pending, err := tx.SearchTasks(ctx, types.TaskFilter{SyncStatuses: []types.SyncStatus{types.SyncPending}})
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}
		entries, err := tx.Entries(ctx)
		if err != nil {
			return err
		}
		queued := make(map[string]bool, len(entries))
		for _, e := range entries {
			queued[e.TaskID] = true
		}
		now := q.now().UTC()
		for _, t := range pending {
			if queued[t.ID] {
				continue
			}
			entry, err := types.NewEntry(t.ID, types.OpUpdate, t.Wire())
			if err != nil {
				return err
			}
			entry.EnqueuedAt = now
			if _, err := tx.Enqueue(ctx, entry); err != nil {
				return err
			}
			added++
		}
		return nil
	})
	return added, err
}

// ResetErrors returns errored tasks to pending so the next sync retries
// them. With no ids every errored task is reset. It returns the tasks reset.
func (q *Queue) ResetErrors(ctx context.Context, ids ...string) ([]string, error) {
	var reset []string
	err := q.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		var candidates []*types.Task
		if len(ids) == 0 {
			all, err := tx.SearchTasks(ctx, types.TaskFilter{SyncStatuses: []types.SyncStatus{types.SyncError}})
			if err != nil {
				return err
			}
			candidates = all
		} else {
			for _, id := range ids {
				t, err := tx.GetTask(ctx, id)
				if err != nil {
					return err
				}
				candidates = append(candidates, t)
			}
		}
		for _, t := range candidates {
			if t.SyncStatus != types.SyncError {
				continue
			}
			if err := tx.SetSyncStatus(ctx, t.ID, types.SyncPending); err != nil {
				return err
			}
			reset = append(reset, t.ID)
		}
		return nil
	})
	return reset, err
}
