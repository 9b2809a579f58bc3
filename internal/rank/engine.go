// Package rank applies task mutations while keeping every sibling scope
// densely ranked.
//
// A scope is the set of active (non-completed) tasks sharing one parent. The
// engine guarantees that after every operation each scope holds exactly the
// ranks 0..N-1. Each operation runs in a single storage transaction that also
// marks touched rows pending and appends one outbound queue entry, so a crash
// can never leave a shift half-applied or a mutation without its entry.
package rank

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/prioritylab/prio/internal/storage"
	"github.com/prioritylab/prio/internal/types"
)

// Engine owns rank-preserving mutations over a store.
type Engine struct {
	store storage.Store
	now   func() time.Time
	newID func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides task id generation.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// New creates an engine over store.
func New(store storage.Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// stamp returns the next updatedAt for a row last updated at prev.
// updatedAt never moves backwards, even if the wall clock does.
func (e *Engine) stamp(prev time.Time) time.Time {
	now := e.now().UTC()
	if now.Before(prev) {
		return prev
	}
	return now
}

// InsertAt creates a task at targetRank within the children of parentID
// (nil for top level). The target is clamped to [0, N]; siblings at or after
// it move down by one.
func (e *Engine) InsertAt(ctx context.Context, parentID *string, targetRank int, draft types.TaskDraft) (*types.Task, error) {
	if err := draft.Validate(); err != nil {
		return nil, storage.Validationf("%v", err)
	}

	var created *types.Task
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		depth := 0
		if parentID != nil {
			parent, err := tx.GetTask(ctx, *parentID)
			if err != nil {
				return fmt.Errorf("parent: %w", err)
			}
			depth = parent.Depth + 1
		}

		siblings, err := tx.ActiveSiblings(ctx, parentID)
		if err != nil {
			return err
		}
		target := clamp(targetRank, 0, len(siblings))
		now := e.stamp(time.Time{})

		if _, err := tx.ShiftRanks(ctx, parentID, target, +1, now); err != nil {
			return err
		}

		task := &types.Task{
			ID:            e.newID(),
			Title:         draft.Title,
			Description:   draft.Description,
			Deadline:      draft.Deadline,
			Rank:          target,
			ParentID:      parentID,
			Depth:         depth,
			CreatedAt:     now,
			UpdatedAt:     now,
			Collaborators: draft.Collaborators,
			SyncStatus:    types.SyncPending,
		}
		if err := tx.InsertTask(ctx, task); err != nil {
			return err
		}
		created = task
		return enqueue(ctx, tx, task.ID, types.OpCreate, task.Wire(), now)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Complete marks a task done and closes the gap it leaves in its scope.
// Completing an already completed task changes nothing. Descendants are not
// touched.
func (e *Engine) Complete(ctx context.Context, id string) error {
	return e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		task, err := tx.GetTask(ctx, id)
		if err != nil {
			return err
		}
		if task.Completed {
			return nil
		}

		now := e.stamp(task.UpdatedAt)
		oldRank := task.Rank
		task.Completed = true
		task.CompletedAt = &now
		task.UpdatedAt = now
		task.SyncStatus = types.SyncPending
		if err := tx.UpdateTask(ctx, task); err != nil {
			return err
		}
		if _, err := tx.ShiftRanks(ctx, task.ParentID, oldRank+1, -1, now); err != nil {
			return err
		}
		return enqueue(ctx, tx, id, types.OpUpdate, map[string]any{
			"completed":   true,
			"completedAt": now,
			"updatedAt":   now,
		}, now)
	})
}

// Reopen returns a completed task to its scope, at the end.
func (e *Engine) Reopen(ctx context.Context, id string) (*types.Task, error) {
	var out *types.Task
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		task, err := tx.GetTask(ctx, id)
		if err != nil {
			return err
		}
		out = task
		if !task.Completed {
			return nil
		}
		siblings, err := tx.ActiveSiblings(ctx, task.ParentID)
		if err != nil {
			return err
		}

		now := e.stamp(task.UpdatedAt)
		task.Completed = false
		task.CompletedAt = nil
		task.Rank = len(siblings)
		task.UpdatedAt = now
		task.SyncStatus = types.SyncPending
		if err := tx.UpdateTask(ctx, task); err != nil {
			return err
		}
		return enqueue(ctx, tx, id, types.OpUpdate, map[string]any{
			"completed":   false,
			"completedAt": nil,
			"rank":        task.Rank,
			"updatedAt":   now,
		}, now)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a task with its whole subtree. Deleting a missing task is a
// no-op, so repeating a delete is harmless.
//
// One delete entry is queued for the root. Its payload names the removed
// descendants so the remote side can drop them too.
func (e *Engine) Delete(ctx context.Context, id string) error {
	return e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		root, err := tx.GetTask(ctx, id)
		if storage.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}

		descendants, err := subtree(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, d := range descendants {
			if err := tx.DeleteTask(ctx, d); err != nil {
				return err
			}
			// The root's delete covers them remotely.
			if err := dropEntries(ctx, tx, d); err != nil {
				return err
			}
		}
		if err := tx.DeleteTask(ctx, id); err != nil {
			return err
		}

		now := e.stamp(time.Time{})
		if !root.Completed {
			if _, err := tx.ShiftRanks(ctx, root.ParentID, root.Rank+1, -1, now); err != nil {
				return err
			}
		}

		var payload any
		if len(descendants) > 0 {
			payload = DeletePayload{Descendants: descendants}
		}
		return enqueue(ctx, tx, id, types.OpDelete, payload, now)
	})
}

func dropEntries(ctx context.Context, tx storage.Transaction, taskID string) error {
	entries, err := tx.EntriesForTask(ctx, taskID)
	if err != nil {
		return err
	}
	for _, en := range entries {
		if err := tx.RemoveEntry(ctx, en.QueueID); err != nil {
			return err
		}
	}
	return nil
}

// DeletePayload is the queue payload of a subtree delete.
type DeletePayload struct {
	Descendants []string `json:"descendants,omitempty"`
}

// subtree returns the ids below id, breadth first.
func subtree(ctx context.Context, tx storage.Transaction, id string) ([]string, error) {
	var out []string
	queue := []string{id}
	seen := map[string]bool{id: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		children, err := tx.Children(ctx, cur)
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, c.ID)
			queue = append(queue, c.ID)
		}
	}
	return out, nil
}

// Move reorders a task within its scope or moves it under another parent
// (nil for top level). The target is clamped to the valid range of the
// destination scope. Completed tasks cannot move, and a task cannot move
// beneath itself.
func (e *Engine) Move(ctx context.Context, id string, newParentID *string, targetRank int) (*types.Task, error) {
	var out *types.Task
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		task, err := tx.GetTask(ctx, id)
		if err != nil {
			return err
		}
		if task.Completed {
			return storage.Validationf("cannot move completed task %s", id)
		}

		newDepth := 0
		if newParentID != nil {
			parent, err := tx.GetTask(ctx, *newParentID)
			if err != nil {
				return fmt.Errorf("parent: %w", err)
			}
			if err := checkNotDescendant(ctx, tx, parent, id); err != nil {
				return err
			}
			newDepth = parent.Depth + 1
		}

		now := e.stamp(task.UpdatedAt)
		if task.Parent() == parentKey(newParentID) {
			moved, err := e.reorder(ctx, tx, task, targetRank, now)
			if err != nil || !moved {
				out = task
				return err
			}
		} else {
			if _, err := tx.ShiftRanks(ctx, task.ParentID, task.Rank+1, -1, now); err != nil {
				return err
			}
			dest, err := tx.ActiveSiblings(ctx, newParentID)
			if err != nil {
				return err
			}
			target := clamp(targetRank, 0, len(dest))
			if _, err := tx.ShiftRanks(ctx, newParentID, target, +1, now); err != nil {
				return err
			}
			task.ParentID = newParentID
			task.Depth = newDepth
			task.Rank = target
		}

		task.UpdatedAt = now
		task.SyncStatus = types.SyncPending
		if err := tx.UpdateTask(ctx, task); err != nil {
			return err
		}
		out = task
		return enqueue(ctx, tx, id, types.OpUpdate, map[string]any{
			"rank":      task.Rank,
			"parentId":  task.ParentID,
			"depth":     task.Depth,
			"updatedAt": now,
		}, now)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// reorder moves task to target inside its own scope, rewriting the ranks of
// the siblings in between. It reports false when the task is already there.
func (e *Engine) reorder(ctx context.Context, tx storage.Transaction, task *types.Task, target int, now time.Time) (bool, error) {
	siblings, err := tx.ActiveSiblings(ctx, task.ParentID)
	if err != nil {
		return false, err
	}
	target = clamp(target, 0, len(siblings)-1)
	if target == task.Rank {
		return false, nil
	}

	order := make([]*types.Task, 0, len(siblings))
	for _, s := range siblings {
		if s.ID != task.ID {
			order = append(order, s)
		}
	}
	order = append(order[:target], append([]*types.Task{task}, order[target:]...)...)

	for i, s := range order {
		if s.ID == task.ID {
			task.Rank = i
			continue
		}
		if s.Rank == i {
			continue
		}
		s.Rank = i
		s.UpdatedAt = e.stamp(s.UpdatedAt)
		s.SyncStatus = types.SyncPending
		if err := tx.UpdateTask(ctx, s); err != nil {
			return false, err
		}
	}
	return true, nil
}

func checkNotDescendant(ctx context.Context, tx storage.Transaction, parent *types.Task, id string) error {
	seen := map[string]bool{}
	for cur := parent; cur != nil; {
		if cur.ID == id {
			return storage.Validationf("cannot move %s beneath itself", id)
		}
		if cur.ParentID == nil || seen[cur.ID] {
			return nil
		}
		seen[cur.ID] = true
		next, err := tx.GetTask(ctx, *cur.ParentID)
		if storage.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		cur = next
	}
	return nil
}

// Update applies a content edit. An edit that changes nothing is not queued.
func (e *Engine) Update(ctx context.Context, id string, patch types.TaskPatch) (*types.Task, error) {
	if err := patch.Validate(); err != nil {
		return nil, storage.Validationf("%v", err)
	}
	var out *types.Task
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		task, err := tx.GetTask(ctx, id)
		if err != nil {
			return err
		}
		out = task
		changed := patch.Apply(task)
		if len(changed) == 0 {
			return nil
		}
		now := e.stamp(task.UpdatedAt)
		task.UpdatedAt = now
		task.SyncStatus = types.SyncPending
		if err := tx.UpdateTask(ctx, task); err != nil {
			return err
		}
		changed["updatedAt"] = now
		return enqueue(ctx, tx, id, types.OpUpdate, changed, now)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func enqueue(ctx context.Context, tx storage.Transaction, taskID string, op types.Operation, payload any, now time.Time) error {
	entry, err := types.NewEntry(taskID, op, payload)
	if err != nil {
		return err
	}
	entry.EnqueuedAt = now
	_, err = tx.Enqueue(ctx, entry)
	return err
}

func parentKey(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
