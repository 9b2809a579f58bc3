// Package merge reconciles the server's task set with the local one using
// last-write-wins on UpdatedAt.
//
// Resolve is pure and produces a Plan; Apply executes a plan inside a store
// transaction. Reconcile does both against a fresh local read so that a
// local edit racing the fetch is never overwritten by a stale plan.
package merge

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/prioritylab/prio/internal/rank"
	"github.com/prioritylab/prio/internal/storage"
	"github.com/prioritylab/prio/internal/types"
)

// Action is what a merge decided for one task.
type Action string

// Merge actions
const (
	// ActionInsert adds a task only the server has.
	ActionInsert Action = "insert"
	// ActionOverwrite replaces the local row with the newer server version.
	ActionOverwrite Action = "overwrite"
	// ActionKeepLocal keeps a newer local row and marks it for upload.
	ActionKeepLocal Action = "keep-local"
	// ActionUpload marks a local-only task for upload.
	ActionUpload Action = "upload"
	// ActionMarkSynced records that both sides agree.
	ActionMarkSynced Action = "mark-synced"
	// ActionSkip ignores a server task that fails validation.
	ActionSkip Action = "skip"
)

// Decision is the outcome for one task id.
type Decision struct {
	ID     string
	Action Action
	Local  *types.Task
	Server *types.Task
	Reason string
}

// Plan is the full set of decisions, ordered by task id.
type Plan struct {
	Decisions []Decision
}

// Count returns how many decisions have action a.
func (p *Plan) Count(a Action) int {
	n := 0
	for _, d := range p.Decisions {
		if d.Action == a {
			n++
		}
	}
	return n
}

// Resolve decides every task present on either side.
func Resolve(server, local []*types.Task) *Plan {
	localByID := make(map[string]*types.Task, len(local))
	for _, t := range local {
		localByID[t.ID] = t
	}
	seen := make(map[string]bool, len(server))

	plan := &Plan{}
	for _, s := range server {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		l := localByID[s.ID]

		if err := s.Validate(); err != nil {
			plan.Decisions = append(plan.Decisions, Decision{ID: s.ID, Action: ActionSkip, Local: l, Server: s, Reason: err.Error()})
			continue
		}
		if l == nil {
			plan.Decisions = append(plan.Decisions, Decision{ID: s.ID, Action: ActionInsert, Server: s})
			continue
		}
		plan.Decisions = append(plan.Decisions, Decision{ID: s.ID, Action: compare(l, s), Local: l, Server: s})
	}
	for _, l := range local {
		if !seen[l.ID] {
			plan.Decisions = append(plan.Decisions, Decision{ID: l.ID, Action: ActionUpload, Local: l})
		}
	}
	slices.SortFunc(plan.Decisions, func(a, b Decision) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return plan
}

func compare(local, server *types.Task) Action {
	switch {
	case isTimeAfter(server.UpdatedAt, local.UpdatedAt):
		return ActionOverwrite
	case isTimeAfter(local.UpdatedAt, server.UpdatedAt):
		return ActionKeepLocal
	default:
		return ActionMarkSynced
	}
}

// isTimeAfter reports whether t1 is strictly after t2. An unset time loses
// to a set one.
func isTimeAfter(t1, t2 time.Time) bool {
	if t1.IsZero() {
		return false
	}
	if t2.IsZero() {
		return true
	}
	return t1.After(t2)
}

// Result summarizes an applied plan.
type Result struct {
	Inserted    int
	Overwritten int
	Pending     int
	Synced      int
	Skipped     int
	// Scopes lists the parent scopes whose ranks may need normalizing, ""
	// for the top level.
	Scopes []string
}

// Apply writes plan through tx. now stamps LastSyncedAt.
func Apply(ctx context.Context, tx storage.Transaction, plan *Plan, now time.Time) (*Result, error) {
	res := &Result{}
	scopes := map[string]bool{}

	for _, d := range plan.Decisions {
		switch d.Action {
		case ActionInsert:
			t := adopt(d.Server, now)
			if err := tx.InsertTask(ctx, t); err != nil {
				return nil, fmt.Errorf("insert %s: %w", d.ID, err)
			}
			if !t.Completed {
				scopes[t.Parent()] = true
			}
			res.Inserted++

		case ActionOverwrite:
			t := adopt(d.Server, now)
			if err := tx.UpdateTask(ctx, t); err != nil {
				return nil, fmt.Errorf("overwrite %s: %w", d.ID, err)
			}
			if placementChanged(d.Local, t) {
				scopes[d.Local.Parent()] = true
				scopes[t.Parent()] = true
			}
			res.Overwritten++

		case ActionKeepLocal, ActionUpload:
			// Errored tasks wait for a manual retry.
			if d.Local.SyncStatus == types.SyncError {
				continue
			}
			if d.Local.SyncStatus != types.SyncPending {
				if err := tx.SetSyncStatus(ctx, d.ID, types.SyncPending); err != nil {
					return nil, fmt.Errorf("mark %s pending: %w", d.ID, err)
				}
			}
			res.Pending++

		case ActionMarkSynced:
			serverUpdated := d.Server.UpdatedAt
			if err := tx.MarkSynced(ctx, d.ID, now, &serverUpdated); err != nil {
				return nil, err
			}
			res.Synced++

		case ActionSkip:
			res.Skipped++
		}
	}

	for s := range scopes {
		res.Scopes = append(res.Scopes, s)
	}
	slices.Sort(res.Scopes)
	return res, nil
}

// adopt turns a server task into the local row that replaces or joins the
// local set.
func adopt(server *types.Task, now time.Time) *types.Task {
	t := server.Clone()
	serverUpdated := server.UpdatedAt
	t.SyncStatus = types.SyncSynced
	t.LastSyncedAt = &now
	t.ServerUpdatedAt = &serverUpdated
	return t
}

func placementChanged(before, after *types.Task) bool {
	return before.Rank != after.Rank || before.Parent() != after.Parent() ||
		before.Completed != after.Completed
}

// Reconcile reads the local set and applies the merge against server in a
// single transaction. Server tasks whose local delete is still queued are
// left out so they are not brought back before the delete is delivered.
func Reconcile(ctx context.Context, store storage.Store, server []*types.Task, now time.Time) (*Plan, *Result, error) {
	var plan *Plan
	var res *Result
	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		local, err := tx.SearchTasks(ctx, types.TaskFilter{})
		if err != nil {
			return err
		}
		deleted, err := queuedDeletes(ctx, tx)
		if err != nil {
			return err
		}
		if len(deleted) > 0 {
			kept := make([]*types.Task, 0, len(server))
			for _, t := range server {
				if !deleted[t.ID] {
					kept = append(kept, t)
				}
			}
			server = kept
		}
		plan = Resolve(server, local)
		res, err = Apply(ctx, tx, plan, now.UTC())
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("merge: %w", err)
	}
	return plan, res, nil
}

// queuedDeletes returns the ids removed locally by delete entries that have
// not reached the server yet, descendants included.
func queuedDeletes(ctx context.Context, tx storage.Transaction) (map[string]bool, error) {
	entries, err := tx.Entries(ctx)
	if err != nil {
		return nil, err
	}
	deleted := map[string]bool{}
	for _, e := range entries {
		if e.Operation != types.OpDelete {
			continue
		}
		deleted[e.TaskID] = true
		if len(e.Payload) == 0 {
			continue
		}
		var p rank.DeletePayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode delete entry %d: %w", e.QueueID, err)
		}
		for _, id := range p.Descendants {
			deleted[id] = true
		}
	}
	return deleted, nil
}
