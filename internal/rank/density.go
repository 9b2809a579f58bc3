package rank

import (
	"context"
	"sort"

	"github.com/prioritylab/prio/internal/storage"
	"github.com/prioritylab/prio/internal/types"
)

// Violation describes one scope whose active ranks are not exactly 0..N-1.
type Violation struct {
	ParentID *string `json:"parentId"`
	Ranks    []int   `json:"ranks"`
}

// CheckDensity scans every scope and reports those that break density.
func (e *Engine) CheckDensity(ctx context.Context) ([]Violation, error) {
	active := false
	tasks, err := e.store.SearchTasks(ctx, types.TaskFilter{Completed: &active})
	if err != nil {
		return nil, err
	}
	return findViolations(tasks), nil
}

func findViolations(tasks []*types.Task) []Violation {
	scopes := map[string][]int{}
	parents := map[string]*string{}
	for _, t := range tasks {
		key := t.Parent()
		scopes[key] = append(scopes[key], t.Rank)
		parents[key] = t.ParentID
	}

	keys := make([]string, 0, len(scopes))
	for k := range scopes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []Violation
	for _, k := range keys {
		ranks := scopes[k]
		sort.Ints(ranks)
		for i, r := range ranks {
			if r != i {
				out = append(out, Violation{ParentID: parents[k], Ranks: ranks})
				break
			}
		}
	}
	return out
}

// Normalize rewrites one scope to ranks 0..N-1, keeping the current order
// and breaking ties by updatedAt then id. Rewritten rows become pending but
// get no queue entry of their own; the next sync picks them up. It returns
// the number of rows changed.
func (e *Engine) Normalize(ctx context.Context, parentID *string) (int, error) {
	changed := 0
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		n, err := e.normalizeTx(ctx, tx, parentID)
		changed = n
		return err
	})
	return changed, err
}

func (e *Engine) normalizeTx(ctx context.Context, tx storage.Transaction, parentID *string) (int, error) {
	siblings, err := tx.ActiveSiblings(ctx, parentID)
	if err != nil {
		return 0, err
	}
	changed := 0
	for i, s := range siblings {
		if s.Rank == i {
			continue
		}
		s.Rank = i
		s.UpdatedAt = e.stamp(s.UpdatedAt)
		s.SyncStatus = types.SyncPending
		if err := tx.UpdateTask(ctx, s); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

// NormalizeAll repairs every scope reported by CheckDensity.
func (e *Engine) NormalizeAll(ctx context.Context) (int, error) {
	violations, err := e.CheckDensity(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, v := range violations {
		n, err := e.Normalize(ctx, v.ParentID)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// NormalizeScopes repairs the given scopes, identified by parent id ("" for
// top level), in one transaction.
func (e *Engine) NormalizeScopes(ctx context.Context, parents []string) (int, error) {
	if len(parents) == 0 {
		return 0, nil
	}
	total := 0
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		for _, p := range parents {
			n, err := e.normalizeTx(ctx, tx, types.StringPtr(p))
			total += n
			if err != nil {
				return err
			}
		}
		return nil
	})
	return total, err
}
