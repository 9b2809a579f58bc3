package sqlite

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prioritylab/prio/internal/storage"
	"github.com/prioritylab/prio/internal/types"
)

func newTask(id string, rank int, parent *string) *types.Task {
	now := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	return &types.Task{
		ID:         id,
		Title:      "task " + id,
		Rank:       rank,
		ParentID:   parent,
		CreatedAt:  now,
		UpdatedAt:  now,
		SyncStatus: types.SyncSynced,
	}
}

func TestInsertAndGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	parent := "p"
	deadline := time.Date(2026, 6, 1, 17, 0, 0, 0, time.UTC)
	task := newTask("a", 0, &parent)
	task.Description = "**bold**"
	task.Deadline = &deadline
	task.Collaborators = []string{"kim", "lee"}
	task.Depth = 1

	if err := store.InsertTask(ctx, task); err != nil {
		t.Fatalf("InsertTask: %v", err)
	}
	got, err := store.GetTask(ctx, "a")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if !got.SameContent(task) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, task)
	}
	if !got.CreatedAt.Equal(task.CreatedAt) || got.SyncStatus != types.SyncSynced {
		t.Errorf("timestamps or status lost: %+v", got)
	}
}

func TestGetMissingTask(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetTask(context.Background(), "nope")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetTask(missing) error = %v, want ErrNotFound", err)
	}
}

func TestUpdateMissingTask(t *testing.T) {
	store := newTestStore(t)
	err := store.UpdateTask(context.Background(), newTask("ghost", 0, nil))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("UpdateTask(missing) error = %v, want ErrNotFound", err)
	}
}

func TestShiftRanksScopesAndBumps(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	parent := "p"

	for i, id := range []string{"a", "b", "c"} {
		if err := store.InsertTask(ctx, newTask(id, i, nil)); err != nil {
			t.Fatal(err)
		}
	}
	// Same ranks in another scope must not move.
	if err := store.InsertTask(ctx, newTask("child", 1, &parent)); err != nil {
		t.Fatal(err)
	}

	later := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	n, err := store.ShiftRanks(ctx, nil, 1, +1, later)
	if err != nil {
		t.Fatalf("ShiftRanks: %v", err)
	}
	if n != 2 {
		t.Errorf("shifted %d rows, want 2", n)
	}

	sibs, err := store.ActiveSiblings(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]int{"a": 0, "b": 2, "c": 3}
	for _, s := range sibs {
		if s.Rank != want[s.ID] {
			t.Errorf("%s rank = %d, want %d", s.ID, s.Rank, want[s.ID])
		}
		shifted := s.ID != "a"
		if shifted && (s.SyncStatus != types.SyncPending || !s.UpdatedAt.Equal(later)) {
			t.Errorf("%s not marked: status=%s updated=%v", s.ID, s.SyncStatus, s.UpdatedAt)
		}
		if !shifted && s.SyncStatus != types.SyncSynced {
			t.Errorf("unshifted %s changed status to %s", s.ID, s.SyncStatus)
		}
	}

	child, _ := store.GetTask(ctx, "child")
	if child.Rank != 1 {
		t.Errorf("child scope moved: rank %d", child.Rank)
	}
}

func TestShiftRanksNeverMovesUpdatedAtBackwards(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	task := newTask("a", 0, nil)
	if err := store.InsertTask(ctx, task); err != nil {
		t.Fatal(err)
	}
	earlier := task.UpdatedAt.Add(-time.Hour)
	if _, err := store.ShiftRanks(ctx, nil, 0, +1, earlier); err != nil {
		t.Fatal(err)
	}
	got, _ := store.GetTask(ctx, "a")
	if !got.UpdatedAt.Equal(task.UpdatedAt) {
		t.Errorf("updated_at moved backwards: %v -> %v", task.UpdatedAt, got.UpdatedAt)
	}
}

func TestShiftSkipsCompleted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	done := newTask("done", 1, nil)
	now := time.Now()
	done.Completed = true
	done.CompletedAt = &now
	if err := store.InsertTask(ctx, done); err != nil {
		t.Fatal(err)
	}
	if _, err := store.ShiftRanks(ctx, nil, 0, -1, now); err != nil {
		t.Fatal(err)
	}
	got, _ := store.GetTask(ctx, "done")
	if got.Rank != 1 {
		t.Errorf("completed rank moved to %d", got.Rank)
	}
}

func TestSearchTasksFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	parent := "a1b2"

	tasks := []*types.Task{newTask("a1b2", 0, nil), newTask("a1c3", 1, nil), newTask("zz_9", 0, &parent)}
	tasks[1].SyncStatus = types.SyncError
	for _, tk := range tasks {
		if err := store.InsertTask(ctx, tk); err != nil {
			t.Fatal(err)
		}
	}

	cases := []struct {
		name   string
		filter types.TaskFilter
		want   string
	}{
		{"all", types.TaskFilter{}, "a1b2,zz_9,a1c3"},
		{"prefix", types.TaskFilter{IDPrefix: "a1"}, "a1b2,a1c3"},
		{"underscore is literal", types.TaskFilter{IDPrefix: "zz_"}, "zz_9"},
		{"top level", types.TaskFilter{TopLevel: true}, "a1b2,a1c3"},
		{"children", types.TaskFilter{ParentID: &parent}, "zz_9"},
		{"errors", types.TaskFilter{SyncStatuses: []types.SyncStatus{types.SyncError}}, "a1c3"},
		{"limit", types.TaskFilter{Limit: 1}, "a1b2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := store.SearchTasks(ctx, tc.filter)
			if err != nil {
				t.Fatal(err)
			}
			var ids []string
			for _, g := range got {
				ids = append(ids, g.ID)
			}
			if strings.Join(ids, ",") != tc.want {
				t.Errorf("got %v, want %s", ids, tc.want)
			}
		})
	}
}

func TestQueueOrderAndRetryBookkeeping(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var ids []int64
	for _, op := range []types.Operation{types.OpCreate, types.OpUpdate, types.OpDelete} {
		e, err := types.NewEntry("a", op, map[string]any{"op": op})
		if err != nil {
			t.Fatal(err)
		}
		id, err := store.Enqueue(ctx, e)
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		ids = append(ids, id)
	}
	if !(ids[0] < ids[1] && ids[1] < ids[2]) {
		t.Fatalf("queue ids not increasing: %v", ids)
	}

	next := time.Now().Add(2 * time.Second)
	if err := store.UpdateEntryRetry(ctx, ids[1], 1, "boom", &next); err != nil {
		t.Fatal(err)
	}
	if err := store.RemoveEntry(ctx, ids[0]); err != nil {
		t.Fatal(err)
	}

	entries, err := store.EntriesForTask(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Operation != types.OpUpdate || entries[1].Operation != types.OpDelete {
		t.Fatalf("unexpected queue: %+v", entries)
	}
	if entries[0].RetryCount != 1 || entries[0].LastError != "boom" || entries[0].NextAttemptAt == nil {
		t.Errorf("retry bookkeeping lost: %+v", entries[0])
	}
	if string(entries[1].Payload) != `{"op":"delete"}` {
		t.Errorf("payload = %s", entries[1].Payload)
	}
}

func TestEnqueueRejectsUnknownOperation(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Enqueue(context.Background(), &types.QueueEntry{TaskID: "a", Operation: "merge"})
	if !errors.Is(err, storage.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestTransactionRollback(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sentinel := errors.New("abort")

	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.InsertTask(ctx, newTask("a", 0, nil)); err != nil {
			return err
		}
		if _, err := tx.Enqueue(ctx, &types.QueueEntry{TaskID: "a", Operation: types.OpCreate}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("RunInTransaction error = %v", err)
	}
	if _, err := store.GetTask(ctx, "a"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("task survived rollback: %v", err)
	}
	if entries, _ := store.Entries(ctx); len(entries) != 0 {
		t.Errorf("queue entry survived rollback: %+v", entries)
	}
}

func TestTransactionCommit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.InsertTask(ctx, newTask("a", 0, nil))
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetTask(ctx, "a"); err != nil {
		t.Errorf("committed task missing: %v", err)
	}
}

func TestMetadata(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if v, err := store.GetMetadata(ctx, "sync.last_success"); err != nil || v != "" {
		t.Fatalf("unset key = %q, %v", v, err)
	}
	for _, v := range []string{"one", "two"} {
		if err := store.SetMetadata(ctx, "sync.last_success", v); err != nil {
			t.Fatal(err)
		}
	}
	if v, _ := store.GetMetadata(ctx, "sync.last_success"); v != "two" {
		t.Errorf("metadata = %q, want two", v)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	store, err := New(context.Background(), t.TempDir()+"/close.db")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if !store.IsClosed() {
		t.Error("IsClosed() = false after Close")
	}
	err = store.RunInTransaction(context.Background(), func(storage.Transaction) error { return nil })
	if !errors.Is(err, storage.ErrClosed) {
		t.Errorf("transaction on closed store: %v", err)
	}
}

func TestConnString(t *testing.T) {
	t.Setenv("PRIO_LOCK_TIMEOUT", "5s")
	got := ConnString("/tmp/x.db")
	if !strings.HasPrefix(got, "file:/tmp/x.db?") || !strings.Contains(got, "busy_timeout(5000)") {
		t.Errorf("ConnString = %q", got)
	}
	uri := ConnString("file:/tmp/y.db?_pragma=busy_timeout(1)")
	if strings.Count(uri, "busy_timeout") != 1 || !strings.Contains(uri, "&_pragma=foreign_keys(ON)") {
		t.Errorf("ConnString(uri) = %q", uri)
	}
}
