package placement

import (
	"context"
	"errors"
	"testing"

	"github.com/prioritylab/prio/internal/storage"
	"github.com/prioritylab/prio/internal/types"
)

func siblings(titles ...string) []*types.Task {
	out := make([]*types.Task, len(titles))
	for i, title := range titles {
		out[i] = &types.Task{ID: title, Title: title, Rank: i}
	}
	return out
}

func run(t *testing.T, events ...Event) Machine {
	t.Helper()
	var m Machine
	var err error
	for _, ev := range events {
		m, err = Transition(m, ev)
		if err != nil {
			t.Fatalf("Transition(%T): %v", ev, err)
		}
	}
	return m
}

func TestTransitionTable(t *testing.T) {
	draft := types.TaskDraft{Title: "new"}
	abc := siblings("A", "B", "C")

	tests := []struct {
		name   string
		events []Event
		state  State
		target int
	}{
		{"empty scope completes at 0", []Event{Start{Draft: draft}}, StateComplete, 0},
		{"higher on first", []Event{Start{draft, abc}, Answer{Higher: true}}, StateComplete, 0},
		{"lower lower higher", []Event{Start{draft, abc}, Answer{}, Answer{}, Answer{Higher: true}}, StateComplete, 2},
		{"lower all appends", []Event{Start{draft, abc}, Answer{}, Answer{}, Answer{}}, StateComplete, 3},
		{"skip then place", []Event{Start{draft, abc}, Answer{}, Skip{}, Place{Rank: 1}}, StateComplete, 1},
		{"place beyond end is kept for clamping", []Event{Start{draft, abc}, Skip{}, Place{Rank: 9}}, StateComplete, 9},
		{"cancel while comparing", []Event{Start{draft, abc}, Cancel{}}, StateCancelled, 0},
		{"cancel while placing", []Event{Start{draft, abc}, Skip{}, Cancel{}}, StateCancelled, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := run(t, tt.events...)
			if m.State != tt.state {
				t.Fatalf("state = %s, want %s", m.State, tt.state)
			}
			if m.State == StateComplete && m.TargetRank != tt.target {
				t.Errorf("target = %d, want %d", m.TargetRank, tt.target)
			}
		})
	}
}

func TestInvalidTransitionsLeaveMachineUnchanged(t *testing.T) {
	abc := siblings("A", "B", "C")
	comparing := run(t, Start{types.TaskDraft{Title: "x"}, abc}, Answer{})
	placing := run(t, Start{types.TaskDraft{Title: "x"}, abc}, Skip{})
	done := run(t, Start{Draft: types.TaskDraft{Title: "x"}})
	cancelled := run(t, Start{types.TaskDraft{Title: "x"}, abc}, Cancel{})

	tests := []struct {
		name string
		m    Machine
		ev   Event
	}{
		{"answer while idle", Machine{}, Answer{}},
		{"cancel while idle", Machine{}, Cancel{}},
		{"start while comparing", comparing, Start{}},
		{"place while comparing", comparing, Place{Rank: 0}},
		{"answer while placing", placing, Answer{Higher: true}},
		{"skip while placing", placing, Skip{}},
		{"answer after complete", done, Answer{}},
		{"cancel after complete", done, Cancel{}},
		{"place after cancel", cancelled, Place{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transition(tt.m, tt.ev)
			if !IsInvalidTransition(err) {
				t.Fatalf("error = %v, want invalid transition", err)
			}
			if !errors.Is(err, storage.ErrValidation) {
				t.Error("invalid transition should be a validation error")
			}
			wantState := tt.m.State
			if wantState == "" {
				wantState = StateIdle
			}
			if got.State != wantState || got.CurrentRank != tt.m.CurrentRank {
				t.Errorf("machine changed: %+v -> %+v", tt.m, got)
			}
		})
	}
}

func TestPlaceNegativeRank(t *testing.T) {
	placing := run(t, Start{types.TaskDraft{Title: "x"}, siblings("A")}, Skip{})
	got, err := Transition(placing, Place{Rank: -1})
	if !errors.Is(err, storage.ErrValidation) {
		t.Fatalf("error = %v", err)
	}
	if got.State != StatePlacing {
		t.Errorf("state = %s", got.State)
	}
}

func TestQuestion(t *testing.T) {
	m := run(t, Start{types.TaskDraft{Title: "x"}, siblings("A", "B")})
	if q := m.Question(); q == nil || q.Title != "A" {
		t.Fatalf("first question = %v", q)
	}
	m = run(t, Start{types.TaskDraft{Title: "x"}, siblings("A", "B")}, Answer{})
	if q := m.Question(); q == nil || q.Title != "B" {
		t.Fatalf("second question = %v", q)
	}
	m, _ = Transition(m, Skip{})
	if m.Question() != nil {
		t.Error("no question while placing")
	}
}

type countingInserter struct {
	calls  int
	parent *string
	rank   int
	err    error
}

func (c *countingInserter) InsertAt(_ context.Context, parentID *string, rank int, draft types.TaskDraft) (*types.Task, error) {
	c.calls++
	c.parent = parentID
	c.rank = rank
	if c.err != nil {
		return nil, c.err
	}
	return &types.Task{ID: "new", Title: draft.Title, Rank: rank, ParentID: parentID}, nil
}

func TestResolverInsertsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	ins := &countingInserter{}
	parent := "p"
	r := NewResolver(ins, &parent)

	for _, ev := range []Event{Start{types.TaskDraft{Title: "x"}, siblings("A", "B", "C")}, Answer{}, Answer{}, Answer{Higher: true}} {
		if _, err := r.Send(ctx, ev); err != nil {
			t.Fatalf("Send(%T): %v", ev, err)
		}
	}
	if ins.calls != 1 || ins.rank != 2 || ins.parent != &parent {
		t.Fatalf("insert calls=%d rank=%d parent=%v", ins.calls, ins.rank, ins.parent)
	}
	if r.Created() == nil || r.Created().Rank != 2 {
		t.Errorf("Created() = %+v", r.Created())
	}

	// Replayed answer is rejected and does not insert again.
	if _, err := r.Send(ctx, Answer{Higher: true}); !IsInvalidTransition(err) {
		t.Errorf("replay error = %v", err)
	}
	if ins.calls != 1 {
		t.Errorf("insert called %d times", ins.calls)
	}
}

func TestResolverEmptyScope(t *testing.T) {
	ins := &countingInserter{}
	r := NewResolver(ins, nil)
	m, err := r.Send(context.Background(), Start{Draft: types.TaskDraft{Title: "first"}})
	if err != nil {
		t.Fatal(err)
	}
	if m.State != StateComplete || ins.calls != 1 || ins.rank != 0 {
		t.Errorf("state=%s calls=%d rank=%d", m.State, ins.calls, ins.rank)
	}
}

func TestResolverCancelNeverInserts(t *testing.T) {
	ins := &countingInserter{}
	r := NewResolver(ins, nil)
	ctx := context.Background()
	_, _ = r.Send(ctx, Start{types.TaskDraft{Title: "x"}, siblings("A")})
	_, _ = r.Send(ctx, Skip{})
	m, err := r.Send(ctx, Cancel{})
	if err != nil || m.State != StateCancelled {
		t.Fatalf("cancel: %v %s", err, m.State)
	}
	if ins.calls != 0 {
		t.Errorf("cancelled placement inserted %d times", ins.calls)
	}
}

func TestResolverSurfacesInsertError(t *testing.T) {
	ins := &countingInserter{err: storage.ErrNotFound}
	r := NewResolver(ins, nil)
	_, err := r.Send(context.Background(), Start{Draft: types.TaskDraft{Title: "x"}})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v", err)
	}
	if _, err := r.Send(context.Background(), Start{Draft: types.TaskDraft{Title: "x"}}); err == nil {
		t.Error("machine should stay complete after a failed insert")
	}
	if ins.calls != 1 {
		t.Errorf("calls = %d", ins.calls)
	}
}
