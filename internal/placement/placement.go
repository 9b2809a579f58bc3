// Package placement decides where a new task goes by asking the user to
// compare it against existing siblings, top down.
//
// The state machine is a plain value and a pure Transition function; the
// Resolver wraps it and performs the single insert once placement is decided.
package placement

import (
	"context"
	"errors"
	"fmt"

	"github.com/prioritylab/prio/internal/storage"
	"github.com/prioritylab/prio/internal/types"
)

// State is the placement phase.
type State string

// Placement states
const (
	StateIdle      State = "idle"
	StateComparing State = "comparing"
	StatePlacing   State = "placing"
	StateComplete  State = "complete"
	StateCancelled State = "cancelled"
)

// IsValid checks if the state value is valid
func (s State) IsValid() bool {
	switch s {
	case StateIdle, StateComparing, StatePlacing, StateComplete, StateCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further events are accepted.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateCancelled
}

// ErrInvalidTransition is returned for an event the current state does not
// accept. It wraps storage.ErrValidation.
var ErrInvalidTransition = fmt.Errorf("%w: invalid placement transition", storage.ErrValidation)

// Machine is the full placement state. The zero value is idle.
type Machine struct {
	State       State
	Draft       types.TaskDraft
	Siblings    []*types.Task
	CurrentRank int
	TargetRank  int
}

// Event drives a Machine.
type Event interface {
	isEvent()
}

// Start begins placement of draft among siblings (ordered by rank).
type Start struct {
	Draft    types.TaskDraft
	Siblings []*types.Task
}

// Answer reports whether the new task is more important than the sibling
// currently being compared.
type Answer struct {
	Higher bool
}

// Skip abandons comparison in favour of choosing a rank directly.
type Skip struct{}

// Place chooses a rank directly.
type Place struct {
	Rank int
}

// Cancel abandons placement without creating anything.
type Cancel struct{}

func (Start) isEvent()  {}
func (Answer) isEvent() {}
func (Skip) isEvent()   {}
func (Place) isEvent()  {}
func (Cancel) isEvent() {}

// Transition returns the machine after ev. On error the input machine is
// returned unchanged.
func Transition(m Machine, ev Event) (Machine, error) {
	if m.State == "" {
		m.State = StateIdle
	}
	switch m.State {
	case StateIdle:
		if e, ok := ev.(Start); ok {
			next := Machine{Draft: e.Draft, Siblings: e.Siblings}
			if len(e.Siblings) == 0 {
				next.State = StateComplete
				next.TargetRank = 0
				return next, nil
			}
			next.State = StateComparing
			next.CurrentRank = 0
			return next, nil
		}
	case StateComparing:
		switch e := ev.(type) {
		case Answer:
			next := m
			if e.Higher {
				next.State = StateComplete
				next.TargetRank = m.CurrentRank
				return next, nil
			}
			next.CurrentRank = m.CurrentRank + 1
			if next.CurrentRank == len(m.Siblings) {
				next.State = StateComplete
				next.TargetRank = next.CurrentRank
			}
			return next, nil
		case Skip:
			next := m
			next.State = StatePlacing
			return next, nil
		case Cancel:
			next := m
			next.State = StateCancelled
			return next, nil
		}
	case StatePlacing:
		switch e := ev.(type) {
		case Place:
			if e.Rank < 0 {
				return m, fmt.Errorf("%w: rank %d is negative", storage.ErrValidation, e.Rank)
			}
			next := m
			next.State = StateComplete
			next.TargetRank = e.Rank
			return next, nil
		case Cancel:
			next := m
			next.State = StateCancelled
			return next, nil
		}
	}
	return m, fmt.Errorf("%w: %T in state %s", ErrInvalidTransition, ev, m.State)
}

// Question returns the sibling the user is currently asked about, or nil
// outside the comparing state.
func (m Machine) Question() *types.Task {
	if m.State != StateComparing || m.CurrentRank >= len(m.Siblings) {
		return nil
	}
	return m.Siblings[m.CurrentRank]
}

// Inserter performs the final insert. *rank.Engine satisfies it.
type Inserter interface {
	InsertAt(ctx context.Context, parentID *string, targetRank int, draft types.TaskDraft) (*types.Task, error)
}

// Resolver runs one placement and inserts exactly once on completion.
type Resolver struct {
	inserter   Inserter
	parentID   *string
	machine    Machine
	dispatched bool
	created    *types.Task
}

// NewResolver prepares a placement under parentID (nil for top level).
func NewResolver(inserter Inserter, parentID *string) *Resolver {
	return &Resolver{inserter: inserter, parentID: parentID}
}

// Machine returns a copy of the current state.
func (r *Resolver) Machine() Machine { return r.machine }

// Question is the sibling currently being compared.
func (r *Resolver) Question() *types.Task { return r.machine.Question() }

// Created returns the inserted task once placement completed.
func (r *Resolver) Created() *types.Task { return r.created }

// Send applies ev. When the machine reaches complete for the first time the
// draft is inserted at the target rank; later events or replays never insert
// again.
func (r *Resolver) Send(ctx context.Context, ev Event) (Machine, error) {
	next, err := Transition(r.machine, ev)
	if err != nil {
		return r.machine, err
	}
	r.machine = next
	if next.State != StateComplete || r.dispatched {
		return next, nil
	}

	r.dispatched = true
	created, err := r.inserter.InsertAt(ctx, r.parentID, next.TargetRank, next.Draft)
	if err != nil {
		return next, fmt.Errorf("insert placed task: %w", err)
	}
	r.created = created
	return next, nil
}

// IsInvalidTransition reports whether err came from a rejected event.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}
