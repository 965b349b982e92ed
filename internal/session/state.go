// Package session implements the Session aggregate and its state machine
// (spec §4.3), plus the Session Manager's atomic create/remove (spec §4.5).
package session

import (
	"fmt"

	"github.com/zjj-vcs/zjj/internal/store"
	"github.com/zjj-vcs/zjj/internal/zjjerr"
)

// Status is re-exported from store so callers of this package never need to
// import internal/store directly for the enum.
type Status = store.SessionStatus

const (
	Creating  = store.SessionCreating
	Ready     = store.SessionReady
	Active    = store.SessionActive
	Paused    = store.SessionPaused
	Completed = store.SessionCompleted
	Failed    = store.SessionFailed
)

// validTransitions is the fixed table spec §4.3 describes. A transition not
// present here is rejected with InvalidTransition; there is no silent no-op,
// including self-transitions (a from==to pair must be listed explicitly if
// it is meant to be legal, and none are).
var validTransitions = map[Status]map[Status]bool{
	Creating: {Ready: true, Failed: true},
	Ready:    {Active: true, Failed: true}, // "Removed" is a Session Manager action, not a status value
	Active:   {Paused: true, Completed: true, Failed: true},
	Paused:   {Active: true, Completed: true, Failed: true},
}

// Transition validates from -> to against the fixed table, returning
// zjjerr.ErrInvalidTransition on any pair not explicitly allowed.
func Transition(from, to Status) error {
	if allowed, ok := validTransitions[from]; ok && allowed[to] {
		return nil
	}
	return fmt.Errorf("session transition %s -> %s: %w", from, to, zjjerr.ErrInvalidTransition)
}

// BranchState is the Detached/OnBranch substate, orthogonal to Status.
type BranchState struct {
	Kind store.BranchStateKind
	Name string // set iff Kind == OnBranch
}

// Detached constructs the Detached branch state.
func Detached() BranchState { return BranchState{Kind: store.BranchDetached} }

// OnBranch constructs the OnBranch{name} branch state.
func OnBranch(name string) BranchState { return BranchState{Kind: store.BranchOnBranch, Name: name} }

// ParentState is the Root/ChildOf substate.
type ParentState struct {
	Kind   store.ParentStateKind
	Parent string // set iff Kind == ChildOf
}

// Root constructs the immutable Root parent state.
func Root() ParentState { return ParentState{Kind: store.ParentRoot} }

// ChildOf constructs the ChildOf{parent} parent state.
func ChildOf(parent string) ParentState { return ParentState{Kind: store.ParentChildOf, Parent: parent} }

// TransitionParent validates a parent-substate change: Root is immutable
// (root -> child is forbidden), adoption (child -> a different child) is
// permitted (spec §4.3).
func TransitionParent(from ParentState, to ParentState) error {
	if from.Kind == store.ParentRoot {
		if to.Kind == store.ParentRoot {
			return nil
		}
		return fmt.Errorf("parent state Root -> ChildOf: %w", zjjerr.ErrInvalidTransition)
	}
	// ChildOf -> ChildOf (adoption) or ChildOf -> ChildOf (no-op) both allowed;
	// ChildOf -> Root is never requested by the Session Manager and is
	// likewise rejected to keep the table exhaustive.
	if to.Kind == store.ParentChildOf {
		return nil
	}
	return fmt.Errorf("parent state ChildOf -> Root: %w", zjjerr.ErrInvalidTransition)
}
