// Package workspace defines the Workspace Driver contract (spec §4.4): the
// abstraction over the underlying VCS that creates and removes working
// copies and performs rebase/merge/push. The core never assumes Git
// semantics beyond this interface; Jujutsu (internal/workspace/jj.go) is
// the one concrete backend shipped here, grounded on the teacher's
// internal/git jj-detection helpers.
package workspace

import (
	"context"
	"errors"
	"time"
)

// ErrAlreadyExists is returned by Create when name is already reserved.
var ErrAlreadyExists = errors.New("workspace already exists")

// Handle is the result of a successful Create.
type Handle struct {
	Name string
	Path string
}

// Status reports a working copy's position relative to its tracked branch.
type Status struct {
	Branch string
	Dirty  bool
	Ahead  int
	Behind int
}

// RebaseOutcome is the result of Rebase: exactly one of Clean or Conflict is set.
type RebaseOutcome struct {
	Clean    bool
	Conflict *ConflictDetails
}

// ConflictDetails describes a rebase/merge conflict for the Train
// Processor's ConflictResolution lookup (spec §4.8).
type ConflictDetails struct {
	Type    string
	Files   []string
	Summary string
}

// MergeOutcome is the result of Merge: exactly one of Clean or Conflict is set.
type MergeOutcome struct {
	Clean    bool
	Conflict *ConflictDetails
}

// Driver is the capability contract the core requires of a VCS backend.
// Every operation is fallible and context-aware; implementations should
// respect ctx cancellation/deadlines rather than blocking indefinitely
// (spec §5: "every blocking operation accepts a deadline").
type Driver interface {
	// Create makes a new working copy named name, optionally based on
	// parent's tip. Idempotent by name: calling Create twice with the same
	// name and it already existing returns ErrAlreadyExists.
	Create(ctx context.Context, name string, parent string) (Handle, error)

	// Forget removes the VCS's record of name (e.g. a jj workspace forget),
	// leaving the directory itself for the caller to remove.
	Forget(ctx context.Context, name string) error

	// RemoveDir deletes path from disk. Tolerant of the path already being
	// gone (idempotent).
	RemoveDir(ctx context.Context, path string) error

	Status(ctx context.Context, name string) (Status, error)

	// Rebase replays name's commits onto onto's current tip.
	Rebase(ctx context.Context, name string, onto string) (RebaseOutcome, error)

	// Merge lands source into into.
	Merge(ctx context.Context, source string, into string) (MergeOutcome, error)

	// Push publishes bookmark to the upstream remote, if any is configured.
	Push(ctx context.Context, bookmark string) error
}

// Timeout wraps a Driver call with a deadline, per spec §5's timeout
// supervisor: a call that exceeds d surfaces as context.DeadlineExceeded
// rather than hanging the caller indefinitely. The working copy itself is
// left untouched for inspection.
func Timeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}
