// Package zjjerr defines the error taxonomy shared by every zjj component.
//
// Each sentinel below corresponds to one row of the error-kind table: domain
// code never constructs a bare fmt.Errorf for one of these conditions, it
// wraps the sentinel with fmt.Errorf("%s: %w", op, sentinel) so that callers
// can recover the kind with errors.Is regardless of how much context was
// added along the way. This mirrors the teacher's wrapDBError/wrapDBErrorf
// convention, generalized from the store to every package.
package zjjerr

import "errors"

var (
	// ErrValidation: a value-object constructor rejected its input.
	ErrValidation = errors.New("validation error")

	// ErrNotFound: the referenced aggregate does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists: a uniqueness constraint was violated (session name,
	// dedupe key collision on a non-terminal queue entry).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidTransition: a state machine rejected a transition.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrNotLockHolder: an owner-checked operation was attempted by a
	// non-owner (queue claim, processing lock).
	ErrNotLockHolder = errors.New("not lock holder")

	// ErrHasChildren: a session with non-terminal children was removed
	// without --force.
	ErrHasChildren = errors.New("session has children")

	// ErrStoreBusy: a contended write. store.RetryBusy retries on it with
	// bounded backoff; no command wraps its store calls in RetryBusy, so the
	// CLI reports a busy store (exit code 3) without retrying.
	ErrStoreBusy = errors.New("store busy")

	// ErrStoreCorrupt: the backing file is unparseable. Handling is
	// policy-dependent, see internal/recovery.
	ErrStoreCorrupt = errors.New("store corrupt")

	// ErrSchemaVersionUnknown: the store's schema_version is newer than
	// this binary understands. Refuses to operate, no silent upgrade.
	ErrSchemaVersionUnknown = errors.New("unknown schema version")

	// ErrWorkspaceCreateFailed / ErrWorkspaceRemoveFailed: the workspace
	// driver failed to create or tear down a working copy.
	ErrWorkspaceCreateFailed = errors.New("workspace create failed")
	ErrWorkspaceRemoveFailed = errors.New("workspace remove failed")

	// ErrTransient: an I/O flake in a train step; retry up to max_retries.
	ErrTransient = errors.New("transient failure")

	// ErrFatal: an unresolvable failure in a train step; terminal Failed.
	ErrFatal = errors.New("fatal failure")
)
