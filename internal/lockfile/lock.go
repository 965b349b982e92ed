// Package lockfile provides advisory file locking for the working-copy
// directories the Session Manager serializes create/remove operations on
// (spec §5: "Working copy directory | the session's owner | Session Manager
// serialises create/remove per name via advisory file lock").
//
// The primitives here are OS-level flock(2)/LockFileEx wrappers; WorkspaceLock
// (workspace_lock.go) is the higher-level API the Session Manager actually
// calls.
package lockfile

import "errors"

// ErrLockBusy is returned when a non-blocking lock cannot be acquired
// because another process holds a conflicting lock.
var ErrLockBusy = errors.New("lock busy: held by another process")

// IsBusy reports whether err indicates the lock is held by another holder.
func IsBusy(err error) bool {
	return errors.Is(err, ErrLockBusy)
}
