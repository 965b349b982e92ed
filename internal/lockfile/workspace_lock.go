package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// WorkspaceLock is an exclusive advisory lock on one session/workspace name,
// held for the duration of a Session Manager create or remove operation
// (spec §4.5, §5). It is not a substitute for the Queue's claim/lease
// protocol or the processing lock: it only prevents two local operations
// against the *same workspace name* from racing each other.
type WorkspaceLock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive, non-blocking lock on locksDir/<name>.lock,
// creating locksDir if necessary. Returns ErrLockBusy if another process
// (or goroutine, within this process) already holds it.
func Acquire(locksDir, name string) (*WorkspaceLock, error) {
	if err := os.MkdirAll(locksDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory %s: %w", locksDir, err)
	}

	path := filepath.Join(locksDir, name+".lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644) // #nosec G304 - name validated by ids.ParseSessionName
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	if err := flockExclusiveNonBlocking(f); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &WorkspaceLock{file: f, path: path}, nil
}

// Release unlocks and closes the underlying file. Idempotent: calling
// Release twice is a no-op error-wise on the second call (the file is
// already closed), matching the idempotent-remove discipline of spec §4.5.
func (l *WorkspaceLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	unlockErr := flockUnlock(l.file)
	closeErr := l.file.Close()
	l.file = nil
	if unlockErr != nil {
		return fmt.Errorf("unlock %s: %w", l.path, unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close lock file %s: %w", l.path, closeErr)
	}
	return nil
}
