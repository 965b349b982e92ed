//go:build windows

package lockfile

import (
	"os"
	"syscall"

	"golang.org/x/sys/windows"
)

// flockExclusiveNonBlocking acquires an exclusive non-blocking lock on f.
func flockExclusiveNonBlocking(f *os.File) error {
	const flags = windows.LOCKFILE_EXCLUSIVE_LOCK | windows.LOCKFILE_FAIL_IMMEDIATELY

	ol := &windows.Overlapped{}
	err := windows.LockFileEx(windows.Handle(f.Fd()), flags, 0, 0xFFFFFFFF, 0xFFFFFFFF, ol)
	if err == windows.ERROR_LOCK_VIOLATION || err == syscall.EWOULDBLOCK {
		return ErrLockBusy
	}
	return err
}

// flockExclusiveBlocking acquires an exclusive lock on f, waiting if needed.
func flockExclusiveBlocking(f *os.File) error {
	ol := &windows.Overlapped{}
	return windows.LockFileEx(windows.Handle(f.Fd()), windows.LOCKFILE_EXCLUSIVE_LOCK, 0, 0xFFFFFFFF, 0xFFFFFFFF, ol)
}

// flockUnlock releases any lock held on f.
func flockUnlock(f *os.File) error {
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 0xFFFFFFFF, 0xFFFFFFFF, &windows.Overlapped{})
}
