//go:build unix

package lockfile

import (
	"os"

	"golang.org/x/sys/unix"
)

// flockExclusiveNonBlocking acquires an exclusive non-blocking lock on f.
func flockExclusiveNonBlocking(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == unix.EWOULDBLOCK {
		return ErrLockBusy
	}
	return err
}

// flockExclusiveBlocking acquires an exclusive lock on f, waiting if needed.
func flockExclusiveBlocking(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX)
}

// flockUnlock releases any lock held on f.
func flockUnlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
