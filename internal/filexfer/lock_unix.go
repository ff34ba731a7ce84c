//go:build unix

package filexfer

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// lockShared blocks until a shared advisory lock on f is held.
func lockShared(f *os.File) error {
	return flock(f, unix.LOCK_SH)
}

// tryLockExclusive takes an exclusive advisory lock on f or fails with
// ErrFileBusy when another holder exists.
func tryLockExclusive(f *os.File) error {
	err := flock(f, unix.LOCK_EX|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) {
		return ErrFileBusy
	}
	return err
}

func unlock(f *os.File) error {
	return flock(f, unix.LOCK_UN)
}

func flock(f *os.File, how int) error {
	for {
		err := unix.Flock(int(f.Fd()), how)
		if err != unix.EINTR {
			return err
		}
	}
}
