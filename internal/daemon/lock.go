package daemon

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

var openLockFileFn = func(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
}

// lockFile takes an exclusive flock on path. When wait is false and another
// process holds the lock it fails with ErrAlreadyRunning.
//
// A holder may unlink path while still locked, so after locking we check
// that the locked inode is still the one at path and retry on a fresh file
// otherwise.
func lockFile(path string, wait bool) (func() error, error) {
	for {
		f, err := openLockFileFn(path)
		if err != nil {
			return nil, fmt.Errorf("opening lock file: %w", err)
		}

		how := unix.LOCK_EX
		if !wait {
			how |= unix.LOCK_NB
		}
		if err := unix.Flock(int(f.Fd()), how); err != nil {
			f.Close()
			if errors.Is(err, unix.EWOULDBLOCK) {
				return nil, ErrAlreadyRunning
			}
			return nil, fmt.Errorf("locking %s: %w", path, err)
		}

		current, err := sameInode(f, path)
		if err != nil {
			f.Close()
			return nil, err
		}
		if !current {
			// Closing drops the lock on the orphaned inode.
			f.Close()
			continue
		}

		return func() error {
			unlockErr := unix.Flock(int(f.Fd()), unix.LOCK_UN)
			closeErr := f.Close()
			if unlockErr != nil {
				return unlockErr
			}
			return closeErr
		}, nil
	}
}

func sameInode(f *os.File, path string) (bool, error) {
	held, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("checking lock file: %w", err)
	}
	onDisk, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking lock file: %w", err)
	}
	return os.SameFile(held, onDisk), nil
}
