// Package flock provides advisory file locking for container writers.
//
// The lock is the only inter-process mutual-exclusion primitive in the
// engine and is opt-in: when disabled, callers must serialize writers
// themselves. Acquisition blocks until the lock is granted; there is no
// timeout. Release is idempotent so the same lock can sit behind multiple
// cleanup paths without double-unlock errors.
package flock

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Lock holds an exclusive advisory lock on an open file.
type Lock struct {
	f      *os.File
	locked bool
}

// Acquire takes an exclusive advisory lock on f. The file must stay open
// for the lifetime of the lock; closing it drops the lock implicitly.
func Acquire(f *os.File) (*Lock, error) {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return nil, fmt.Errorf("flock %s: %w", f.Name(), err)
	}
	return &Lock{f: f, locked: true}, nil
}

// TryAcquire takes the lock without blocking. It returns (nil, false, nil)
// when another process holds the lock.
func TryAcquire(f *os.File) (*Lock, bool, error) {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == unix.EWOULDBLOCK {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("flock %s: %w", f.Name(), err)
	}
	return &Lock{f: f, locked: true}, true, nil
}

// Release drops the lock. Calling Release more than once is a no-op.
func (l *Lock) Release() error {
	if l == nil || !l.locked {
		return nil
	}
	l.locked = false
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("funlock %s: %w", l.f.Name(), err)
	}
	return nil
}
