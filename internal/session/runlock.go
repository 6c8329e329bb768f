package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLockContention is returned when another action run already holds
// the per-user run lock. Acquisition is non-blocking: the caller is
// expected to defer rather than wait.
var ErrLockContention = errors.New("session: another action run holds the run lock")

// RunLock is the per-user advisory lock serializing action runs. At most
// one active action run per user is allowed; the lock file lives at
// <dataRoot>/locks/run.lock.
type RunLock struct {
	lock *flock.Flock
}

// RunLockPath returns the advisory lock file's path under dataRoot.
func RunLockPath(dataRoot string) string {
	return filepath.Join(dataRoot, "locks", "run.lock")
}

// AcquireRunLock attempts a non-blocking flock on the run lock file,
// creating the locks directory if needed. Contention returns
// ErrLockContention immediately.
func AcquireRunLock(dataRoot string) (*RunLock, error) {
	path := RunLockPath(dataRoot)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("session: create locks dir: %w", err)
	}
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("session: acquire run lock %s: %w", path, err)
	}
	if !locked {
		return nil, ErrLockContention
	}
	return &RunLock{lock: fl}, nil
}

// Path returns the lock file's path.
func (l *RunLock) Path() string { return l.lock.Path() }

// Release drops the lock. Safe to call once; the lock file itself is
// left in place (advisory semantics).
func (l *RunLock) Release() error {
	return l.lock.Unlock()
}
