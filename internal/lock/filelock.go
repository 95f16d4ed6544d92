package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileLock is a RunLock backed by an OS advisory file lock. The kernel
// releases the lock when the holding process dies, so a crashed run cannot
// leave the job permanently blocked.
type FileLock struct {
	fl *flock.Flock
}

// DefaultLockPath returns the conventional lock file location for a job name.
func DefaultLockPath(job string) string {
	return filepath.Join(os.TempDir(), job+".lock")
}

// NewFileLock creates a file lock at path.
func NewFileLock(path string) *FileLock {
	return &FileLock{fl: flock.New(path)}
}

var _ RunLock = (*FileLock)(nil)

// TryAcquire attempts a non-blocking exclusive lock on the file.
func (l *FileLock) TryAcquire(_ context.Context) (bool, error) {
	ok, err := l.fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire file lock %s: %w", l.fl.Path(), err)
	}
	return ok, nil
}

// Release unlocks the file.
func (l *FileLock) Release(_ context.Context) error {
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("release file lock %s: %w", l.fl.Path(), err)
	}
	return nil
}
