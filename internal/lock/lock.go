// Package lock provides the single-instance run lock. Exactly one process
// may hold the lock at a time; overlapping schedules are expected and a
// failed acquisition is not an error.
package lock

import "context"

// RunLock guards a run against concurrent instances of the same job.
type RunLock interface {
	// TryAcquire attempts a non-blocking acquisition. Returns false when
	// another instance already holds the lock.
	TryAcquire(ctx context.Context) (bool, error)

	// Release frees the lock. A release failure blocks all future runs and
	// must be surfaced to the operator.
	Release(ctx context.Context) error
}
