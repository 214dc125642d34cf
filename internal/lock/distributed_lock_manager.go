package lock

import "context"

// DistributedLockManager serializes work across every process that shares a
// backend. Lock ids come from internal/constants.
type DistributedLockManager interface {
	// Acquire blocks until the lock is held or ctx is done.
	Acquire(ctx context.Context, lockID int) error
	// TryAcquire reports false without waiting when another holder owns the lock.
	TryAcquire(ctx context.Context, lockID int) (bool, error)
	Release(ctx context.Context, lockID int) error
}

// LeaseWatcher is implemented by managers whose locks can expire under the
// holder, such as Redis leases.
type LeaseWatcher interface {
	// Lost returns a channel closed once the held lock lockID belongs to
	// someone else. It is nil when lockID is not held.
	Lost(lockID int) <-chan struct{}
}
