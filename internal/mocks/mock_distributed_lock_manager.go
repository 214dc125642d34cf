package mocks

import (
	"context"
	"sync"
)

// MockDistributedLockManager is a mock implementation of lock.DistributedLockManager for testing.
// Without overrides it behaves like a single-process lock table.
type MockDistributedLockManager struct {
	AcquireFunc    func(ctx context.Context, lockID int) error
	TryAcquireFunc func(ctx context.Context, lockID int) (bool, error)
	ReleaseFunc    func(ctx context.Context, lockID int) error

	mu       sync.Mutex
	held     map[int]bool
	Released []int
}

func (m *MockDistributedLockManager) Acquire(ctx context.Context, lockID int) error {
	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx, lockID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure()
	m.held[lockID] = true
	return nil
}

func (m *MockDistributedLockManager) TryAcquire(ctx context.Context, lockID int) (bool, error) {
	if m.TryAcquireFunc != nil {
		return m.TryAcquireFunc(ctx, lockID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure()
	if m.held[lockID] {
		return false, nil
	}
	m.held[lockID] = true
	return true, nil
}

func (m *MockDistributedLockManager) Release(ctx context.Context, lockID int) error {
	m.mu.Lock()
	m.Released = append(m.Released, lockID)
	m.ensure()
	delete(m.held, lockID)
	m.mu.Unlock()
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx, lockID)
	}
	return nil
}

func (m *MockDistributedLockManager) Held(lockID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held[lockID]
}

func (m *MockDistributedLockManager) ensure() {
	if m.held == nil {
		m.held = make(map[int]bool)
	}
}
