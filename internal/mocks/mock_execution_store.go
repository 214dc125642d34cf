package mocks

import (
	"context"
	"time"

	"github.com/RezaEskandarii/jobfire/internal/store"
	"github.com/RezaEskandarii/jobfire/types"
)

// MockExecutionStore overrides selected store.ExecutionStore calls and
// forwards the rest to Next.
type MockExecutionStore struct {
	Next store.ExecutionStore

	CreateFunc          func(ctx context.Context, exec *types.Execution) error
	CompleteFunc        func(ctx context.Context, exec *types.Execution) error
	CountRetriesFunc    func(ctx context.Context, originalID string) (int, error)
	FailInterruptedFunc func(ctx context.Context, at time.Time, reason string) (int, error)
}

func (m *MockExecutionStore) Create(ctx context.Context, exec *types.Execution) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, exec)
	}
	return m.Next.Create(ctx, exec)
}

func (m *MockExecutionStore) Complete(ctx context.Context, exec *types.Execution) error {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, exec)
	}
	return m.Next.Complete(ctx, exec)
}

func (m *MockExecutionStore) FindByID(ctx context.Context, id string) (*types.Execution, error) {
	return m.Next.FindByID(ctx, id)
}

func (m *MockExecutionStore) ListByJob(ctx context.Context, jobID string, page int, pageSize int) (*types.PaginationResult[types.Execution], error) {
	return m.Next.ListByJob(ctx, jobID, page, pageSize)
}

func (m *MockExecutionStore) CountRetries(ctx context.Context, originalID string) (int, error) {
	if m.CountRetriesFunc != nil {
		return m.CountRetriesFunc(ctx, originalID)
	}
	return m.Next.CountRetries(ctx, originalID)
}

func (m *MockExecutionStore) FailInterrupted(ctx context.Context, at time.Time, reason string) (int, error) {
	if m.FailInterruptedFunc != nil {
		return m.FailInterruptedFunc(ctx, at, reason)
	}
	return m.Next.FailInterrupted(ctx, at, reason)
}
