package mocks

import (
	"context"
	"time"

	"github.com/RezaEskandarii/jobfire/internal/state"
	"github.com/RezaEskandarii/jobfire/internal/store"
	"github.com/RezaEskandarii/jobfire/types"
)

// MockJobStore overrides selected store.JobStore calls and forwards the rest to Next.
type MockJobStore struct {
	Next store.JobStore

	FindByIDFunc      func(ctx context.Context, id string) (*types.Job, error)
	FetchByStatusFunc func(ctx context.Context, status state.JobStatus, page int, pageSize int) (*types.PaginationResult[types.Job], error)
	InsertFunc        func(ctx context.Context, job *types.Job) error
}

func (m *MockJobStore) Insert(ctx context.Context, job *types.Job) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, job)
	}
	return m.Next.Insert(ctx, job)
}

func (m *MockJobStore) Update(ctx context.Context, job *types.Job) error {
	return m.Next.Update(ctx, job)
}

func (m *MockJobStore) FindByID(ctx context.Context, id string) (*types.Job, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return m.Next.FindByID(ctx, id)
}

func (m *MockJobStore) FetchByStatus(ctx context.Context, status state.JobStatus, page int, pageSize int) (*types.PaginationResult[types.Job], error) {
	if m.FetchByStatusFunc != nil {
		return m.FetchByStatusFunc(ctx, status, page, pageSize)
	}
	return m.Next.FetchByStatus(ctx, status, page, pageSize)
}

func (m *MockJobStore) UpdateStatus(ctx context.Context, id string, status state.JobStatus, next *time.Time) error {
	return m.Next.UpdateStatus(ctx, id, status, next)
}

func (m *MockJobStore) SetNextExecution(ctx context.Context, id string, next *time.Time) error {
	return m.Next.SetNextExecution(ctx, id, next)
}

func (m *MockJobStore) SetLastExecuted(ctx context.Context, id string, lastExecutedAt time.Time) error {
	return m.Next.SetLastExecuted(ctx, id, lastExecutedAt)
}

func (m *MockJobStore) UpdateStatusIf(ctx context.Context, id string, from, to state.JobStatus, next *time.Time) (bool, error) {
	return m.Next.UpdateStatusIf(ctx, id, from, to, next)
}
