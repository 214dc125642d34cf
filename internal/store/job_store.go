package store

import (
	"context"
	"errors"
	"time"

	"github.com/RezaEskandarii/jobfire/internal/state"
	"github.com/RezaEskandarii/jobfire/types"
)

// JobStore persists job definitions and their schedule bookkeeping.
type JobStore interface {
	// Insert stores a new job. ID, CreatedAt and UpdatedAt are filled when empty.
	Insert(ctx context.Context, job *types.Job) error

	// Update overwrites the definition fields (name, type, trigger, config, timeout, retry policy, tags).
	Update(ctx context.Context, job *types.Job) error

	// FindByID returns a *custom_errors.NotFoundError for unknown ids.
	FindByID(ctx context.Context, id string) (*types.Job, error)

	FetchByStatus(ctx context.Context, status state.JobStatus, page int, pageSize int) (*types.PaginationResult[types.Job], error)

	UpdateStatus(ctx context.Context, id string, status state.JobStatus, next *time.Time) error

	// SetNextExecution writes next_execution_at only while the job is ACTIVE.
	SetNextExecution(ctx context.Context, id string, next *time.Time) error

	// SetLastExecuted records a run without touching the schedule.
	SetLastExecuted(ctx context.Context, id string, lastExecutedAt time.Time) error

	// UpdateStatusIf moves the job from one status to another and reports
	// false when the job was no longer in status from.
	UpdateStatusIf(ctx context.Context, id string, from, to state.JobStatus, next *time.Time) (bool, error)
}

// ExecutionStore keeps the durable execution history.
type ExecutionStore interface {
	Create(ctx context.Context, exec *types.Execution) error

	// Complete moves a RUNNING execution to its terminal status. Terminal records are never rewritten.
	Complete(ctx context.Context, exec *types.Execution) error

	FindByID(ctx context.Context, id string) (*types.Execution, error)

	// ListByJob returns executions newest first.
	ListByJob(ctx context.Context, jobID string, page int, pageSize int) (*types.PaginationResult[types.Execution], error)

	// CountRetries counts executions whose parent is originalID.
	CountRetries(ctx context.Context, originalID string) (int, error)

	// FailInterrupted marks every RUNNING execution as FAILED and returns how many were touched.
	FailInterrupted(ctx context.Context, at time.Time, reason string) (int, error)
}

type JobLogStore interface {
	Append(ctx context.Context, entry *types.JobLog) error
	ListByJob(ctx context.Context, jobID string, page int, pageSize int) (*types.PaginationResult[types.JobLog], error)
}

// Stores bundles the three stores a scheduler needs.
type Stores struct {
	Jobs       JobStore
	Executions ExecutionStore
	Logs       JobLogStore
}

// ErrExecutionNotRunning is returned when completing an execution that is already terminal.
var ErrExecutionNotRunning = errors.New("execution is not running")
