package types

import (
	"time"

	"github.com/RezaEskandarii/jobfire/internal/state"
)

// TriggerSource tells whether an execution came from the timer or a user.
type TriggerSource string

const (
	SourceScheduled TriggerSource = "SCHEDULED"
	SourceManual    TriggerSource = "MANUAL"
)

// Execution is one attempt to run a job's handler.
//
// Retries are executions too: ParentExecutionID points at the original
// attempt of the chain and Attempt counts from 0 (the original).
type Execution struct {
	ID                string
	JobID             string
	OrganizationID    string
	ParentExecutionID *string
	Attempt           int

	Status        state.ExecutionStatus
	TriggerSource TriggerSource

	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// Duration is zero while the execution is still running.
func (e *Execution) Duration() time.Duration {
	if e.CompletedAt == nil {
		return 0
	}
	return e.CompletedAt.Sub(e.StartedAt)
}

// OriginalID returns the id of the first attempt in this retry chain.
func (e *Execution) OriginalID() string {
	if e.ParentExecutionID != nil {
		return *e.ParentExecutionID
	}
	return e.ID
}

// IsRetry reports whether e was created by the retry coordinator.
func (e *Execution) IsRetry() bool {
	return e.ParentExecutionID != nil
}
