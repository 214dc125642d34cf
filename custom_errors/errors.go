package custom_errors

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrSchedulingConflict      = errors.New("scheduling conflict: execution already running")
	ErrJobRevoked              = errors.New("job is paused or deleted")
	ErrHandlerNotFound         = errors.New("handler not found")
	ErrSchedulerAlreadyRunning = errors.New("another scheduler instance holds the scheduler lock")
	ErrSchedulerStopped        = errors.New("scheduler stopped")
	ErrInvalidTransition       = errors.New("invalid status transition")
)

// NotFoundError is returned for operations on an unknown record.
type NotFoundError struct {
	Resource string
	ID       string
}

func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// SchedulingConflictError means the per-job lock was already held when a fire
// request arrived.
type SchedulingConflictError struct {
	JobID string
}

func NewSchedulingConflict(jobID string) *SchedulingConflictError {
	return &SchedulingConflictError{JobID: jobID}
}

func (e *SchedulingConflictError) Error() string {
	return fmt.Sprintf("job %s: %s", e.JobID, ErrSchedulingConflict.Error())
}

func (e *SchedulingConflictError) Unwrap() error { return ErrSchedulingConflict }

// HandlerError wraps a failure returned (or panicked) by a job handler.
// It is recorded on the execution and never surfaced by the scheduling API.
type HandlerError struct {
	JobType string
	Err     error
}

func (e *HandlerError) Error() string {
	return e.Err.Error()
}

func (e *HandlerError) Unwrap() error { return e.Err }

// TimeoutError is recorded when a handler outlives its job timeout.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("handler exceeded timeout of %s", e.Timeout)
}

// TransitionError is returned when a lifecycle call asks for a status change
// the job's current status does not allow.
type TransitionError struct {
	JobID string
	From  string
	To    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("job %s: cannot move from %s to %s", e.JobID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsSchedulingConflict(err error) bool {
	return errors.Is(err, ErrSchedulingConflict)
}
