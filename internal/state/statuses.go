package state

// JobStatus is the lifecycle status of a job definition.
type JobStatus string

const (
	StatusActive   JobStatus = "active"
	StatusPaused   JobStatus = "paused"
	StatusInactive JobStatus = "inactive"
	StatusDeleted  JobStatus = "deleted"
)

func (s JobStatus) String() string {
	return string(s)
}

// Schedulable reports whether jobs in this status may have an armed timer.
func (s JobStatus) Schedulable() bool {
	return s == StatusActive
}

var AllJobStatuses = []JobStatus{
	StatusActive,
	StatusPaused,
	StatusInactive,
	StatusDeleted,
}

// ExecutionStatus is the status of a single execution attempt.
type ExecutionStatus string

const (
	ExecutionRunning ExecutionStatus = "running"
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
	ExecutionTimeout ExecutionStatus = "timeout"
)

func (s ExecutionStatus) String() string {
	return string(s)
}

// Terminal reports whether no further transition is allowed.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionSuccess || s == ExecutionFailed || s == ExecutionTimeout
}

// Retryable reports whether the outcome is eligible for the retry budget.
func (s ExecutionStatus) Retryable() bool {
	return s == ExecutionFailed || s == ExecutionTimeout
}

var AllExecutionStatuses = []ExecutionStatus{
	ExecutionRunning,
	ExecutionSuccess,
	ExecutionFailed,
	ExecutionTimeout,
}

type Transition struct {
	From JobStatus
	To   JobStatus
}

var ValidTransitions = []Transition{
	{From: StatusActive, To: StatusPaused},
	{From: StatusPaused, To: StatusActive},
	{From: StatusActive, To: StatusInactive},
	{From: StatusInactive, To: StatusActive},
	{From: StatusActive, To: StatusDeleted},
	{From: StatusPaused, To: StatusDeleted},
	{From: StatusInactive, To: StatusDeleted},
}

func IsValidTransition(from, to JobStatus) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// IsValidExecutionTransition only allows a running execution to finish once.
func IsValidExecutionTransition(from, to ExecutionStatus) bool {
	return from == ExecutionRunning && to.Terminal()
}
