package types

import "time"

type LogLevel string

const (
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// JobLog is an append-only diagnostic line attached to a job.
type JobLog struct {
	ID             string
	JobID          string
	OrganizationID string
	ExecutionID    *string
	Level          LogLevel
	Message        string
	CreatedAt      time.Time
}
