package types

import (
	"encoding/json"
	"time"

	"github.com/RezaEskandarii/jobfire/internal/state"
)

// Job is a scheduled unit of work owned by an organization.
type Job struct {
	ID             string
	OrganizationID string
	CreatedBy      string
	Name           string

	// Type is the handler key looked up in the handler registry.
	Type    string
	Trigger Trigger
	Config  json.RawMessage

	Timeout    time.Duration
	RetryCount int
	RetryDelay time.Duration

	Status          state.JobStatus
	LastExecutedAt  *time.Time
	NextExecutionAt *time.Time

	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy so callers can hand jobs across goroutines.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Config != nil {
		c.Config = append(json.RawMessage(nil), j.Config...)
	}
	if j.Tags != nil {
		c.Tags = append([]string(nil), j.Tags...)
	}
	c.LastExecutedAt = cloneTime(j.LastExecutedAt)
	c.NextExecutionAt = cloneTime(j.NextExecutionAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
