package client

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/RezaEskandarii/jobfire/custom_errors"
	"github.com/RezaEskandarii/jobfire/internal/state"
	"github.com/RezaEskandarii/jobfire/internal/store"
	"github.com/RezaEskandarii/jobfire/pgk/trigger"
	"github.com/RezaEskandarii/jobfire/types"
	"github.com/cockroachdb/errors"
)

// TriggerSpec carries the trigger fields of a create or update request.
// Only the fields of TriggerType are read.
type TriggerSpec struct {
	TriggerType     types.TriggerType `json:"trigger_type"`
	CronExpression  string            `json:"cron_expression,omitempty"`
	IntervalMinutes int               `json:"interval_minutes,omitempty"`
	ScheduledAt     *time.Time        `json:"scheduled_at,omitempty"`
}

type CreateJobRequest struct {
	OrganizationID string          `json:"organization_id"`
	CreatedBy      string          `json:"created_by"`
	Name           string          `json:"name"`
	Type           string          `json:"type"`
	Trigger        TriggerSpec     `json:"trigger"`
	Config         json.RawMessage `json:"config,omitempty"`
	Timeout        time.Duration   `json:"timeout"`
	RetryCount     int             `json:"retry_count"`
	RetryDelay     time.Duration   `json:"retry_delay"`
	Tags           []string        `json:"tags,omitempty"`
}

type UpdateJobRequest struct {
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	Trigger    TriggerSpec     `json:"trigger"`
	Config     json.RawMessage `json:"config,omitempty"`
	Timeout    time.Duration   `json:"timeout"`
	RetryCount int             `json:"retry_count"`
	RetryDelay time.Duration   `json:"retry_delay"`
	Tags       []string        `json:"tags,omitempty"`
}

// JobManager is the API the dashboard talks to. Definitions go to the job
// store, schedule changes go through the engine.
type JobManager struct {
	Jobs       store.JobStore
	Executions store.ExecutionStore
	Logs       store.JobLogStore
	Engine     *Engine
}

func NewJobManager(stores store.Stores, engine *Engine) *JobManager {
	return &JobManager{
		Jobs:       stores.Jobs,
		Executions: stores.Executions,
		Logs:       stores.Logs,
		Engine:     engine,
	}
}

func validateDefinition(v *custom_errors.ValidationError, name, jobType string, spec TriggerSpec, timeout time.Duration, retryCount int, retryDelay time.Duration) types.Trigger {
	if strings.TrimSpace(name) == "" {
		v.Addf("name is required")
	}
	if strings.TrimSpace(jobType) == "" {
		v.Addf("type is required")
	}
	if timeout < 0 {
		v.Addf("timeout must be >= 0, got %s", timeout)
	}
	if retryCount < 0 {
		v.Addf("retryCount must be >= 0, got %d", retryCount)
	}
	if retryDelay < 0 {
		v.Addf("retryDelay must be >= 0, got %s", retryDelay)
	}

	t, err := types.NewTrigger(spec.TriggerType, spec.CronExpression, spec.IntervalMinutes, spec.ScheduledAt)
	if err != nil {
		v.Add(err)
		return nil
	}
	if err := trigger.Validate(t); err != nil {
		v.Add(errors.Wrap(err, "invalid trigger"))
		return nil
	}
	return t
}

// CreateJob validates and stores a new ACTIVE job, then schedules it.
func (jm *JobManager) CreateJob(ctx context.Context, req CreateJobRequest) (*types.Job, error) {
	v := &custom_errors.ValidationError{}
	t := validateDefinition(v, req.Name, req.Type, req.Trigger, req.Timeout, req.RetryCount, req.RetryDelay)
	if v.HasError() {
		return nil, v
	}

	job := &types.Job{
		OrganizationID: req.OrganizationID,
		CreatedBy:      req.CreatedBy,
		Name:           strings.TrimSpace(req.Name),
		Type:           strings.TrimSpace(req.Type),
		Trigger:        t,
		Config:         req.Config,
		Timeout:        req.Timeout,
		RetryCount:     req.RetryCount,
		RetryDelay:     req.RetryDelay,
		Status:         state.StatusActive,
		Tags:           req.Tags,
	}
	if err := jm.Jobs.Insert(ctx, job); err != nil {
		return nil, errors.Wrap(err, "insert job")
	}
	if err := jm.Engine.Schedule(ctx, job); err != nil {
		return job, errors.Wrapf(err, "schedule job %s", job.ID)
	}
	return job, nil
}

// UpdateJob replaces the definition of a job. An ACTIVE job is re-armed
// against its new trigger.
func (jm *JobManager) UpdateJob(ctx context.Context, id string, req UpdateJobRequest) (*types.Job, error) {
	v := &custom_errors.ValidationError{}
	t := validateDefinition(v, req.Name, req.Type, req.Trigger, req.Timeout, req.RetryCount, req.RetryDelay)
	if v.HasError() {
		return nil, v
	}

	job, err := jm.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	job.Name = strings.TrimSpace(req.Name)
	job.Type = strings.TrimSpace(req.Type)
	job.Trigger = t
	job.Config = req.Config
	job.Timeout = req.Timeout
	job.RetryCount = req.RetryCount
	job.RetryDelay = req.RetryDelay
	job.Tags = req.Tags

	if err := jm.Jobs.Update(ctx, job); err != nil {
		return nil, errors.Wrapf(err, "update job %s", id)
	}
	if job.Status == state.StatusActive {
		if err := jm.Engine.Reschedule(ctx, job); err != nil {
			return job, errors.Wrapf(err, "reschedule job %s", id)
		}
	}
	return job, nil
}

func (jm *JobManager) PauseJob(ctx context.Context, id string) error {
	return jm.Engine.Pause(ctx, id)
}

func (jm *JobManager) ResumeJob(ctx context.Context, id string) error {
	return jm.Engine.Resume(ctx, id)
}

func (jm *JobManager) DeleteJob(ctx context.Context, id string) error {
	return jm.Engine.Delete(ctx, id)
}

// ExecuteJob runs a job now, outside its schedule, and returns the new
// execution id. It fails with a scheduling conflict while the job runs.
func (jm *JobManager) ExecuteJob(ctx context.Context, id string) (string, error) {
	return jm.Engine.Trigger(ctx, id)
}

// GetJob hides deleted jobs behind NotFound.
func (jm *JobManager) GetJob(ctx context.Context, id string) (*types.Job, error) {
	job, err := jm.Jobs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status == state.StatusDeleted {
		return nil, custom_errors.NewNotFound("job", id)
	}
	return job, nil
}

// ListExecutions pages through a job's history, newest first. History of
// deleted jobs stays readable.
func (jm *JobManager) ListExecutions(ctx context.Context, jobID string, page, pageSize int) (*types.PaginationResult[types.Execution], error) {
	if _, err := jm.Jobs.FindByID(ctx, jobID); err != nil {
		return nil, err
	}
	return jm.Executions.ListByJob(ctx, jobID, page, pageSize)
}

func (jm *JobManager) ListJobLogs(ctx context.Context, jobID string, page, pageSize int) (*types.PaginationResult[types.JobLog], error) {
	if _, err := jm.Jobs.FindByID(ctx, jobID); err != nil {
		return nil, err
	}
	return jm.Logs.ListByJob(ctx, jobID, page, pageSize)
}

// PreviewSchedule lists the next n fire instants of a job from now.
func (jm *JobManager) PreviewSchedule(ctx context.Context, id string, n int) ([]time.Time, error) {
	job, err := jm.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return trigger.Preview(job.Trigger, time.Now().In(jm.Engine.loc), n), nil
}
