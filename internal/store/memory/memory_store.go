// Package memory keeps jobs, executions and job logs in process memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/RezaEskandarii/jobfire/custom_errors"
	"github.com/RezaEskandarii/jobfire/internal/state"
	"github.com/RezaEskandarii/jobfire/internal/store"
	"github.com/RezaEskandarii/jobfire/types"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// New returns an empty set of memory stores.
func New() store.Stores {
	return store.Stores{
		Jobs:       NewJobStore(),
		Executions: NewExecutionStore(),
		Logs:       NewJobLogStore(),
	}
}

func page[T any](all []T, page, pageSize int) *types.PaginationResult[T] {
	page, pageSize = types.NormalizePage(page, pageSize)
	start := (page - 1) * pageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return types.NewPaginationResult(append([]T(nil), all[start:end]...), len(all), page, pageSize)
}

func timePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*types.Job
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*types.Job)}
}

func (s *JobStore) Insert(ctx context.Context, job *types.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if _, exists := s.jobs[job.ID]; exists {
		return errors.Newf("job %s already exists", job.ID)
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *JobStore) Update(ctx context.Context, job *types.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.jobs[job.ID]
	if !ok {
		return custom_errors.NewNotFound("job", job.ID)
	}
	cur.Name = job.Name
	cur.Type = job.Type
	cur.Trigger = job.Trigger
	cur.Config = append([]byte(nil), job.Config...)
	cur.Timeout = job.Timeout
	cur.RetryCount = job.RetryCount
	cur.RetryDelay = job.RetryDelay
	cur.Tags = append([]string(nil), job.Tags...)
	cur.UpdatedAt = time.Now().UTC()
	job.UpdatedAt = cur.UpdatedAt
	return nil
}

func (s *JobStore) FindByID(ctx context.Context, id string) (*types.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, custom_errors.NewNotFound("job", id)
	}
	return job.Clone(), nil
}

func (s *JobStore) FetchByStatus(ctx context.Context, status state.JobStatus, pageNo int, pageSize int) (*types.PaginationResult[types.Job], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	matched := make([]types.Job, 0)
	for _, job := range s.jobs {
		if job.Status == status {
			matched = append(matched, *job.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	return page(matched, pageNo, pageSize), nil
}

func (s *JobStore) UpdateStatus(ctx context.Context, id string, status state.JobStatus, next *time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return custom_errors.NewNotFound("job", id)
	}
	job.Status = status
	job.NextExecutionAt = timePtr(next)
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *JobStore) SetNextExecution(ctx context.Context, id string, next *time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return custom_errors.NewNotFound("job", id)
	}
	if job.Status == state.StatusActive {
		job.NextExecutionAt = timePtr(next)
	}
	return nil
}

func (s *JobStore) SetLastExecuted(ctx context.Context, id string, lastExecutedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return custom_errors.NewNotFound("job", id)
	}
	last := lastExecutedAt
	job.LastExecutedAt = &last
	return nil
}

func (s *JobStore) UpdateStatusIf(ctx context.Context, id string, from, to state.JobStatus, next *time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false, custom_errors.NewNotFound("job", id)
	}
	if job.Status != from {
		return false, nil
	}
	job.Status = to
	job.NextExecutionAt = timePtr(next)
	job.UpdatedAt = time.Now().UTC()
	return true, nil
}

type ExecutionStore struct {
	mu    sync.RWMutex
	execs map[string]*types.Execution
	order []string
}

func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{execs: make(map[string]*types.Execution)}
}

func cloneExecution(e *types.Execution) *types.Execution {
	c := *e
	c.CompletedAt = timePtr(e.CompletedAt)
	if e.ParentExecutionID != nil {
		p := *e.ParentExecutionID
		c.ParentExecutionID = &p
	}
	return &c
}

func (s *ExecutionStore) Create(ctx context.Context, exec *types.Execution) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	if _, exists := s.execs[exec.ID]; exists {
		return errors.Newf("execution %s already exists", exec.ID)
	}
	s.execs[exec.ID] = cloneExecution(exec)
	s.order = append(s.order, exec.ID)
	return nil
}

func (s *ExecutionStore) Complete(ctx context.Context, exec *types.Execution) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.execs[exec.ID]
	if !ok {
		return custom_errors.NewNotFound("execution", exec.ID)
	}
	if !state.IsValidExecutionTransition(cur.Status, exec.Status) {
		return errors.Wrapf(store.ErrExecutionNotRunning, "execution %s is %s", exec.ID, cur.Status)
	}
	cur.Status = exec.Status
	cur.CompletedAt = timePtr(exec.CompletedAt)
	cur.Error = exec.Error
	return nil
}

func (s *ExecutionStore) FindByID(ctx context.Context, id string) (*types.Execution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.execs[id]
	if !ok {
		return nil, custom_errors.NewNotFound("execution", id)
	}
	return cloneExecution(e), nil
}

func (s *ExecutionStore) ListByJob(ctx context.Context, jobID string, pageNo int, pageSize int) (*types.PaginationResult[types.Execution], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	matched := make([]types.Execution, 0)
	// Walk insertion order backwards so ties on StartedAt keep newest first.
	for i := len(s.order) - 1; i >= 0; i-- {
		e := s.execs[s.order[i]]
		if e.JobID == jobID {
			matched = append(matched, *cloneExecution(e))
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})
	return page(matched, pageNo, pageSize), nil
}

func (s *ExecutionStore) CountRetries(ctx context.Context, originalID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.execs {
		if e.ParentExecutionID != nil && *e.ParentExecutionID == originalID {
			n++
		}
	}
	return n, nil
}

func (s *ExecutionStore) FailInterrupted(ctx context.Context, at time.Time, reason string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.execs {
		if e.Status == state.ExecutionRunning {
			done := at
			e.Status = state.ExecutionFailed
			e.CompletedAt = &done
			e.Error = reason
			n++
		}
	}
	return n, nil
}

type JobLogStore struct {
	mu   sync.RWMutex
	logs []types.JobLog
}

func NewJobLogStore() *JobLogStore {
	return &JobLogStore{}
}

func (s *JobLogStore) Append(ctx context.Context, entry *types.JobLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.logs = append(s.logs, *entry)
	s.mu.Unlock()
	return nil
}

func (s *JobLogStore) ListByJob(ctx context.Context, jobID string, pageNo int, pageSize int) (*types.PaginationResult[types.JobLog], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	matched := make([]types.JobLog, 0)
	for i := len(s.logs) - 1; i >= 0; i-- {
		if s.logs[i].JobID == jobID {
			matched = append(matched, s.logs[i])
		}
	}
	s.mu.RUnlock()
	return page(matched, pageNo, pageSize), nil
}
