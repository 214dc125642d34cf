package memory

import (
	"context"
	"testing"
	"time"

	"github.com/RezaEskandarii/jobfire/custom_errors"
	"github.com/RezaEskandarii/jobfire/internal/state"
	"github.com/RezaEskandarii/jobfire/internal/store"
	"github.com/RezaEskandarii/jobfire/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJob(name string, status state.JobStatus) *types.Job {
	return &types.Job{
		OrganizationID: "org-1",
		Name:           name,
		Type:           "sync.orders",
		Trigger:        types.IntervalTrigger{Minutes: 5},
		Status:         status,
	}
}

func TestJobStore_InsertFind(t *testing.T) {
	s := NewJobStore()
	ctx := context.Background()

	job := newJob("orders", state.StatusActive)
	require.NoError(t, s.Insert(ctx, job))
	require.NotEmpty(t, job.ID)
	assert.False(t, job.CreatedAt.IsZero())

	got, err := s.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "orders", got.Name)

	got.Name = "mutated"
	again, _ := s.FindByID(ctx, job.ID)
	assert.Equal(t, "orders", again.Name, "returned jobs are copies")

	_, err = s.FindByID(ctx, "nope")
	assert.True(t, custom_errors.IsNotFound(err))

	assert.Error(t, s.Insert(ctx, job), "duplicate id")
}

func TestJobStore_SetNextExecutionOnlyWhileActive(t *testing.T) {
	s := NewJobStore()
	ctx := context.Background()
	job := newJob("orders", state.StatusActive)
	require.NoError(t, s.Insert(ctx, job))

	next := time.Now().Add(time.Minute)
	require.NoError(t, s.SetNextExecution(ctx, job.ID, &next))
	got, _ := s.FindByID(ctx, job.ID)
	require.NotNil(t, got.NextExecutionAt)

	require.NoError(t, s.UpdateStatus(ctx, job.ID, state.StatusDeleted, nil))
	require.NoError(t, s.SetNextExecution(ctx, job.ID, &next))
	require.NoError(t, s.SetLastExecuted(ctx, job.ID, time.Now()))

	got, _ = s.FindByID(ctx, job.ID)
	assert.Nil(t, got.NextExecutionAt)
	assert.NotNil(t, got.LastExecutedAt)
	assert.Equal(t, state.StatusDeleted, got.Status)
}

func TestJobStore_FetchByStatusPages(t *testing.T) {
	s := NewJobStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Insert(ctx, newJob("active", state.StatusActive)))
	}
	require.NoError(t, s.Insert(ctx, newJob("paused", state.StatusPaused)))

	first, err := s.FetchByStatus(ctx, state.StatusActive, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, first.TotalItems)
	assert.Equal(t, 3, first.TotalPages)
	assert.Len(t, first.Items, 2)
	assert.True(t, first.HasNextPage)

	last, err := s.FetchByStatus(ctx, state.StatusActive, 3, 2)
	require.NoError(t, err)
	assert.Len(t, last.Items, 1)
	assert.False(t, last.HasNextPage)

	paused, _ := s.FetchByStatus(ctx, state.StatusPaused, 1, 10)
	assert.Len(t, paused.Items, 1)
}

func TestJobStore_Update(t *testing.T) {
	s := NewJobStore()
	ctx := context.Background()
	job := newJob("orders", state.StatusActive)
	require.NoError(t, s.Insert(ctx, job))

	job.Name = "orders-v2"
	job.Trigger = types.CronTrigger{Expression: "0 * * * *"}
	job.Status = state.StatusPaused
	require.NoError(t, s.Update(ctx, job))

	got, _ := s.FindByID(ctx, job.ID)
	assert.Equal(t, "orders-v2", got.Name)
	assert.Equal(t, types.CronTrigger{Expression: "0 * * * *"}, got.Trigger)
	assert.Equal(t, state.StatusActive, got.Status, "Update leaves status alone")

	err := s.Update(ctx, &types.Job{ID: "missing"})
	assert.True(t, custom_errors.IsNotFound(err))
}

func TestExecutionStore_Lifecycle(t *testing.T) {
	s := NewExecutionStore()
	ctx := context.Background()
	start := time.Now().UTC()

	orig := &types.Execution{JobID: "j1", Status: state.ExecutionRunning, StartedAt: start}
	require.NoError(t, s.Create(ctx, orig))

	done := start.Add(time.Second)
	orig.Status = state.ExecutionFailed
	orig.CompletedAt = &done
	orig.Error = "boom"
	require.NoError(t, s.Complete(ctx, orig))

	orig.Status = state.ExecutionSuccess
	err := s.Complete(ctx, orig)
	assert.ErrorIs(t, err, store.ErrExecutionNotRunning)

	parent := orig.ID
	retry := &types.Execution{JobID: "j1", ParentExecutionID: &parent, Attempt: 1, Status: state.ExecutionRunning, StartedAt: done}
	require.NoError(t, s.Create(ctx, retry))

	n, err := s.CountRetries(ctx, parent)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := s.ListByJob(ctx, "j1", 1, 10)
	require.NoError(t, err)
	require.Len(t, list.Items, 2)
	assert.Equal(t, retry.ID, list.Items[0].ID, "newest first")
	assert.Equal(t, state.ExecutionFailed, list.Items[1].Status)
	assert.Equal(t, time.Second, list.Items[1].Duration())

	touched, err := s.FailInterrupted(ctx, done, "interrupted by restart")
	require.NoError(t, err)
	assert.Equal(t, 1, touched)
	got, _ := s.FindByID(ctx, retry.ID)
	assert.Equal(t, state.ExecutionFailed, got.Status)
	assert.Equal(t, "interrupted by restart", got.Error)
}

func TestJobLogStore(t *testing.T) {
	s := NewJobLogStore()
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, &types.JobLog{JobID: "j1", Level: types.LogInfo, Message: "first"}))
	require.NoError(t, s.Append(ctx, &types.JobLog{JobID: "j2", Level: types.LogInfo, Message: "other"}))
	require.NoError(t, s.Append(ctx, &types.JobLog{JobID: "j1", Level: types.LogError, Message: "second"}))

	logs, err := s.ListByJob(ctx, "j1", 1, 10)
	require.NoError(t, err)
	require.Len(t, logs.Items, 2)
	assert.Equal(t, "second", logs.Items[0].Message)
	assert.NotEmpty(t, logs.Items[0].ID)
}

func TestStores_RespectCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stores := New()
	assert.Error(t, stores.Jobs.Insert(ctx, newJob("x", state.StatusActive)))
	_, err := stores.Executions.CountRetries(ctx, "x")
	assert.Error(t, err)
}

func TestJobStore_UpdateStatusIf(t *testing.T) {
	s := NewJobStore()
	ctx := context.Background()
	job := newJob("promo", state.StatusActive)
	require.NoError(t, s.Insert(ctx, job))

	ok, err := s.UpdateStatusIf(ctx, job.ID, state.StatusActive, state.StatusInactive, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.UpdateStatusIf(ctx, job.ID, state.StatusActive, state.StatusInactive, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetLastExecuted(ctx, job.ID, time.Now()))
	got, _ := s.FindByID(ctx, job.ID)
	assert.Equal(t, state.StatusInactive, got.Status)
	assert.NotNil(t, got.LastExecutedAt)
}
