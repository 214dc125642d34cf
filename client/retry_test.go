package client

import (
	"context"
	"testing"
	"time"

	"github.com/RezaEskandarii/jobfire/internal/lock"
	"github.com/RezaEskandarii/jobfire/internal/metrics"
	"github.com/RezaEskandarii/jobfire/internal/state"
	"github.com/RezaEskandarii/jobfire/internal/store"
	"github.com/RezaEskandarii/jobfire/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firedRetry struct {
	req RetryRequest
	at  time.Time
}

func newTestCoordinator(stores store.Stores) (*RetryCoordinator, *lock.JobLocks, *metrics.Metrics, chan firedRetry) {
	fired := make(chan firedRetry, 8)
	locks := lock.NewJobLocks()
	m := metrics.New(nil)
	c := NewRetryCoordinator(stores.Executions, locks, func(req RetryRequest) {
		fired <- firedRetry{req: req, at: time.Now()}
	}, m, nil)
	return c, locks, m, fired
}

func finishedExecution(t *testing.T, stores store.Stores, job *types.Job, status state.ExecutionStatus, parent *string, attempt int) *types.Execution {
	t.Helper()
	now := time.Now().UTC()
	exec := &types.Execution{
		JobID:             job.ID,
		ParentExecutionID: parent,
		Attempt:           attempt,
		Status:            state.ExecutionRunning,
		TriggerSource:     types.SourceScheduled,
		StartedAt:         now,
	}
	require.NoError(t, stores.Executions.Create(context.Background(), exec))
	exec.Status = status
	exec.CompletedAt = &now
	require.NoError(t, stores.Executions.Complete(context.Background(), exec))
	return exec
}

func retryJob(t *testing.T, stores store.Stores, count int, delay time.Duration) *types.Job {
	return insertJob(t, stores, "sync.orders", types.IntervalTrigger{Minutes: 5}, func(j *types.Job) {
		j.RetryCount = count
		j.RetryDelay = delay
	})
}

func TestRetryCoordinator_SuccessNeedsNoRetry(t *testing.T) {
	stores := newMemoryStores()
	c, _, _, fired := newTestCoordinator(stores)
	job := retryJob(t, stores, 3, 10*time.Millisecond)
	exec := finishedExecution(t, stores, job, state.ExecutionSuccess, nil, 0)

	decision, err := c.MaybeRetry(context.Background(), job, exec)
	require.NoError(t, err)
	assert.Equal(t, RetryNotNeeded, decision)
	assert.Equal(t, 0, c.Pending(job.ID))

	select {
	case <-fired:
		t.Fatal("unexpected retry")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRetryCoordinator_SchedulesAfterDelay(t *testing.T) {
	stores := newMemoryStores()
	c, _, m, fired := newTestCoordinator(stores)
	job := retryJob(t, stores, 2, 40*time.Millisecond)
	exec := finishedExecution(t, stores, job, state.ExecutionTimeout, nil, 0)

	decision, err := c.MaybeRetry(context.Background(), job, exec)
	require.NoError(t, err)
	assert.Equal(t, RetryScheduled, decision)
	assert.Equal(t, 1, c.Pending(job.ID))

	select {
	case f := <-fired:
		assert.Equal(t, job.ID, f.req.JobID)
		assert.Equal(t, exec.ID, f.req.ParentExecutionID)
		assert.Equal(t, 1, f.req.Attempt)
		assert.Equal(t, types.SourceScheduled, f.req.Source)
		assert.GreaterOrEqual(t, f.at.Sub(*exec.CompletedAt), 40*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("retry did not fire")
	}

	// The chain stays pending until the retry's own outcome is known.
	assert.Equal(t, 1, c.Pending(job.ID))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Retries.WithLabelValues("scheduled")))
}

func TestRetryCoordinator_ExhaustedAfterBudget(t *testing.T) {
	stores := newMemoryStores()
	c, _, m, _ := newTestCoordinator(stores)
	job := retryJob(t, stores, 2, 10*time.Millisecond)

	original := finishedExecution(t, stores, job, state.ExecutionFailed, nil, 0)
	finishedExecution(t, stores, job, state.ExecutionFailed, &original.ID, 1)
	last := finishedExecution(t, stores, job, state.ExecutionFailed, &original.ID, 2)

	decision, err := c.MaybeRetry(context.Background(), job, last)
	require.NoError(t, err)
	assert.Equal(t, RetryExhausted, decision)
	assert.Equal(t, 0, c.Pending(job.ID))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Retries.WithLabelValues("exhausted")))
}

func TestRetryCoordinator_RetryOfRetryCountsFromOriginal(t *testing.T) {
	stores := newMemoryStores()
	c, _, _, fired := newTestCoordinator(stores)
	job := retryJob(t, stores, 3, 10*time.Millisecond)

	original := finishedExecution(t, stores, job, state.ExecutionFailed, nil, 0)
	retry := finishedExecution(t, stores, job, state.ExecutionFailed, &original.ID, 1)

	decision, err := c.MaybeRetry(context.Background(), job, retry)
	require.NoError(t, err)
	assert.Equal(t, RetryScheduled, decision)

	f := <-fired
	assert.Equal(t, original.ID, f.req.ParentExecutionID)
	assert.Equal(t, 2, f.req.Attempt)
}

func TestRetryCoordinator_SuccessfulRetryClosesChain(t *testing.T) {
	stores := newMemoryStores()
	c, _, _, fired := newTestCoordinator(stores)
	job := retryJob(t, stores, 3, 5*time.Millisecond)

	original := finishedExecution(t, stores, job, state.ExecutionFailed, nil, 0)
	_, err := c.MaybeRetry(context.Background(), job, original)
	require.NoError(t, err)
	<-fired
	require.Equal(t, 1, c.Pending(job.ID))

	retry := finishedExecution(t, stores, job, state.ExecutionSuccess, &original.ID, 1)
	decision, err := c.MaybeRetry(context.Background(), job, retry)
	require.NoError(t, err)
	assert.Equal(t, RetryNotNeeded, decision)
	assert.Equal(t, 0, c.Pending(job.ID))
}

func TestRetryCoordinator_RevokedJobIsNotRetried(t *testing.T) {
	stores := newMemoryStores()
	c, locks, _, _ := newTestCoordinator(stores)
	job := retryJob(t, stores, 3, 5*time.Millisecond)
	exec := finishedExecution(t, stores, job, state.ExecutionFailed, nil, 0)

	locks.Revoke(job.ID)
	decision, err := c.MaybeRetry(context.Background(), job, exec)
	require.NoError(t, err)
	assert.Equal(t, RetryNotNeeded, decision)
	assert.Equal(t, 0, c.Pending(job.ID))
}

func TestRetryCoordinator_CancelJobAndStop(t *testing.T) {
	stores := newMemoryStores()
	c, _, _, fired := newTestCoordinator(stores)
	job := retryJob(t, stores, 3, 30*time.Millisecond)
	exec := finishedExecution(t, stores, job, state.ExecutionFailed, nil, 0)

	_, err := c.MaybeRetry(context.Background(), job, exec)
	require.NoError(t, err)
	assert.Equal(t, 1, c.CancelJob(job.ID))
	assert.Equal(t, 0, c.Pending(job.ID))

	c.Stop()
	assert.False(t, c.Defer(RetryRequest{JobID: job.ID, ParentExecutionID: exec.ID, Attempt: 1}, time.Millisecond))

	select {
	case <-fired:
		t.Fatal("canceled retry fired")
	case <-time.After(80 * time.Millisecond):
	}
}
