package client

import (
	"context"
	"sync"
	"time"

	"github.com/RezaEskandarii/jobfire/internal/lock"
	"github.com/RezaEskandarii/jobfire/internal/logger"
	"github.com/RezaEskandarii/jobfire/internal/metrics"
	"github.com/RezaEskandarii/jobfire/internal/store"
	"github.com/RezaEskandarii/jobfire/types"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

type RetryDecision int

const (
	RetryNotNeeded RetryDecision = iota
	RetryScheduled
	RetryExhausted
)

func (d RetryDecision) String() string {
	switch d {
	case RetryScheduled:
		return "scheduled"
	case RetryExhausted:
		return "exhausted"
	default:
		return "not_needed"
	}
}

// RetryRequest is handed to the fire function when a retry timer expires.
type RetryRequest struct {
	JobID             string
	ParentExecutionID string
	Attempt           int
	Source            types.TriggerSource
}

type pendingRetry struct {
	timer   *time.Timer
	gen     uint64
	fireAt  time.Time
	request RetryRequest
}

// RetryCoordinator arms one delayed re-run per failed retry chain. Pending
// retries live in memory only and are lost on restart.
type RetryCoordinator struct {
	executions store.ExecutionStore
	locks      *lock.JobLocks
	fire       func(RetryRequest)
	metrics    *metrics.Metrics
	logger     *zap.SugaredLogger

	mu      sync.Mutex
	gen     uint64
	stopped bool
	// pending is keyed by job id, then by the original execution id.
	pending map[string]map[string]*pendingRetry
}

func NewRetryCoordinator(executions store.ExecutionStore, locks *lock.JobLocks, fire func(RetryRequest), m *metrics.Metrics, l *zap.SugaredLogger) *RetryCoordinator {
	if m == nil {
		m = metrics.New(nil)
	}
	return &RetryCoordinator{
		executions: executions,
		locks:      locks,
		fire:       fire,
		metrics:    m,
		logger:     logger.OrNop(l),
		pending:    make(map[string]map[string]*pendingRetry),
	}
}

// MaybeRetry inspects a terminal execution and arms a retry when the job's
// budget allows one. The budget is counted against the store, so attempts
// survive coordinator bookkeeping being reset.
func (c *RetryCoordinator) MaybeRetry(ctx context.Context, job *types.Job, exec *types.Execution) (RetryDecision, error) {
	original := exec.OriginalID()

	decision, err := c.decide(ctx, job, exec, original)
	if exec.IsRetry() && decision != RetryScheduled {
		c.clear(job.ID, original)
	}
	if err == nil && decision != RetryNotNeeded {
		c.metrics.RetryDecision(decision.String())
	}
	return decision, err
}

func (c *RetryCoordinator) decide(ctx context.Context, job *types.Job, exec *types.Execution, original string) (RetryDecision, error) {
	if !exec.Status.Retryable() || job.RetryCount <= 0 {
		return RetryNotNeeded, nil
	}

	n, err := c.executions.CountRetries(ctx, original)
	if err != nil {
		return RetryNotNeeded, errors.Wrapf(err, "count retries of %s", original)
	}
	if n >= job.RetryCount {
		c.logger.Warnw("retry budget exhausted", "job_id", job.ID, "execution_id", original, "retries", n)
		return RetryExhausted, nil
	}

	base := exec.StartedAt
	if exec.CompletedAt != nil {
		base = *exec.CompletedAt
	}
	req := RetryRequest{
		JobID:             job.ID,
		ParentExecutionID: original,
		Attempt:           n + 1,
		Source:            exec.TriggerSource,
	}
	if !c.arm(req, base.Add(job.RetryDelay)) {
		return RetryNotNeeded, nil
	}
	c.logger.Infow("retry scheduled", "job_id", job.ID, "execution_id", original, "attempt", req.Attempt, "delay", job.RetryDelay)
	return RetryScheduled, nil
}

// Defer re-arms req after delay without spending budget. It is used when a
// retry fires while the job is still running.
func (c *RetryCoordinator) Defer(req RetryRequest, delay time.Duration) bool {
	return c.arm(req, time.Now().Add(delay))
}

func (c *RetryCoordinator) arm(req RetryRequest, fireAt time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped || c.locks.Revoked(req.JobID) {
		return false
	}

	byJob := c.pending[req.JobID]
	if byJob == nil {
		byJob = make(map[string]*pendingRetry)
		c.pending[req.JobID] = byJob
	}
	if prev, ok := byJob[req.ParentExecutionID]; ok && prev.timer != nil {
		prev.timer.Stop()
	}

	c.gen++
	gen := c.gen
	p := &pendingRetry{gen: gen, fireAt: fireAt, request: req}
	p.timer = time.AfterFunc(time.Until(fireAt), func() { c.onTimer(req.JobID, req.ParentExecutionID, gen) })
	byJob[req.ParentExecutionID] = p
	return true
}

func (c *RetryCoordinator) onTimer(jobID, original string, gen uint64) {
	c.mu.Lock()
	p, ok := c.pending[jobID][original]
	if !ok || p.gen != gen || c.stopped {
		c.mu.Unlock()
		return
	}
	// The entry stays until the retry's own outcome is decided so the
	// job's chain still counts as pending.
	req := p.request
	c.mu.Unlock()

	c.fire(req)
}

// Drop forgets the chain rooted at original. The fire function calls it
// when a retry could not even start.
func (c *RetryCoordinator) Drop(jobID, original string) {
	c.clear(jobID, original)
}

func (c *RetryCoordinator) clear(jobID, original string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byJob := c.pending[jobID]
	if p, ok := byJob[original]; ok {
		p.timer.Stop()
		delete(byJob, original)
	}
	if len(byJob) == 0 {
		delete(c.pending, jobID)
	}
}

// CancelJob stops every pending retry of a job.
func (c *RetryCoordinator) CancelJob(jobID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, p := range c.pending[jobID] {
		if p.timer.Stop() {
			n++
		}
	}
	delete(c.pending, jobID)
	return n
}

// Pending reports how many retry chains of jobID are waiting or running.
func (c *RetryCoordinator) Pending(jobID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending[jobID])
}

// Stop cancels every pending retry and refuses new ones.
func (c *RetryCoordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	for jobID, byJob := range c.pending {
		for _, p := range byJob {
			p.timer.Stop()
		}
		delete(c.pending, jobID)
	}
}
