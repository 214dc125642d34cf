package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RezaEskandarii/jobfire/custom_errors"
	"github.com/RezaEskandarii/jobfire/internal/lock"
	"github.com/RezaEskandarii/jobfire/internal/logger"
	"github.com/RezaEskandarii/jobfire/internal/message_broaker"
	"github.com/RezaEskandarii/jobfire/internal/metrics"
	"github.com/RezaEskandarii/jobfire/internal/state"
	"github.com/RezaEskandarii/jobfire/internal/store"
	"github.com/RezaEskandarii/jobfire/types"
	"github.com/RezaEskandarii/jobfire/types/config"
	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// RunRequest describes one attempt the Runner should make.
type RunRequest struct {
	Job    *types.Job
	Source types.TriggerSource

	// ParentExecutionID and Attempt are set for retries only.
	ParentExecutionID *string
	Attempt           int
}

// Runner owns the lifecycle of single execution attempts: per-job lock,
// RUNNING record, handler call under timeout, terminal record.
type Runner struct {
	executions     store.ExecutionStore
	logs           store.JobLogStore
	handlers       *config.HandlerRegistry
	locks          *lock.JobLocks
	sem            *semaphore.Weighted
	defaultTimeout time.Duration
	publisher      *message_broaker.ExecutionPublisher
	metrics        *metrics.Metrics
	logger         *zap.SugaredLogger
	now            func() time.Time

	// newBackOff builds the retry policy of the terminal store write.
	newBackOff func() backoff.BackOff
	onFinish   func(job *types.Job, exec *types.Execution)

	inflight inflight
}

type RunnerConfig struct {
	Executions     store.ExecutionStore
	Logs           store.JobLogStore
	Handlers       *config.HandlerRegistry
	Locks          *lock.JobLocks
	WorkerCount    int
	DefaultTimeout time.Duration
	Publisher      *message_broaker.ExecutionPublisher
	Metrics        *metrics.Metrics
	Logger         *zap.SugaredLogger

	// OnFinish runs after every terminal outcome, before Wait stops
	// counting the attempt.
	OnFinish func(job *types.Job, exec *types.Execution)
}

func NewRunner(cfg RunnerConfig) *Runner {
	workers := cfg.WorkerCount
	if workers < 1 {
		workers = config.DefaultWorkerCount
	}
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = config.DefaultJobTimeout
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New(nil)
	}
	locks := cfg.Locks
	if locks == nil {
		locks = lock.NewJobLocks()
	}
	handlers := cfg.Handlers
	if handlers == nil {
		handlers = config.NewHandlerRegistry()
	}
	return &Runner{
		executions:     cfg.Executions,
		logs:           cfg.Logs,
		handlers:       handlers,
		locks:          locks,
		sem:            semaphore.NewWeighted(int64(workers)),
		defaultTimeout: timeout,
		publisher:      cfg.Publisher,
		metrics:        m,
		logger:         logger.OrNop(cfg.Logger),
		now:            func() time.Time { return time.Now().UTC() },
		onFinish:       cfg.OnFinish,
		newBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(100*time.Millisecond),
				backoff.WithMaxInterval(2*time.Second),
			), 5)
		},
	}
}

// Attempt is an execution that has its lock, its worker slot and a
// persisted RUNNING record, and is waiting to call the handler.
type Attempt struct {
	runner *Runner
	job    *types.Job
	exec   *types.Execution
	lease  *lock.JobLease
}

// ExecutionID is the id of the RUNNING record created by Begin.
func (a *Attempt) ExecutionID() string { return a.exec.ID }

// Run is Begin followed by Attempt.Run.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*types.Execution, error) {
	a, err := r.Begin(ctx, req)
	if err != nil {
		return nil, err
	}
	return a.Run(ctx), nil
}

// Begin takes the per-job lock and a worker slot, then persists a RUNNING
// execution. It returns a *custom_errors.SchedulingConflictError when the job
// is already running and custom_errors.ErrJobRevoked when the job was paused
// or deleted. Nothing is persisted on error.
func (r *Runner) Begin(ctx context.Context, req RunRequest) (*Attempt, error) {
	job := req.Job
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lease, ok := r.locks.TryAcquire(job.ID)
	if !ok {
		r.metrics.Conflict(string(req.Source))
		return nil, custom_errors.NewSchedulingConflict(job.ID)
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		lease.Release()
		return nil, err
	}

	exec := &types.Execution{
		ID:                uuid.NewString(),
		JobID:             job.ID,
		OrganizationID:    job.OrganizationID,
		ParentExecutionID: req.ParentExecutionID,
		Attempt:           req.Attempt,
		Status:            state.ExecutionRunning,
		TriggerSource:     req.Source,
		StartedAt:         r.now(),
	}
	err := lease.Admit(func() error {
		if err := r.executions.Create(ctx, exec); err != nil {
			return err
		}
		r.inflight.add()
		return nil
	})
	if err != nil {
		r.sem.Release(1)
		lease.Release()
		if errors.Is(err, custom_errors.ErrJobRevoked) {
			return nil, err
		}
		return nil, errors.Wrapf(err, "create execution for job %s", job.ID)
	}

	r.metrics.Running.Inc()
	return &Attempt{runner: r, job: job, exec: exec, lease: lease}, nil
}

type handlerResult struct {
	err      error
	panicked bool
}

// Run calls the handler and records the terminal outcome. ctx bounds the
// handler together with the job timeout. The returned execution is always
// terminal; a failed terminal write is logged, not returned.
func (a *Attempt) Run(ctx context.Context) *types.Execution {
	r := a.runner
	defer r.inflight.done()

	exec := a.exec
	timeout := a.job.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}

	status, runErr := a.invoke(ctx, timeout)

	completed := r.now()
	if completed.Before(exec.StartedAt) {
		completed = exec.StartedAt
	}
	exec.Status = status
	exec.CompletedAt = &completed
	if runErr != nil {
		exec.Error = runErr.Error()
	}

	r.complete(ctx, exec)

	r.metrics.Running.Dec()
	r.sem.Release(1)
	a.lease.Release()

	r.metrics.ObserveExecution(a.job.Type, exec.Status.String(), string(exec.TriggerSource), exec.Duration())
	r.journal(ctx, a.job, exec)
	r.publish(ctx, a.job, exec)

	out := a.snapshot()
	if r.onFinish != nil {
		r.onFinish(a.job, a.snapshot())
	}
	return out
}

func (a *Attempt) invoke(ctx context.Context, timeout time.Duration) (state.ExecutionStatus, error) {
	job := a.job
	handler, ok := a.runner.handlers.Lookup(job.Type)
	if !ok {
		return state.ExecutionFailed, fmt.Errorf("%w: %s", custom_errors.ErrHandlerNotFound, job.Type)
	}

	handlerCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan handlerResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- handlerResult{err: errors.Newf("handler panicked: %v", p), panicked: true}
			}
		}()
		done <- handlerResult{err: handler(handlerCtx, job.Config)}
	}()

	select {
	case res := <-done:
		if res.err == nil {
			return state.ExecutionSuccess, nil
		}
		if res.panicked {
			a.runner.logger.Errorw("handler panicked", "job_id", job.ID, "execution_id", a.exec.ID, "error", res.err)
		}
		if res.panicked || handlerCtx.Err() == nil {
			return state.ExecutionFailed, &custom_errors.HandlerError{JobType: job.Type, Err: res.err}
		}
	case <-handlerCtx.Done():
		// The handler keeps running if it ignores handlerCtx.
	}

	if ctx.Err() != nil {
		return state.ExecutionFailed, custom_errors.ErrSchedulerStopped
	}
	return state.ExecutionTimeout, &custom_errors.TimeoutError{Timeout: timeout}
}

// complete persists the terminal record, retrying transient store errors.
func (r *Runner) complete(ctx context.Context, exec *types.Execution) {
	writeCtx := context.WithoutCancel(ctx)
	op := func() error {
		err := r.executions.Complete(writeCtx, exec)
		if errors.Is(err, store.ErrExecutionNotRunning) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.metrics.StoreWriteRetries.Inc()
		r.logger.Warnw("retrying terminal execution write", "execution_id", exec.ID, "wait", wait, "error", err)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(r.newBackOff(), writeCtx), notify); err != nil {
		r.logger.Errorw("failed to persist execution outcome",
			"job_id", exec.JobID, "execution_id", exec.ID, "status", exec.Status, "error", err)
	}
}

func (r *Runner) journal(ctx context.Context, job *types.Job, exec *types.Execution) {
	entry := &types.JobLog{
		JobID:          job.ID,
		OrganizationID: job.OrganizationID,
		ExecutionID:    &exec.ID,
		Level:          types.LogInfo,
		Message:        fmt.Sprintf("execution %s finished with %s in %s", exec.ID, exec.Status, exec.Duration()),
	}
	if exec.Status != state.ExecutionSuccess {
		entry.Level = types.LogError
		entry.Message = fmt.Sprintf("execution %s finished with %s: %s", exec.ID, exec.Status, exec.Error)
	}
	appendLog(context.WithoutCancel(ctx), r.logs, r.logger, entry)

	fields := []any{
		"job_id", job.ID,
		"execution_id", exec.ID,
		"status", exec.Status,
		"attempt", exec.Attempt,
		"source", exec.TriggerSource,
		"duration", exec.Duration(),
	}
	if exec.Status == state.ExecutionSuccess {
		r.logger.Infow("execution finished", fields...)
	} else {
		r.logger.Warnw("execution finished", append(fields, "error", exec.Error)...)
	}
}

func (r *Runner) publish(ctx context.Context, job *types.Job, exec *types.Execution) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(context.WithoutCancel(ctx), message_broaker.NewExecutionEvent(job, exec)); err != nil {
		r.logger.Warnw("failed to publish execution event", "execution_id", exec.ID, "error", err)
	}
}

func (a *Attempt) snapshot() *types.Execution {
	c := *a.exec
	return &c
}

// Wait blocks until every started attempt has finished or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	return r.inflight.wait(ctx)
}

// Running reports how many attempts are between Begin and the end of Run.
func (r *Runner) Running() int {
	return r.inflight.count()
}

func appendLog(ctx context.Context, logs store.JobLogStore, l *zap.SugaredLogger, entry *types.JobLog) {
	if logs == nil {
		return
	}
	if err := logs.Append(ctx, entry); err != nil {
		l.Warnw("failed to append job log", "job_id", entry.JobID, "error", err)
	}
}

// inflight counts running attempts and lets callers wait for zero.
type inflight struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func (f *inflight) add() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == 0 {
		f.idle = make(chan struct{})
	}
	f.n++
}

func (f *inflight) done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n--
	if f.n == 0 {
		close(f.idle)
	}
}

func (f *inflight) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

func (f *inflight) wait(ctx context.Context) error {
	f.mu.Lock()
	if f.n == 0 {
		f.mu.Unlock()
		return nil
	}
	idle := f.idle
	f.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
