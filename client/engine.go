package client

import (
	"context"
	"sync"
	"time"

	"github.com/RezaEskandarii/jobfire/custom_errors"
	"github.com/RezaEskandarii/jobfire/internal/constants"
	"github.com/RezaEskandarii/jobfire/internal/lock"
	"github.com/RezaEskandarii/jobfire/internal/logger"
	"github.com/RezaEskandarii/jobfire/internal/message_broaker"
	"github.com/RezaEskandarii/jobfire/internal/metrics"
	"github.com/RezaEskandarii/jobfire/internal/state"
	"github.com/RezaEskandarii/jobfire/internal/store"
	"github.com/RezaEskandarii/jobfire/pgk/trigger"
	"github.com/RezaEskandarii/jobfire/types"
	"github.com/RezaEskandarii/jobfire/types/config"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	interruptedReason = "interrupted: scheduler restarted"

	// reloadDelay is how long a fire waits before trying again when the job
	// could not be read or its execution could not be recorded.
	reloadDelay = 30 * time.Second

	// minRetryDefer bounds how often a retry polls a job that is still running.
	minRetryDefer = time.Second
)

type EngineConfig struct {
	Stores   store.Stores
	Handlers *config.HandlerRegistry

	WorkerCount        int
	DefaultTimeout     time.Duration
	ReconcileBatchSize int
	Location           *time.Location

	// Guard, when set, refuses to start a second engine against the same backend.
	Guard     lock.DistributedLockManager
	Publisher *message_broaker.ExecutionPublisher
	Metrics   *metrics.Metrics
	Logger    *zap.SugaredLogger
}

type armedTimer struct {
	timer  *time.Timer
	gen    uint64
	fireAt time.Time
}

type jobMutex struct {
	mu   sync.Mutex
	refs int
}

// Engine arms one in-process timer per ACTIVE job and turns timer fires,
// manual triggers and retries into executions.
type Engine struct {
	jobs       store.JobStore
	executions store.ExecutionStore
	logs       store.JobLogStore

	locks   *lock.JobLocks
	runner  *Runner
	retries *RetryCoordinator
	guard   lock.DistributedLockManager

	batchSize int
	loc       *time.Location
	metrics   *metrics.Metrics
	logger    *zap.SugaredLogger
	now       func() time.Time

	// ctx is handed to handlers and canceled at the end of Shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	timers    map[string]*armedTimer
	gen       uint64
	started   bool
	stopping  bool
	guardHeld bool
	guardLost bool

	schedMu    sync.Mutex
	schedLocks map[string]*jobMutex
}

func NewEngine(cfg EngineConfig) *Engine {
	m := cfg.Metrics
	if m == nil {
		m = metrics.New(nil)
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	batch := cfg.ReconcileBatchSize
	if batch < 1 {
		batch = config.DefaultReconcileBatchSize
	}
	handlers := cfg.Handlers
	if handlers == nil {
		handlers = config.NewHandlerRegistry()
	}
	l := logger.OrNop(cfg.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		jobs:       cfg.Stores.Jobs,
		executions: cfg.Stores.Executions,
		logs:       cfg.Stores.Logs,
		locks:      lock.NewJobLocks(),
		guard:      cfg.Guard,
		batchSize:  batch,
		loc:        loc,
		metrics:    m,
		logger:     l,
		now:        func() time.Time { return time.Now().UTC() },
		ctx:        ctx,
		cancel:     cancel,
		timers:     make(map[string]*armedTimer),
		schedLocks: make(map[string]*jobMutex),
	}
	e.runner = NewRunner(RunnerConfig{
		Executions:     cfg.Stores.Executions,
		Logs:           cfg.Stores.Logs,
		Handlers:       handlers,
		Locks:          e.locks,
		WorkerCount:    cfg.WorkerCount,
		DefaultTimeout: cfg.DefaultTimeout,
		Publisher:      cfg.Publisher,
		Metrics:        m,
		Logger:         l,
		OnFinish:       e.afterRun,
	})
	e.retries = NewRetryCoordinator(cfg.Stores.Executions, e.locks, e.fireRetry, m, l)
	return e
}

// lockJob serializes schedule changes of one job and returns the unlock func.
func (e *Engine) lockJob(jobID string) func() {
	e.schedMu.Lock()
	m, ok := e.schedLocks[jobID]
	if !ok {
		m = &jobMutex{}
		e.schedLocks[jobID] = m
	}
	m.refs++
	e.schedMu.Unlock()

	m.mu.Lock()
	return func() {
		m.mu.Unlock()
		e.schedMu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(e.schedLocks, jobID)
		}
		e.schedMu.Unlock()
	}
}

func (e *Engine) isStopping() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopping
}

// arm replaces any timer of jobID with one firing at fireAt. It refuses when
// the job is revoked or the engine is shutting down.
func (e *Engine) arm(jobID string, fireAt time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopping || e.locks.Revoked(jobID) {
		return false
	}
	if prev, ok := e.timers[jobID]; ok {
		prev.timer.Stop()
	} else {
		e.metrics.ArmedTimers.Inc()
	}

	e.gen++
	gen := e.gen
	e.timers[jobID] = &armedTimer{
		gen:    gen,
		fireAt: fireAt,
		timer:  time.AfterFunc(time.Until(fireAt), func() { e.onTimer(jobID, gen) }),
	}
	return true
}

func (e *Engine) disarm(jobID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.timers[jobID]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(e.timers, jobID)
	e.metrics.ArmedTimers.Dec()
	return true
}

func (e *Engine) hasTimer(jobID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.timers[jobID]
	return ok
}

func (e *Engine) onTimer(jobID string, gen uint64) {
	e.mu.Lock()
	t, ok := e.timers[jobID]
	if !ok || t.gen != gen || e.stopping {
		e.mu.Unlock()
		return
	}
	delete(e.timers, jobID)
	e.metrics.ArmedTimers.Dec()
	e.mu.Unlock()

	e.fireScheduled(jobID)
}

func (e *Engine) fireScheduled(jobID string) {
	job, err := e.jobs.FindByID(e.ctx, jobID)
	if err != nil {
		if custom_errors.IsNotFound(err) || e.ctx.Err() != nil {
			return
		}
		e.logger.Errorw("failed to load job for fire", "job_id", jobID, "error", err)
		e.rearmAt(jobID, e.now().Add(reloadDelay))
		return
	}
	if job.Status != state.StatusActive {
		e.logger.Infow("skipping fire of inactive job", "job_id", jobID, "status", job.Status)
		return
	}

	attempt, err := e.runner.Begin(e.ctx, RunRequest{Job: job, Source: types.SourceScheduled})
	switch {
	case err == nil:
		if job.Trigger.Type() == types.TriggerOneTime {
			// The single fire is taken. A restart from here on must not fire it again.
			if err := e.jobs.SetNextExecution(context.WithoutCancel(e.ctx), jobID, nil); err != nil {
				e.logger.Errorw("failed to clear next execution", "job_id", jobID, "error", err)
			}
		}
		attempt.Run(e.ctx)
	case custom_errors.IsSchedulingConflict(err):
		e.logger.Warnw("scheduled fire skipped, job still running", "job_id", jobID)
		appendLog(context.WithoutCancel(e.ctx), e.logs, e.logger, &types.JobLog{
			JobID:          job.ID,
			OrganizationID: job.OrganizationID,
			Level:          types.LogWarn,
			Message:        "scheduled fire skipped: previous execution still running",
		})
		e.rearmAfter(jobID, e.now())
	case errors.Is(err, custom_errors.ErrJobRevoked), e.ctx.Err() != nil:
	default:
		e.logger.Errorw("failed to start scheduled execution", "job_id", jobID, "error", err)
		if job.Trigger.Type() == types.TriggerOneTime {
			e.rearmAt(jobID, e.now().Add(reloadDelay))
		} else {
			e.rearmAfter(jobID, e.now())
		}
	}
}

func (e *Engine) fireRetry(req RetryRequest) {
	job, err := e.jobs.FindByID(e.ctx, req.JobID)
	if err != nil || job.Status != state.StatusActive {
		if err != nil && !custom_errors.IsNotFound(err) && e.ctx.Err() == nil {
			e.logger.Errorw("failed to load job for retry", "job_id", req.JobID, "error", err)
		}
		e.retries.Drop(req.JobID, req.ParentExecutionID)
		return
	}

	parent := req.ParentExecutionID
	attempt, err := e.runner.Begin(e.ctx, RunRequest{
		Job:               job,
		Source:            req.Source,
		ParentExecutionID: &parent,
		Attempt:           req.Attempt,
	})
	if err == nil {
		attempt.Run(e.ctx)
		return
	}

	if custom_errors.IsSchedulingConflict(err) {
		wait := job.RetryDelay
		if wait < minRetryDefer {
			wait = minRetryDefer
		}
		if e.retries.Defer(req, wait) {
			e.logger.Infow("retry deferred, job still running", "job_id", job.ID, "execution_id", parent, "wait", wait)
			return
		}
	} else if !errors.Is(err, custom_errors.ErrJobRevoked) && e.ctx.Err() == nil {
		e.logger.Errorw("failed to start retry", "job_id", job.ID, "execution_id", parent, "error", err)
	}
	e.retries.Drop(job.ID, parent)
	e.endCycleIfIdle(job.ID)
}

// afterRun is called by the runner once an attempt is terminal.
func (e *Engine) afterRun(job *types.Job, exec *types.Execution) {
	ctx := context.WithoutCancel(e.ctx)

	decision, err := e.retries.MaybeRetry(ctx, job, exec)
	if err != nil {
		e.logger.Errorw("retry decision failed", "job_id", job.ID, "execution_id", exec.ID, "error", err)
	}
	if decision == RetryExhausted {
		appendLog(ctx, e.logs, e.logger, &types.JobLog{
			JobID:          job.ID,
			OrganizationID: job.OrganizationID,
			ExecutionID:    &exec.ID,
			Level:          types.LogError,
			Message:        "retries exhausted",
		})
	}

	completed := e.now()
	if exec.CompletedAt != nil {
		completed = *exec.CompletedAt
	}
	if err := e.jobs.SetLastExecuted(ctx, job.ID, completed); err != nil {
		e.logger.Errorw("failed to record last execution", "job_id", job.ID, "error", err)
	}

	switch {
	case exec.IsRetry():
		if decision != RetryScheduled {
			e.endCycleIfIdle(job.ID)
		}
	case exec.TriggerSource == types.SourceScheduled:
		e.rearmAfter(job.ID, completed)
	}
}

// rearmAfter arms the fire that follows ref, or closes the cycle when the
// trigger has none.
func (e *Engine) rearmAfter(jobID string, ref time.Time) {
	unlock := e.lockJob(jobID)
	defer unlock()

	if e.isStopping() || e.locks.Revoked(jobID) || e.hasTimer(jobID) {
		return
	}
	ctx := context.WithoutCancel(e.ctx)
	job, err := e.jobs.FindByID(ctx, jobID)
	if err != nil {
		if !custom_errors.IsNotFound(err) {
			e.logger.Errorw("failed to reload job for re-arm", "job_id", jobID, "error", err)
		}
		return
	}
	if job.Status != state.StatusActive {
		return
	}

	next, ok := trigger.NextFireAfter(job.Trigger, ref.In(e.loc))
	if !ok {
		if job.Trigger.Type() == types.TriggerOneTime {
			e.endCycleLocked(ctx, job)
			return
		}
		if err := e.jobs.SetNextExecution(ctx, jobID, nil); err != nil {
			e.logger.Errorw("failed to clear next execution", "job_id", jobID, "error", err)
		}
		return
	}
	if !e.arm(jobID, next) {
		return
	}
	if err := e.jobs.SetNextExecution(ctx, jobID, &next); err != nil {
		e.logger.Errorw("failed to persist next execution", "job_id", jobID, "next", next, "error", err)
		return
	}
	e.logger.Infow("job re-armed", "job_id", jobID, "next", next)
}

// rearmAt arms jobID at an explicit instant unless something else armed it first.
func (e *Engine) rearmAt(jobID string, at time.Time) {
	unlock := e.lockJob(jobID)
	defer unlock()
	if e.hasTimer(jobID) {
		return
	}
	e.arm(jobID, at)
}

func (e *Engine) endCycleIfIdle(jobID string) {
	unlock := e.lockJob(jobID)
	defer unlock()

	ctx := context.WithoutCancel(e.ctx)
	job, err := e.jobs.FindByID(ctx, jobID)
	if err != nil || job.Status != state.StatusActive || job.Trigger.Type() != types.TriggerOneTime {
		return
	}
	if _, ok := trigger.NextFireAfter(job.Trigger, e.now().In(e.loc)); ok {
		return
	}
	e.endCycleLocked(ctx, job)
}

// endCycleLocked moves a ONE_TIME job to INACTIVE once nothing of its cycle
// is left: no armed fire and no retry waiting or running.
func (e *Engine) endCycleLocked(ctx context.Context, job *types.Job) {
	if e.hasTimer(job.ID) || e.retries.Pending(job.ID) > 0 {
		return
	}
	moved, err := e.jobs.UpdateStatusIf(ctx, job.ID, state.StatusActive, state.StatusInactive, nil)
	if err != nil {
		e.logger.Errorw("failed to deactivate one-time job", "job_id", job.ID, "error", err)
		return
	}
	if moved {
		e.logger.Infow("one-time job completed", "job_id", job.ID)
	}
}

// Schedule arms an ACTIVE job at its next fire instant and persists it.
// A ONE_TIME job whose instant has passed becomes INACTIVE instead.
func (e *Engine) Schedule(ctx context.Context, job *types.Job) error {
	unlock := e.lockJob(job.ID)
	defer unlock()
	return e.scheduleLocked(ctx, job)
}

// Reschedule drops the current timer of job and schedules it again.
func (e *Engine) Reschedule(ctx context.Context, job *types.Job) error {
	unlock := e.lockJob(job.ID)
	defer unlock()
	e.disarm(job.ID)
	return e.scheduleLocked(ctx, job)
}

func (e *Engine) scheduleLocked(ctx context.Context, job *types.Job) error {
	if job.Status != state.StatusActive {
		return nil
	}
	if e.isStopping() {
		return custom_errors.ErrSchedulerStopped
	}

	next, ok := trigger.NextFireAfter(job.Trigger, e.now().In(e.loc))
	if !ok {
		job.NextExecutionAt = nil
		if job.Trigger.Type() == types.TriggerOneTime {
			if _, err := e.jobs.UpdateStatusIf(ctx, job.ID, state.StatusActive, state.StatusInactive, nil); err != nil {
				return errors.Wrapf(err, "deactivate job %s", job.ID)
			}
			job.Status = state.StatusInactive
			e.logger.Infow("one-time job is in the past, marked inactive", "job_id", job.ID)
			return nil
		}
		return errors.Wrapf(e.jobs.SetNextExecution(ctx, job.ID, nil), "clear next execution of job %s", job.ID)
	}

	if !e.arm(job.ID, next) {
		return nil
	}
	job.NextExecutionAt = &next
	if err := e.jobs.SetNextExecution(ctx, job.ID, &next); err != nil {
		return errors.Wrapf(err, "persist next execution of job %s", job.ID)
	}
	e.logger.Infow("job scheduled", "job_id", job.ID, "next", next)
	return nil
}

func (e *Engine) loadForTransition(ctx context.Context, jobID string, to state.JobStatus) (*types.Job, error) {
	job, err := e.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == state.StatusDeleted {
		return nil, custom_errors.NewNotFound("job", jobID)
	}
	if job.Status != to && !state.IsValidTransition(job.Status, to) {
		return nil, &custom_errors.TransitionError{JobID: jobID, From: job.Status.String(), To: to.String()}
	}
	return job, nil
}

// Pause stops future fires of an ACTIVE job. Execution history is kept and
// an execution already running finishes normally.
func (e *Engine) Pause(ctx context.Context, jobID string) error {
	unlock := e.lockJob(jobID)
	defer unlock()

	job, err := e.loadForTransition(ctx, jobID, state.StatusPaused)
	if err != nil {
		return err
	}
	if job.Status == state.StatusPaused {
		return nil
	}
	return e.revoke(ctx, job, state.StatusPaused)
}

// Delete retires a job. Once it returns no execution of the job can start,
// even from a timer that already fired.
func (e *Engine) Delete(ctx context.Context, jobID string) error {
	unlock := e.lockJob(jobID)
	defer unlock()

	job, err := e.loadForTransition(ctx, jobID, state.StatusDeleted)
	if err != nil {
		return err
	}
	return e.revoke(ctx, job, state.StatusDeleted)
}

func (e *Engine) revoke(ctx context.Context, job *types.Job, to state.JobStatus) error {
	e.locks.Revoke(job.ID)
	e.disarm(job.ID)
	canceled := e.retries.CancelJob(job.ID)

	if err := e.jobs.UpdateStatus(ctx, job.ID, to, nil); err != nil {
		e.locks.Reinstate(job.ID)
		if job.Status == state.StatusActive {
			if serr := e.scheduleLocked(context.WithoutCancel(ctx), job); serr != nil {
				e.logger.Errorw("failed to restore schedule", "job_id", job.ID, "error", serr)
			}
		}
		return errors.Wrapf(err, "set job %s %s", job.ID, to)
	}
	e.logger.Infow("job status changed", "job_id", job.ID, "status", to, "canceled_retries", canceled)
	return nil
}

// Resume reactivates a PAUSED or INACTIVE job and schedules it.
func (e *Engine) Resume(ctx context.Context, jobID string) error {
	unlock := e.lockJob(jobID)
	defer unlock()

	job, err := e.loadForTransition(ctx, jobID, state.StatusActive)
	if err != nil {
		return err
	}
	if job.Status == state.StatusActive {
		return nil
	}

	e.locks.Reinstate(jobID)
	if err := e.jobs.UpdateStatus(ctx, jobID, state.StatusActive, nil); err != nil {
		if job.Status == state.StatusPaused {
			e.locks.Revoke(jobID)
		}
		return errors.Wrapf(err, "activate job %s", jobID)
	}
	job.Status = state.StatusActive
	job.NextExecutionAt = nil
	return e.scheduleLocked(ctx, job)
}

// Trigger starts a manual execution and returns its id once the RUNNING
// record exists. The handler runs in the background.
func (e *Engine) Trigger(ctx context.Context, jobID string) (string, error) {
	if e.isStopping() {
		return "", custom_errors.ErrSchedulerStopped
	}
	job, err := e.jobs.FindByID(ctx, jobID)
	if err != nil {
		return "", err
	}
	switch job.Status {
	case state.StatusDeleted:
		return "", custom_errors.NewNotFound("job", jobID)
	case state.StatusPaused:
		return "", custom_errors.ErrJobRevoked
	}

	attempt, err := e.runner.Begin(ctx, RunRequest{Job: job, Source: types.SourceManual})
	if err != nil {
		return "", err
	}
	go attempt.Run(e.ctx)

	e.logger.Infow("manual execution started", "job_id", jobID, "execution_id", attempt.ExecutionID())
	return attempt.ExecutionID(), nil
}

// Start fails executions left RUNNING by a previous process and arms every
// ACTIVE job. A stored next fire time in the past fires once right away.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.stopping {
		e.mu.Unlock()
		return custom_errors.ErrSchedulerStopped
	}
	if e.started {
		e.mu.Unlock()
		return errors.New("engine already started")
	}
	e.started = true
	e.mu.Unlock()

	if err := e.acquireGuard(ctx); err != nil {
		e.abortStart(ctx)
		return err
	}

	n, err := e.executions.FailInterrupted(ctx, e.now(), interruptedReason)
	if err != nil {
		e.abortStart(ctx)
		return errors.Wrap(err, "fail interrupted executions")
	}
	if n > 0 {
		e.logger.Warnw("failed interrupted executions", "count", n)
	}

	jobs, err := e.collectActive(ctx)
	if err != nil {
		e.abortStart(ctx)
		return err
	}
	for _, job := range jobs {
		e.restore(ctx, job)
	}

	e.logger.Infow("scheduler started", "active_jobs", len(jobs), "armed", e.ArmedCount())
	return nil
}

// abortStart undoes a failed Start so it can be called again.
func (e *Engine) abortStart(ctx context.Context) {
	e.releaseGuard(ctx)
	e.mu.Lock()
	e.started = false
	e.mu.Unlock()
}

func (e *Engine) acquireGuard(ctx context.Context) error {
	if e.guard == nil {
		return nil
	}
	ok, err := e.guard.TryAcquire(ctx, constants.SchedulerLock)
	if err != nil {
		return errors.Wrap(err, "acquire scheduler lock")
	}
	if !ok {
		return custom_errors.ErrSchedulerAlreadyRunning
	}
	e.mu.Lock()
	e.guardHeld = true
	e.mu.Unlock()

	if w, ok := e.guard.(lock.LeaseWatcher); ok {
		if lost := w.Lost(constants.SchedulerLock); lost != nil {
			go e.watchGuard(lost)
		}
	}
	return nil
}

// watchGuard halts scheduling when another instance takes over the
// scheduler lock. Running executions finish; nothing new is armed.
func (e *Engine) watchGuard(lost <-chan struct{}) {
	select {
	case <-e.ctx.Done():
		return
	case <-lost:
	}
	e.mu.Lock()
	e.guardLost = true
	e.mu.Unlock()
	e.logger.Errorw("scheduler lock lost, no further jobs will be fired")
	e.halt()
}

// halt stops every armed timer and pending retry and refuses new ones.
func (e *Engine) halt() {
	e.mu.Lock()
	e.stopping = true
	for id, t := range e.timers {
		t.timer.Stop()
		delete(e.timers, id)
	}
	e.metrics.ArmedTimers.Set(0)
	e.mu.Unlock()

	e.retries.Stop()
}

// GuardLost reports whether the scheduler lock was taken over while held.
func (e *Engine) GuardLost() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.guardLost
}

func (e *Engine) releaseGuard(ctx context.Context) {
	e.mu.Lock()
	held := e.guardHeld
	e.guardHeld = false
	e.mu.Unlock()
	if !held {
		return
	}
	if err := e.guard.Release(context.WithoutCancel(ctx), constants.SchedulerLock); err != nil {
		e.logger.Warnw("failed to release scheduler lock", "error", err)
	}
}

// collectActive reads every ACTIVE job before any is armed, so status changes
// made by early fires cannot shift the pages.
func (e *Engine) collectActive(ctx context.Context) ([]*types.Job, error) {
	var jobs []*types.Job
	for page := 1; ; page++ {
		res, err := e.jobs.FetchByStatus(ctx, state.StatusActive, page, e.batchSize)
		if err != nil {
			return nil, errors.Wrapf(err, "fetch active jobs page %d", page)
		}
		for i := range res.Items {
			jobs = append(jobs, &res.Items[i])
		}
		if len(res.Items) == 0 || page*res.PageSize >= res.TotalItems {
			return jobs, nil
		}
	}
}

func (e *Engine) restore(ctx context.Context, job *types.Job) {
	unlock := e.lockJob(job.ID)
	defer unlock()

	if e.hasTimer(job.ID) {
		return
	}
	next, ok := trigger.Resume(job.Trigger, job.NextExecutionAt, e.now().In(e.loc))
	if !ok {
		if err := e.scheduleLocked(ctx, job); err != nil {
			e.logger.Errorw("failed to reconcile job", "job_id", job.ID, "error", err)
		}
		return
	}
	if !e.arm(job.ID, next) {
		return
	}
	if job.NextExecutionAt != nil && job.NextExecutionAt.Equal(next) {
		return
	}
	if err := e.jobs.SetNextExecution(ctx, job.ID, &next); err != nil {
		e.logger.Errorw("failed to persist next execution", "job_id", job.ID, "error", err)
	}
}

// Shutdown stops all timers and pending retries, waits for running
// executions until ctx is done, then cancels the handlers' context.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.halt()
	err := e.runner.Wait(ctx)
	e.cancel()
	e.releaseGuard(ctx)

	if err != nil {
		e.logger.Warnw("scheduler stopped with executions still running", "running", e.runner.Running(), "error", err)
		return errors.Wrap(err, "wait for running executions")
	}
	e.logger.Infow("scheduler stopped")
	return nil
}

// NextFire returns the instant jobID is armed for.
func (e *Engine) NextFire(jobID string) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.timers[jobID]
	if !ok {
		return time.Time{}, false
	}
	return t.fireAt, true
}

func (e *Engine) ArmedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.timers)
}

// Running reports how many executions are in progress.
func (e *Engine) Running() int {
	return e.runner.Running()
}
