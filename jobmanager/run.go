package jobmanager

import (
	"context"
	"runtime"

	"github.com/RezaEskandarii/jobfire/app"
	"github.com/RezaEskandarii/jobfire/client"
	"github.com/RezaEskandarii/jobfire/internal/db"
	"github.com/RezaEskandarii/jobfire/types/config"
	"github.com/RezaEskandarii/jobfire/web"
	"github.com/cockroachdb/errors"
)

// Scheduler is a running jobfire process: the container, its started engine
// and the optional ops server.
type Scheduler struct {
	Container  *app.Container
	JobManager *client.JobManager

	ops    *web.OpsServer
	opsErr chan error
}

// New initializes the entire job scheduling and execution system from cfg.
//
// The function performs the following steps:
//  1. Builds the dependency container (storage, locks, broker, handlers, engine).
//  2. Applies the embedded migrations when Postgres storage is used, under the
//     distributed migration lock.
//  3. Starts the engine: interrupted executions are failed and every ACTIVE
//     job is armed again.
//  4. Launches the ops HTTP server when cfg.OpsPort is set.
//
// Callers own the returned Scheduler and must call Shutdown.
func New(ctx context.Context, cfg *config.SchedulerConfig, opts ...app.ContainerOption) (*Scheduler, error) {
	c, err := app.NewContainer(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	c.Logger.Infow("booting scheduler", "instance", cfg.Instance, "storage", cfg.StorageDriver.String(),
		"lock", cfg.LockDriver.String(), "workers", cfg.WorkerCount, "gomaxprocs", runtime.GOMAXPROCS(0))

	if err := migrate(ctx, c); err != nil {
		_ = c.Close()
		return nil, err
	}

	if err := c.Engine.Start(ctx); err != nil {
		_ = c.Close()
		return nil, errors.Wrap(err, "start engine")
	}

	s := &Scheduler{Container: c, JobManager: c.JobManager}
	if cfg.OpsPort > 0 {
		s.runOpsServer()
	}
	return s, nil
}

// Migrate applies the schema without starting the engine.
func Migrate(ctx context.Context, cfg *config.SchedulerConfig, opts ...app.ContainerOption) error {
	c, err := app.NewContainer(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer c.Close()
	return migrate(ctx, c)
}

func migrate(ctx context.Context, c *app.Container) error {
	if c.DB == nil {
		return nil
	}
	if err := db.Init(ctx, c.DB, c.MigrationLock, c.Logger.Named("db")); err != nil {
		return errors.Wrap(err, "migrate")
	}
	return nil
}

// runOpsServer starts the ops surface in a separate goroutine.
func (s *Scheduler) runOpsServer() {
	c := s.Container
	s.ops = web.NewOpsServer(c.JobManager, c.Registry, c.Config.OpsPort, c.Logger.Named("ops"))
	s.opsErr = make(chan error, 1)
	go func() {
		if err := s.ops.Serve(); err != nil {
			c.Logger.Errorw("ops server failed", "error", err)
			s.opsErr <- err
		}
		close(s.opsErr)
	}()
}

// Errors reports a failure of the ops server. Nil when no ops server runs.
func (s *Scheduler) Errors() <-chan error {
	return s.opsErr
}

// Shutdown stops the ops server, drains the engine until ctx is done, then
// closes the connections the container opened.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	var errs []error
	if s.ops != nil {
		errs = append(errs, s.ops.Shutdown(ctx))
	}
	errs = append(errs, s.Container.Engine.Shutdown(ctx))
	errs = append(errs, s.Container.Close())
	return errors.Join(errs...)
}
