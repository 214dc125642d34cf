package app

import (
	"context"
	"database/sql"

	"github.com/RezaEskandarii/jobfire/client"
	"github.com/RezaEskandarii/jobfire/internal/db"
	"github.com/RezaEskandarii/jobfire/internal/lock"
	"github.com/RezaEskandarii/jobfire/internal/logger"
	"github.com/RezaEskandarii/jobfire/internal/message_broaker"
	"github.com/RezaEskandarii/jobfire/internal/metrics"
	"github.com/RezaEskandarii/jobfire/internal/store"
	"github.com/RezaEskandarii/jobfire/internal/store/memory"
	"github.com/RezaEskandarii/jobfire/internal/store/postgres"
	"github.com/RezaEskandarii/jobfire/types/config"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Container holds all application dependencies. It is the single source of truth
// for dependency injection and ensures connections and services are created once.
type Container struct {
	Config *config.SchedulerConfig
	Logger *zap.SugaredLogger

	// Storage connections (created once, shared by all stores)
	DB    *sql.DB
	Redis redis.UniversalClient

	Stores store.Stores

	// MigrationLock serializes schema migrations; nil without Postgres storage.
	MigrationLock lock.DistributedLockManager
	// Guard keeps a second scheduler from starting; nil with NoLock.
	Guard         lock.DistributedLockManager
	MessageBroker message_broaker.MessageBroker

	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Handlers   *config.HandlerRegistry
	Engine     *client.Engine
	JobManager *client.JobManager

	ownsDB    bool
	ownsRedis bool
}

// NewContainer creates and wires all dependencies. Single entry point for DI.
// Call this once per application lifecycle.
// Pass optional WithDB, WithRedis or WithMessageBroker to inject connections for testing.
func NewContainer(ctx context.Context, cfg *config.SchedulerConfig, opts ...ContainerOption) (*Container, error) {
	opt := &containerConfig{}
	for _, o := range opts {
		o(opt)
	}

	c := &Container{Config: cfg, Registry: opt.registry}

	if opt.logger != nil {
		c.Logger = opt.logger
	} else {
		l, err := logger.New(cfg.LogLevel, false, cfg.Instance)
		if err != nil {
			return nil, errors.Wrap(err, "init logger")
		}
		c.Logger = l
	}

	if c.Registry == nil {
		c.Registry = prometheus.NewRegistry()
		c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	c.Metrics = metrics.New(c.Registry)

	if err := c.initStorage(ctx, opt); err != nil {
		return nil, err
	}
	if err := c.initLocks(opt); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initMessageBroker(opt); err != nil {
		c.Close()
		return nil, err
	}

	c.Handlers = config.NewHandlerRegistry()
	if err := c.Handlers.RegisterAll(cfg.Handlers); err != nil {
		c.Close()
		return nil, errors.Wrap(err, "register handlers")
	}

	var publisher *message_broaker.ExecutionPublisher
	if c.MessageBroker != nil {
		routingKey := config.DefaultRoutingKey
		if cfg.RabbitMQConfig != nil && cfg.RabbitMQConfig.RoutingKey != "" {
			routingKey = cfg.RabbitMQConfig.RoutingKey
		}
		publisher = message_broaker.NewExecutionPublisher(c.MessageBroker, routingKey)
	}

	c.Engine = client.NewEngine(client.EngineConfig{
		Stores:             c.Stores,
		Handlers:           c.Handlers,
		WorkerCount:        cfg.WorkerCount,
		DefaultTimeout:     cfg.DefaultTimeout,
		ReconcileBatchSize: cfg.ReconcileBatchSize,
		Location:           cfg.Location,
		Guard:              c.Guard,
		Publisher:          publisher,
		Metrics:            c.Metrics,
		Logger:             c.Logger.Named("engine"),
	})
	c.JobManager = client.NewJobManager(c.Stores, c.Engine)
	return c, nil
}

// initStorage creates database connections and stores based on config.
func (c *Container) initStorage(ctx context.Context, opt *containerConfig) error {
	switch c.Config.StorageDriver {
	case config.Postgres:
		if opt.db != nil {
			c.DB = opt.db
		} else {
			conn, err := db.Open(ctx, c.Config.PostgresConfig.ConnectionUrl)
			if err != nil {
				return errors.Wrap(err, "init storage")
			}
			c.DB = conn
			c.ownsDB = true
		}
		c.Stores = postgres.New(c.DB)
		c.MigrationLock = lock.NewPostgresDistributedLockManager(c.DB)
		return nil
	case config.Memory:
		c.Stores = memory.New()
		return nil
	default:
		return errors.Newf("unsupported storage driver: %v", c.Config.StorageDriver)
	}
}

func (c *Container) initLocks(opt *containerConfig) error {
	switch c.Config.LockDriver {
	case config.NoLock:
		return nil
	case config.PostgresLock:
		if c.MigrationLock == nil {
			return errors.New("postgres lock needs postgres storage")
		}
		c.Guard = c.MigrationLock
		return nil
	case config.RedisLock:
		if opt.redis != nil {
			c.Redis = opt.redis
		} else {
			rc := c.Config.RedisConfig
			c.Redis = redis.NewClient(&redis.Options{
				Addr:     rc.Address,
				Password: rc.Password,
				DB:       rc.DB,
			})
			c.ownsRedis = true
		}
		c.Guard = lock.NewRedisDistributedLockManager(c.Redis, c.Config.Instance, c.Config.LockTTL, c.Logger.Named("lock"))
		return nil
	default:
		return errors.Newf("unsupported lock driver: %v", c.Config.LockDriver)
	}
}

func (c *Container) initMessageBroker(opt *containerConfig) error {
	if opt.broker != nil {
		c.MessageBroker = opt.broker
		return nil
	}
	if c.Config.MQDriver != config.RabbitMQ || c.Config.RabbitMQConfig == nil {
		return nil
	}
	mq := c.Config.RabbitMQConfig
	broker, err := message_broaker.NewRabbitMQ(mq.URL, mq.Exchange, mq.Queue, mq.RoutingKey, mq.ContentType)
	if err != nil {
		return errors.Wrap(err, "init rabbitmq")
	}
	c.MessageBroker = broker
	return nil
}

// Close releases the connections the container opened itself.
func (c *Container) Close() error {
	var errs []error
	if c.MessageBroker != nil {
		errs = append(errs, c.MessageBroker.Close())
	}
	if c.ownsRedis && c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.ownsDB && c.DB != nil {
		errs = append(errs, c.DB.Close())
	}
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
	return errors.Join(errs...)
}
