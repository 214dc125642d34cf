package main

import (
	"strings"
	"time"

	"github.com/RezaEskandarii/jobfire/types/config"
	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// Settings is the file and environment view of a SchedulerConfig.
type Settings struct {
	Instance           string        `mapstructure:"instance"`
	Storage            string        `mapstructure:"storage"`
	Workers            int           `mapstructure:"workers"`
	DefaultTimeout     time.Duration `mapstructure:"default_timeout"`
	ReconcileBatchSize int           `mapstructure:"reconcile_batch_size"`
	Timezone           string        `mapstructure:"timezone"`
	OpsPort            uint          `mapstructure:"ops_port"`
	LogLevel           string        `mapstructure:"log_level"`

	Postgres struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"postgres"`

	Lock struct {
		Driver string        `mapstructure:"driver"`
		TTL    time.Duration `mapstructure:"ttl"`
	} `mapstructure:"lock"`

	Redis struct {
		Address  string `mapstructure:"address"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	RabbitMQ struct {
		URL        string `mapstructure:"url"`
		Exchange   string `mapstructure:"exchange"`
		Queue      string `mapstructure:"queue"`
		RoutingKey string `mapstructure:"routing_key"`
	} `mapstructure:"rabbitmq"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("instance", "jobfire")
	v.SetDefault("storage", "memory")
	v.SetDefault("workers", config.DefaultWorkerCount)
	v.SetDefault("default_timeout", config.DefaultJobTimeout)
	v.SetDefault("reconcile_batch_size", config.DefaultReconcileBatchSize)
	v.SetDefault("timezone", "UTC")
	v.SetDefault("ops_port", 8080)
	v.SetDefault("log_level", config.DefaultLogLevel)
	v.SetDefault("lock.driver", "none")
	v.SetDefault("lock.ttl", config.DefaultLockTTL)
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("postgres.url", "")
	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", config.DefaultExchange)
	v.SetDefault("rabbitmq.queue", "")
	v.SetDefault("rabbitmq.routing_key", config.DefaultRoutingKey)
}

// newViper reads path (optional) and JOBFIRE_* environment variables.
// JOBFIRE_POSTGRES_URL maps to postgres.url.
func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("JOBFIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
	}
	return v, nil
}

func loadSettings(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, errors.Wrap(err, "decode settings")
	}
	return &s, nil
}

// SchedulerConfig turns the settings into functional options.
func (s *Settings) SchedulerConfig(handlers ...config.MethodHandler) (*config.SchedulerConfig, error) {
	opts := []config.ContainerOption{
		config.WithWorkerCount(s.Workers),
		config.WithDefaultTimeout(s.DefaultTimeout),
		config.WithReconcileBatchSize(s.ReconcileBatchSize),
		config.WithTimezone(s.Timezone),
		config.WithOpsPort(s.OpsPort),
		config.WithLogLevel(s.LogLevel),
	}

	switch s.Storage {
	case "postgres":
		opts = append(opts, config.WithPostgresConfig(config.PostgresConfig{ConnectionUrl: s.Postgres.URL}))
	case "memory", "":
		opts = append(opts, config.WithMemoryStorage())
	default:
		return nil, errors.Newf("unknown storage %q", s.Storage)
	}

	switch s.Lock.Driver {
	case "none", "":
	case "postgres":
		opts = append(opts, config.WithPostgresLock())
	case "redis":
		opts = append(opts, config.WithRedisLock(config.RedisConfig{
			Address:  s.Redis.Address,
			Password: s.Redis.Password,
			DB:       s.Redis.DB,
		}, s.Lock.TTL))
	default:
		return nil, errors.Newf("unknown lock driver %q", s.Lock.Driver)
	}

	if s.RabbitMQ.URL != "" {
		opts = append(opts, config.WithRabbitMQConfig(config.RabbitMQConfig{
			URL:        s.RabbitMQ.URL,
			Exchange:   s.RabbitMQ.Exchange,
			Queue:      s.RabbitMQ.Queue,
			RoutingKey: s.RabbitMQ.RoutingKey,
		}))
	}

	for _, h := range handlers {
		opts = append(opts, config.WithHandler(h))
	}
	return config.NewSchedulerConfig(s.Instance, opts...)
}
