package app

import (
	"database/sql"

	"github.com/RezaEskandarii/jobfire/internal/message_broaker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ContainerOption configures Container creation. Used for testing and customization.
type ContainerOption func(*containerConfig)

type containerConfig struct {
	// Optional: inject custom connections instead of creating them from config
	db       *sql.DB
	redis    redis.UniversalClient
	broker   message_broaker.MessageBroker
	logger   *zap.SugaredLogger
	registry *prometheus.Registry
}

// WithDB injects a custom database connection. Useful for testing.
func WithDB(db *sql.DB) ContainerOption {
	return func(c *containerConfig) {
		c.db = db
	}
}

// WithRedis injects a custom Redis client. Useful for testing.
func WithRedis(redis redis.UniversalClient) ContainerOption {
	return func(c *containerConfig) {
		c.redis = redis
	}
}

// WithMessageBroker injects the broker execution events are published to.
func WithMessageBroker(broker message_broaker.MessageBroker) ContainerOption {
	return func(c *containerConfig) {
		c.broker = broker
	}
}

func WithLogger(logger *zap.SugaredLogger) ContainerOption {
	return func(c *containerConfig) {
		c.logger = logger
	}
}

// WithRegistry registers the scheduler metrics on reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) ContainerOption {
	return func(c *containerConfig) {
		c.registry = reg
	}
}
