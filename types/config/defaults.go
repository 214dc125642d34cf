package config

import "time"

const (
	DefaultWorkerCount        = 10
	DefaultJobTimeout         = 5 * time.Minute
	DefaultReconcileBatchSize = 100
	DefaultStorageDriver      = Postgres
	DefaultLockTTL            = 30 * time.Second
	DefaultLogLevel           = "info"

	DefaultExchange   = "jobfire.executions"
	DefaultRoutingKey = "execution.completed"
)
