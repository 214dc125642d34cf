package config

type StorageDriver int

const (
	Postgres StorageDriver = iota + 1
	Memory
)

// String converts the StorageDriver enum to a human-readable string.
func (d StorageDriver) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case Memory:
		return "memory"
	}
	return "unknown"
}

type LockDriver int

const (
	NoLock LockDriver = iota
	PostgresLock
	RedisLock
)

func (d LockDriver) String() string {
	switch d {
	case NoLock:
		return "none"
	case PostgresLock:
		return "postgres"
	case RedisLock:
		return "redis"
	}
	return "unknown"
}

type MessageQueueDriver int

const (
	NoMQ MessageQueueDriver = iota
	RabbitMQ
)

func (d MessageQueueDriver) String() string {
	switch d {
	case NoMQ:
		return "none"
	case RabbitMQ:
		return "rabbitmq"
	default:
		return "unknown"
	}
}
