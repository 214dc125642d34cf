package constants

// Advisory lock ids shared by every process pointed at the same store.
const (
	MigrationLock = iota + 7301
	SchedulerLock
)

var Locks = []int{
	MigrationLock,
	SchedulerLock,
}

const (
	DatabaseSchema = "jobfire_schema"

	// RedisLockPrefix namespaces lease keys written by the Redis lock manager.
	RedisLockPrefix = "jobfire:lock:"
)
