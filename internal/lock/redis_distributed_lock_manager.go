package lock

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/RezaEskandarii/jobfire/internal/constants"
	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisDistributedLockManager holds leases as SET NX PX keys and renews them
// in the background at a third of the TTL until released.
type RedisDistributedLockManager struct {
	client redis.UniversalClient
	owner  string
	ttl    time.Duration
	logger *zap.SugaredLogger

	mu   sync.Mutex
	held map[int]*lease
}

type lease struct {
	cancel context.CancelFunc
	lost   chan struct{}
}

func NewRedisDistributedLockManager(client redis.UniversalClient, owner string, ttl time.Duration, logger *zap.SugaredLogger) *RedisDistributedLockManager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RedisDistributedLockManager{
		client: client,
		owner:  owner,
		ttl:    ttl,
		logger: logger,
		held:   make(map[int]*lease),
	}
}

func lockKey(lockID int) string {
	return constants.RedisLockPrefix + strconv.Itoa(lockID)
}

func (l *RedisDistributedLockManager) TryAcquire(ctx context.Context, lockID int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[lockID]; ok {
		return false, errors.Newf("lock %d is already held by this process", lockID)
	}

	ok, err := l.client.SetNX(ctx, lockKey(lockID), l.owner, l.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "failed to acquire lock")
	}
	if !ok {
		return false, nil
	}

	renewCtx, cancel := context.WithCancel(context.Background())
	le := &lease{cancel: cancel, lost: make(chan struct{})}
	l.held[lockID] = le
	go l.renew(renewCtx, lockID, le)
	return true, nil
}

func (l *RedisDistributedLockManager) Acquire(ctx context.Context, lockID int) error {
	policy := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(50*time.Millisecond),
		backoff.WithMaxInterval(l.ttl/2),
		backoff.WithMaxElapsedTime(0),
	), ctx)

	return backoff.Retry(func() error {
		ok, err := l.TryAcquire(ctx, lockID)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errors.Newf("lock %d is busy", lockID)
		}
		return nil
	}, policy)
}

func (l *RedisDistributedLockManager) Release(ctx context.Context, lockID int) error {
	l.mu.Lock()
	le, ok := l.held[lockID]
	delete(l.held, lockID)
	l.mu.Unlock()
	if !ok {
		return errors.Newf("lock %d is not held", lockID)
	}
	le.cancel()

	if err := releaseScript.Run(ctx, l.client, []string{lockKey(lockID)}, l.owner).Err(); err != nil {
		return errors.Wrap(err, "failed to release lock")
	}
	return nil
}

// Lost implements LeaseWatcher.
func (l *RedisDistributedLockManager) Lost(lockID int) <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	le, ok := l.held[lockID]
	if !ok {
		return nil
	}
	return le.lost
}

func (l *RedisDistributedLockManager) renew(ctx context.Context, lockID int, le *lease) {
	interval := l.ttl / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := renewScript.Run(ctx, l.client, []string{lockKey(lockID)}, l.owner, l.ttl.Milliseconds()).Int()
			if err != nil {
				if ctx.Err() == nil {
					l.logger.Warnw("lease renewal failed", "lock_id", lockID, "error", err)
				}
				continue
			}
			if n == 0 {
				l.logger.Errorw("lease lost to another holder", "lock_id", lockID, "owner", l.owner)
				close(le.lost)
				return
			}
		}
	}
}
