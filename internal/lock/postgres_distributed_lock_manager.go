package lock

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sync"

	"github.com/cockroachdb/errors"
)

// PostgresDistributedLockManager uses session-level advisory locks. Each held
// lock pins its own connection, since the lock belongs to the session that
// took it.
type PostgresDistributedLockManager struct {
	db    *sql.DB
	mu    sync.Mutex
	conns map[int]*sql.Conn
}

func NewPostgresDistributedLockManager(db *sql.DB) *PostgresDistributedLockManager {
	return &PostgresDistributedLockManager{
		db:    db,
		conns: make(map[int]*sql.Conn),
	}
}

func (l *PostgresDistributedLockManager) Acquire(ctx context.Context, lockID int) error {
	conn, err := l.pin(ctx, lockID)
	if err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", lockID); err != nil {
		l.discard(conn)
		return errors.Wrap(err, "failed to acquire lock")
	}

	l.mu.Lock()
	l.conns[lockID] = conn
	l.mu.Unlock()
	return nil
}

func (l *PostgresDistributedLockManager) TryAcquire(ctx context.Context, lockID int) (bool, error) {
	conn, err := l.pin(ctx, lockID)
	if err != nil {
		return false, err
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", lockID).Scan(&acquired); err != nil {
		l.discard(conn)
		return false, errors.Wrap(err, "failed to acquire lock")
	}
	if !acquired {
		_ = conn.Close()
		return false, nil
	}

	l.mu.Lock()
	l.conns[lockID] = conn
	l.mu.Unlock()
	return true, nil
}

func (l *PostgresDistributedLockManager) Release(ctx context.Context, lockID int) error {
	l.mu.Lock()
	conn, ok := l.conns[lockID]
	delete(l.conns, lockID)
	l.mu.Unlock()
	if !ok {
		return errors.Newf("lock %d is not held", lockID)
	}

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", lockID); err != nil {
		// Dropping the session releases whatever it still holds.
		l.discard(conn)
		return errors.Wrap(err, "failed to release lock")
	}
	return conn.Close()
}

func (l *PostgresDistributedLockManager) pin(ctx context.Context, lockID int) (*sql.Conn, error) {
	l.mu.Lock()
	_, held := l.conns[lockID]
	l.mu.Unlock()
	if held {
		return nil, errors.Newf("lock %d is already held by this process", lockID)
	}

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to acquire lock")
	}
	return conn, nil
}

// discard closes the physical connection instead of returning it to the pool.
func (l *PostgresDistributedLockManager) discard(conn *sql.Conn) {
	_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = conn.Close()
}
