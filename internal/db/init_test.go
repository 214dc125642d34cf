package db

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/RezaEskandarii/jobfire/internal/constants"
	"github.com/RezaEskandarii/jobfire/internal/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockLockManager struct {
	acquireErr error
	releaseErr error
	acquired   []int
	released   []int
}

func (m *mockLockManager) Acquire(ctx context.Context, lockID int) error {
	m.acquired = append(m.acquired, lockID)
	return m.acquireErr
}

func (m *mockLockManager) TryAcquire(ctx context.Context, lockID int) (bool, error) {
	return m.acquireErr == nil, m.acquireErr
}

func (m *mockLockManager) Release(ctx context.Context, lockID int) error {
	m.released = append(m.released, lockID)
	return m.releaseErr
}

var _ lock.DistributedLockManager = (*mockLockManager)(nil)

func TestReadSQLScripts(t *testing.T) {
	scripts, err := readSQLScripts()
	require.NoError(t, err)
	require.Len(t, scripts, 3) // jobs, executions, job_logs
	assert.Equal(t, "0001_jobs.sql", scripts[0].name)
	assert.Contains(t, scripts[1].body, "jobfire_schema.executions")
	assert.Contains(t, scripts[0].body, "idx_jobs_status_next_execution")
}

func TestInit_LockAcquireFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	lockMgr := &mockLockManager{acquireErr: errors.New("lock busy")}
	err = Init(context.Background(), db, lockMgr, zap.NewNop().Sugar())
	assert.Error(t, err)
	assert.Empty(t, lockMgr.released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInit_AppliesMigrationsUnderLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS jobfire_schema").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS jobfire_schema.jobs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS jobfire_schema.executions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS jobfire_schema.job_logs").WillReturnResult(sqlmock.NewResult(0, 0))

	lockMgr := &mockLockManager{}
	require.NoError(t, Init(context.Background(), db, lockMgr, zap.NewNop().Sugar()))
	assert.Equal(t, []int{constants.MigrationLock}, lockMgr.acquired)
	assert.Equal(t, []int{constants.MigrationLock}, lockMgr.released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInit_MigrationFailureReleasesLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE SCHEMA").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS jobfire_schema.jobs").WillReturnError(errors.New("permission denied"))

	lockMgr := &mockLockManager{}
	err = Init(context.Background(), db, lockMgr, zap.NewNop().Sugar())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0001_jobs.sql")
	assert.Equal(t, []int{constants.MigrationLock}, lockMgr.released)
	assert.NoError(t, mock.ExpectationsWereMet())
}
