package lock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RezaEskandarii/jobfire/custom_errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobLocks_SingleLeasePerJob(t *testing.T) {
	locks := NewJobLocks()

	lease, ok := locks.TryAcquire("job-1")
	require.True(t, ok)
	assert.Equal(t, "job-1", lease.JobID())
	assert.True(t, locks.Held("job-1"))

	_, ok = locks.TryAcquire("job-1")
	assert.False(t, ok)

	other, ok := locks.TryAcquire("job-2")
	require.True(t, ok, "jobs do not block each other")
	other.Release()

	lease.Release()
	lease.Release()
	assert.False(t, locks.Held("job-1"))

	again, ok := locks.TryAcquire("job-1")
	require.True(t, ok)
	again.Release()
}

func TestJobLocks_ConcurrentTryAcquire(t *testing.T) {
	locks := NewJobLocks()
	var winners int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := locks.TryAcquire("job-1"); ok {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	close(start)
	wg.Wait()
	assert.Equal(t, int32(1), winners)
}

func TestJobLease_AdmitAfterRevoke(t *testing.T) {
	locks := NewJobLocks()
	lease, ok := locks.TryAcquire("job-1")
	require.True(t, ok)
	defer lease.Release()

	locks.Revoke("job-1")
	assert.True(t, locks.Revoked("job-1"))

	called := false
	err := lease.Admit(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, custom_errors.ErrJobRevoked)
	assert.False(t, called)

	locks.Reinstate("job-1")
	assert.NoError(t, lease.Admit(func() error { return nil }))
}

func TestJobLocks_RevokeWaitsForAdmission(t *testing.T) {
	locks := NewJobLocks()
	lease, ok := locks.TryAcquire("job-1")
	require.True(t, ok)

	entered := make(chan struct{})
	proceed := make(chan struct{})
	admitted := make(chan error, 1)
	go func() {
		admitted <- lease.Admit(func() error {
			close(entered)
			<-proceed
			return nil
		})
	}()
	<-entered

	revoked := make(chan struct{})
	go func() {
		locks.Revoke("job-1")
		close(revoked)
	}()

	select {
	case <-revoked:
		t.Fatal("revoke returned while an admission was in progress")
	case <-time.After(50 * time.Millisecond):
	}

	close(proceed)
	require.NoError(t, <-admitted)
	<-revoked
	assert.ErrorIs(t, lease.Admit(func() error { return nil }), custom_errors.ErrJobRevoked)
}

func TestJobLocks_IdleSlotsArePruned(t *testing.T) {
	locks := NewJobLocks()

	for i := 0; i < 3; i++ {
		lease, ok := locks.TryAcquire("job-1")
		require.True(t, ok)
		lease.Release()
	}
	assert.Empty(t, locks.slots)

	locks.Revoke("job-2")
	assert.Len(t, locks.slots, 1, "a revoked job keeps its slot")
	_, ok := locks.TryAcquire("job-2")
	require.True(t, ok)

	locks.Reinstate("job-2")
	assert.Len(t, locks.slots, 1, "a held slot is kept")
	assert.True(t, locks.Held("job-2"))

	locks.Reinstate("job-unknown")
	assert.Len(t, locks.slots, 1)
}

func TestJobLocks_RevokeSurvivesConcurrentRelease(t *testing.T) {
	locks := NewJobLocks()
	for i := 0; i < 200; i++ {
		lease, ok := locks.TryAcquire("job-1")
		require.True(t, ok)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			lease.Release()
		}()
		go func() {
			defer wg.Done()
			locks.Revoke("job-1")
		}()
		wg.Wait()

		require.True(t, locks.Revoked("job-1"))
		next, ok := locks.TryAcquire("job-1")
		require.True(t, ok)
		assert.ErrorIs(t, next.Admit(func() error { return nil }), custom_errors.ErrJobRevoked)
		next.Release()
		locks.Reinstate("job-1")
		require.Empty(t, locks.slots)
	}
}
