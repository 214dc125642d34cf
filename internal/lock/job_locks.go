package lock

import (
	"sync"

	"github.com/RezaEskandarii/jobfire/custom_errors"
)

type jobSlot struct {
	held bool // guarded by JobLocks.mu

	// mu orders admission against revocation.
	mu      sync.Mutex
	revoked bool
}

// JobLocks is the in-process table of per-job execution locks. At most one
// lease per job exists at a time. Revoking a job closes admission: a lease
// taken before the revoke can no longer create an execution record.
type JobLocks struct {
	mu    sync.Mutex
	slots map[string]*jobSlot
}

func NewJobLocks() *JobLocks {
	return &JobLocks{slots: make(map[string]*jobSlot)}
}

// JobLease is the right to run one execution of a job.
type JobLease struct {
	locks    *JobLocks
	jobID    string
	slot     *jobSlot
	released bool
}

func (l *JobLocks) slot(jobID string) *jobSlot {
	s, ok := l.slots[jobID]
	if !ok {
		s = &jobSlot{}
		l.slots[jobID] = s
	}
	return s
}

// TryAcquire returns a lease, or false when one is already outstanding for jobID.
func (l *JobLocks) TryAcquire(jobID string) (*JobLease, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.slot(jobID)
	if s.held {
		return nil, false
	}
	s.held = true
	return &JobLease{locks: l, jobID: jobID, slot: s}, true
}

// Held reports whether a lease for jobID is outstanding.
func (l *JobLocks) Held(jobID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[jobID]
	return ok && s.held
}

// Revoke closes admission for jobID. It waits for an admission already in
// progress, so once it returns no new execution can be created for the job.
// A revoked slot is kept until Reinstate.
func (l *JobLocks) Revoke(jobID string) {
	for {
		l.mu.Lock()
		s := l.slot(jobID)
		l.mu.Unlock()

		s.mu.Lock()
		s.revoked = true
		s.mu.Unlock()

		// A Release may have pruned the slot before it was marked.
		l.mu.Lock()
		current := l.slots[jobID] == s
		l.mu.Unlock()
		if current {
			return
		}
	}
}

// Reinstate reopens admission after a Revoke.
func (l *JobLocks) Reinstate(jobID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[jobID]
	if !ok {
		return
	}
	s.mu.Lock()
	s.revoked = false
	s.mu.Unlock()
	l.prune(jobID, s)
}

// Revoked reports whether admission is closed for jobID.
func (l *JobLocks) Revoked(jobID string) bool {
	l.mu.Lock()
	s, ok := l.slots[jobID]
	l.mu.Unlock()
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revoked
}

// Admit runs fn while admission is open. It returns ErrJobRevoked without
// calling fn when the job was paused or deleted.
func (le *JobLease) Admit(fn func() error) error {
	le.slot.mu.Lock()
	defer le.slot.mu.Unlock()
	if le.slot.revoked {
		return custom_errors.ErrJobRevoked
	}
	return fn()
}

func (le *JobLease) JobID() string { return le.jobID }

// Release gives the lease back. Calling it twice is a no-op.
func (le *JobLease) Release() {
	le.locks.mu.Lock()
	defer le.locks.mu.Unlock()
	if le.released {
		return
	}
	le.released = true
	le.slot.held = false
	le.locks.prune(le.jobID, le.slot)
}

// prune drops an idle slot. Callers hold l.mu.
func (l *JobLocks) prune(jobID string, s *jobSlot) {
	if s.held || l.slots[jobID] != s {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.revoked {
		delete(l.slots, jobID)
	}
}
