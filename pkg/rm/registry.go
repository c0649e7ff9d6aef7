package rm

import "time"

// JobManagerRegistration is the tuple the registration tables store for a
// registered job manager. The same *JobManagerRegistration value is indexed
// by both JobID and ResourceID (invariant I2/§3-Invariant-2): callers must
// never copy it, only share the pointer.
type JobManagerRegistration struct {
	JobID        JobID
	ResourceID   ResourceID
	Gateway      JobManagerGateway
	JobMasterId  FencingToken
	RegisteredAt time.Time
}

// WorkerRegistration is the tuple the registration tables store for a
// registered task executor.
type WorkerRegistration struct {
	ResourceID ResourceID
	Address    string
	Gateway    TaskExecutorGateway
	Handle     WorkerHandle
	DataPort   int
	Hardware   HardwareDescription
	InstanceID InstanceID
	Registered time.Time
}

// registrationTables holds C1: the in-memory indexes of job-manager and
// task-executor registrations, plus the set of task-executor registration
// attempts currently in flight. All fields are only ever touched from the
// actor loop goroutine, so no internal locking is needed (§5: "two RPCs
// targeting the same state never observe an intermediate inconsistent
// view").
type registrationTables struct {
	jobManagersByJobID      map[JobID]*JobManagerRegistration
	jobManagersByResourceID map[ResourceID]*JobManagerRegistration

	taskExecutors map[ResourceID]*WorkerRegistration

	// pending tracks in-flight task-executor registration attempts keyed by
	// ResourceID. The sequence number lets a later completion discard an
	// earlier one even though both raced to connect concurrently (§5
	// ordering guarantee, §9 Design Note on pointer-identity vs. sequence
	// numbers).
	pending map[ResourceID]*pendingRegistration

	nextAttemptSeq uint64
}

type pendingRegistration struct {
	seq uint64
}

func newRegistrationTables() *registrationTables {
	return &registrationTables{
		jobManagersByJobID:      make(map[JobID]*JobManagerRegistration),
		jobManagersByResourceID: make(map[ResourceID]*JobManagerRegistration),
		taskExecutors:           make(map[ResourceID]*WorkerRegistration),
		pending:                 make(map[ResourceID]*pendingRegistration),
	}
}

// clear empties every table. Used on loss of leadership (§3-Invariant-1) and
// before a new leader is confirmed.
func (t *registrationTables) clear() {
	t.jobManagersByJobID = make(map[JobID]*JobManagerRegistration)
	t.jobManagersByResourceID = make(map[ResourceID]*JobManagerRegistration)
	t.taskExecutors = make(map[ResourceID]*WorkerRegistration)
	t.pending = make(map[ResourceID]*pendingRegistration)
}

func (t *registrationTables) putJobManager(reg *JobManagerRegistration) {
	t.jobManagersByJobID[reg.JobID] = reg
	t.jobManagersByResourceID[reg.ResourceID] = reg
}

func (t *registrationTables) removeJobManagerByJobID(id JobID) (*JobManagerRegistration, bool) {
	reg, ok := t.jobManagersByJobID[id]
	if !ok {
		return nil, false
	}
	delete(t.jobManagersByJobID, id)
	delete(t.jobManagersByResourceID, reg.ResourceID)
	return reg, true
}

func (t *registrationTables) removeJobManagerByResourceID(id ResourceID) (*JobManagerRegistration, bool) {
	reg, ok := t.jobManagersByResourceID[id]
	if !ok {
		return nil, false
	}
	delete(t.jobManagersByResourceID, id)
	delete(t.jobManagersByJobID, reg.JobID)
	return reg, true
}

func (t *registrationTables) beginPending(id ResourceID) uint64 {
	t.nextAttemptSeq++
	seq := t.nextAttemptSeq
	t.pending[id] = &pendingRegistration{seq: seq}
	return seq
}

// isCurrentAttempt reports whether seq is still the most recent registration
// attempt for id — the check that discards a stale completion superseded by
// a newer registerTaskExecutor call (§4.5 step 2, §8 boundary behavior).
func (t *registrationTables) isCurrentAttempt(id ResourceID, seq uint64) bool {
	p, ok := t.pending[id]
	return ok && p.seq == seq
}

func (t *registrationTables) endPending(id ResourceID, seq uint64) {
	if p, ok := t.pending[id]; ok && p.seq == seq {
		delete(t.pending, id)
	}
}

func (t *registrationTables) putTaskExecutor(reg *WorkerRegistration) {
	t.taskExecutors[reg.ResourceID] = reg
}

func (t *registrationTables) removeTaskExecutor(id ResourceID) (*WorkerRegistration, bool) {
	reg, ok := t.taskExecutors[id]
	if !ok {
		return nil, false
	}
	delete(t.taskExecutors, id)
	return reg, true
}

func (t *registrationTables) taskExecutorByInstance(instance InstanceID) (*WorkerRegistration, bool) {
	for _, reg := range t.taskExecutors {
		if reg.InstanceID == instance {
			return reg, true
		}
	}
	return nil, false
}
