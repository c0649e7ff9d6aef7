package rm

import (
	"context"
	"time"
)

// WorkerHandle is an opaque, framework-specific reference to a running
// worker (a container ID, a process handle, a cloud instance ID). The
// resource manager never inspects it; it only passes it back to the
// FrameworkBackend that issued it.
type WorkerHandle interface{}

// ApplicationStatus is the terminal status reported when the whole
// application deregisters.
type ApplicationStatus int

const (
	ApplicationSucceeded ApplicationStatus = iota
	ApplicationFailed
	ApplicationCanceled
)

// FileType distinguishes which file a task executor is asked to upload
// (e.g. stdout, stderr, a log archive).
type FileType string

// FrameworkBackend is the injected capability object standing in for the
// Java source's abstract subclass: start/stop workers, recognize a newly
// connecting task executor, and hook leadership preparation/state
// clearing. No inheritance is required — a pluggable struct per backend
// (standalone, containerd, cloud) implements this interface.
type FrameworkBackend interface {
	// StartNewWorker asks the backend to provision a new worker able to
	// satisfy profile. It returns the slot profiles the new worker will
	// advertise once it registers (or nil if provisioning was refused).
	// The actual worker registration arrives later as an ordinary
	// registerTaskExecutor RPC — this call does not itself add a table
	// entry.
	StartNewWorker(ctx context.Context, profile ResourceProfile) ([]ResourceProfile, error)

	// WorkerStarted binds a newly connecting ResourceID to a worker handle.
	// Returning ok=false rejects the task executor as unrecognized — this
	// is how a framework backend refuses rogue executors that were not
	// launched via its own provisioner.
	WorkerStarted(ctx context.Context, resourceID ResourceID) (handle WorkerHandle, ok bool)

	// StopWorker asks the backend to terminate the worker behind handle.
	StopWorker(ctx context.Context, handle WorkerHandle) error

	// InternalDeregisterApplication handles a deregisterApplication RPC:
	// the framework backend's own cluster-teardown hook.
	InternalDeregisterApplication(ctx context.Context, status ApplicationStatus, diagnostics string) error

	// PrepareLeadershipAsync runs once, after the fencing token is set and
	// before leadership is confirmed to the election service (§4.3 step d).
	PrepareLeadershipAsync(ctx context.Context) error

	// ClearStateAsync runs once clearStateInternal has emptied the
	// registration tables; a grant of leadership that arrives while this
	// is still pending must wait for it (§4.3, §8 boundary behavior).
	ClearStateAsync(ctx context.Context) error
}

// JobManagerGateway is the outbound interface to a registered job manager's
// remote process.
type JobManagerGateway interface {
	HeartbeatFromResourceManager(ctx context.Context) error
	DisconnectResourceManager(ctx context.Context, token FencingToken, cause error) error
	NotifyAllocationFailure(ctx context.Context, alloc AllocationID, cause error) error
}

// TaskExecutorGateway is the outbound interface to a registered task
// executor's remote process.
type TaskExecutorGateway interface {
	HeartbeatFromResourceManager(ctx context.Context) error
	DisconnectResourceManager(ctx context.Context, cause error) error
	RequestMetricQueryServiceAddress(ctx context.Context, timeout time.Duration) (addr string, ok bool, err error)
	RequestFileUpload(ctx context.Context, fileType FileType) error
}

// LeadershipListener receives leadership transitions from a LeaderElection
// service. Both methods, plus OnFatalError, are invoked on whatever
// goroutine the election backend uses; implementations (the actor loop)
// must schedule their own work back onto their single-writer goroutine.
type LeadershipListener interface {
	GrantLeadership(sessionID string)
	RevokeLeadership()
	OnFatalError(err error)
}

// LeaderElection is C3: the binding to the high-availability service that
// performs leader election and exposes fencing confirmation.
type LeaderElection interface {
	Start(listener LeadershipListener) error
	Stop() error
	// ConfirmLeadership tells the election service this endpoint is ready to
	// serve as leader under token, for the given session. Must only be
	// called after services have started (§4.3 step (e)).
	ConfirmLeadership(sessionID string, token FencingToken) error
	// HasLeadership reports whether sessionID is still this election
	// service's idea of the current leadership session (used to guard
	// against granting leadership for a session that has since been lost).
	HasLeadership(sessionID string) bool
}

// JobLeaderIDListener receives callbacks from a JobLeaderIDService.
type JobLeaderIDListener interface {
	JobLeaderLostLeadership(job JobID, oldJobMasterId FencingToken)
	NotifyJobTimeout(job JobID, timeoutID string)
}

// LeaderIDResult is the resolved value of a JobLeaderIDService.GetLeaderID
// future: either the authoritative JobMasterId for a job, or a failure to
// determine it.
type LeaderIDResult struct {
	JobMasterId FencingToken
	Err         error
}

// JobLeaderIDService is C4: for each JobID it exposes a future resolving to
// the job's current leading JobMasterId, and fires callbacks on change or
// idle timeout.
type JobLeaderIDService interface {
	ContainsJob(job JobID) bool
	AddJob(job JobID) error
	RemoveJob(job JobID)
	// GetLeaderID returns a channel that will receive exactly one
	// LeaderIDResult once the leader for job is known.
	GetLeaderID(job JobID) (<-chan LeaderIDResult, error)
	IsValidTimeout(job JobID, timeoutID string) bool
	Clear() error
	SetListener(listener JobLeaderIDListener)
}
