package rm

import "github.com/google/uuid"

// ResourceID identifies a physical host or process. It is stable across
// reconnects: a task executor or job manager that restarts on the same host
// keeps the same ResourceID.
type ResourceID string

// InstanceID identifies one successful registration attempt of a task
// executor. It is freshly minted on every registration and invalidated by
// re-registration or disconnect; the slot manager uses it to detect stale
// messages from a previous incarnation of the same ResourceID.
type InstanceID string

// JobID identifies a job. Stable for the job's lifetime.
type JobID string

// AllocationID identifies a single slot reservation made on behalf of a job.
type AllocationID string

// SlotID identifies one unit of execution capacity advertised by a task
// executor. The owning ResourceID is embedded so a SlotID alone is enough to
// find the advertising worker.
type SlotID struct {
	Owner ResourceID
	Index int
}

// FencingToken is a leadership epoch identifier (a JobMasterId when it scopes
// a job manager replica, a ResourceManagerId when it scopes this endpoint).
// The zero value denotes "no token held" — a follower, or a job not yet
// claimed by any replica.
type FencingToken string

// NewFencingToken mints a fresh, randomly generated epoch token.
func NewFencingToken() FencingToken {
	return FencingToken(uuid.NewString())
}

// Valid reports whether the token denotes an actual epoch rather than the
// absence of one.
func (t FencingToken) Valid() bool {
	return t != ""
}

// NewInstanceID mints a fresh InstanceID for a successful task-executor
// registration.
func NewInstanceID() InstanceID {
	return InstanceID(uuid.NewString())
}

// ResourceProfile describes the hardware shape of a slot or a registered
// worker: CPU, memory, and disk capacity.
type ResourceProfile struct {
	CPUMillicores int64
	MemoryBytes   int64
	DiskBytes     int64
}

// Matches reports whether this profile can satisfy a requested profile.
func (p ResourceProfile) Matches(requested ResourceProfile) bool {
	return p.CPUMillicores >= requested.CPUMillicores &&
		p.MemoryBytes >= requested.MemoryBytes &&
		p.DiskBytes >= requested.DiskBytes
}

// HardwareDescription is the static description a task executor reports at
// registration time.
type HardwareDescription struct {
	CPUMillicores int64
	MemoryBytes   int64
	DiskBytes     int64
}

// ClusterInformation is static metadata returned to participants at
// registration time.
type ClusterInformation struct {
	BlobServerAddress string
}
