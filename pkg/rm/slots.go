package rm

import (
	"context"
	"fmt"

	"github.com/cuemby/ohmsrm/pkg/events"
)

// SlotStatus is one slot as observed by a task executor: its identity, the
// allocation currently occupying it (nil if free), and its resource shape.
type SlotStatus struct {
	SlotID     SlotID
	Allocation *AllocationID
	Profile    ResourceProfile
}

// SlotReport is a task executor's snapshot of all its slots, sent at initial
// registration (sendSlotReport) and on every heartbeat thereafter.
type SlotReport struct {
	ResourceID ResourceID
	Slots      []SlotStatus
}

// SlotRequest asks for one slot matching Profile, optionally preferring a
// specific host.
type SlotRequest struct {
	JobID         JobID
	AllocationID  AllocationID
	Profile       ResourceProfile
	PreferredHost ResourceID
}

// SlotManager is the external collaborator that owns the slot supply/demand
// table and matching policy (§1: out of scope, only its contract matters).
// The actor loop is the only caller; every method is assumed to run on the
// actor-loop goroutine, so SlotManager implementations need no internal
// locking of their own either.
type SlotManager interface {
	// Start begins accepting requests under the given fencing token, wired
	// to actions for worker allocation/release callbacks (§4.3 "start slot
	// manager with the new token and a fresh ResourceActions").
	Start(token FencingToken, actions ResourceActions)
	// Suspend stops accepting requests on loss of leadership.
	Suspend()

	// RegisterTaskManager adds instance to the slot manager's view of
	// available task executors (§3-Invariant-4). Called once, from
	// sendSlotReport, not from every heartbeat.
	RegisterTaskManager(instance InstanceID, resourceID ResourceID, hardware HardwareDescription) error
	// UnregisterTaskManager removes instance's slots. Idempotent: called
	// both when a worker registration exists and as pure cleanup when it
	// doesn't (§4.7 releaseResource).
	UnregisterTaskManager(instance InstanceID, cause error)

	// ReportSlotStatus delivers a heartbeat-carried slot report for an
	// already-registered instance.
	ReportSlotStatus(instance InstanceID, report SlotReport)

	// RegisterSlotRequest attempts to satisfy req, possibly triggering
	// ResourceActions.AllocateResource.
	RegisterSlotRequest(req SlotRequest) error
	// CancelSlotRequest is best-effort: the caller may race with
	// allocation, so there is no error return (§4.6).
	CancelSlotRequest(alloc AllocationID)
	// FreeSlot marks a slot free again after notifySlotAvailable.
	FreeSlot(slot SlotID, alloc AllocationID) error
}

// ResourceActions is C7: the callback surface the slot manager uses to ask
// the core for new workers, release existing ones, and report allocation
// failures back to job managers. Implemented by *Endpoint. The methods do
// not check which goroutine calls them: ReleaseResource and
// NotifyAllocationFailure read the registration tables directly, and
// pkg/slotmanager also calls AllocateResource from its own match-cycle
// goroutine.
type ResourceActions interface {
	AllocateResource(ctx context.Context, profile ResourceProfile) ([]ResourceProfile, error)
	ReleaseResource(instance InstanceID, cause error)
	NotifyAllocationFailure(job JobID, alloc AllocationID, cause error)
}

// RequestSlotFromResourceManager is the inbound RPC surface for §4.6 step
// 1-3: caller is the wire envelope's asserted ResourceManagerId, checked
// against this endpoint's live fencing token at dispatch; jobMasterId is the
// job manager's own claimed leadership epoch, checked against the job's
// registered JobMasterId inside requestSlot. The two are distinct axes: a
// stale caller never reaches requestSlot at all, and a live caller whose
// jobMasterId no longer matches the job's registration is declined there.
func (e *Endpoint) RequestSlotFromResourceManager(caller FencingToken, jobMasterId FencingToken, req SlotRequest) error {
	reply := make(chan error, 1)
	e.runFencedReply(caller, func(ctx context.Context) {
		reply <- e.requestSlot(jobMasterId, req)
	}, func() { reply <- ErrFencingMismatch })
	select {
	case err := <-reply:
		return err
	case <-e.doneCh:
		return ErrShuttingDown
	}
}

// CancelSlotRequest is the inbound RPC surface for §4.6's best-effort
// cancellation, fenced by the current ResourceManagerId like every other
// mutating RPC in the table.
func (e *Endpoint) CancelSlotRequest(caller FencingToken, alloc AllocationID) {
	e.runFenced(caller, func(ctx context.Context) {
		e.cancelSlotRequest(alloc)
	})
}

// NotifySlotAvailable is the inbound RPC surface for §4.6: a task executor
// reports that an allocation's slot has been freed.
func (e *Endpoint) NotifySlotAvailable(caller FencingToken, instance InstanceID, slot SlotID, alloc AllocationID) error {
	reply := make(chan error, 1)
	e.runFencedReply(caller, func(ctx context.Context) {
		reply <- e.notifySlotAvailable(instance, slot, alloc)
	}, func() { reply <- ErrFencingMismatch })
	select {
	case err := <-reply:
		return err
	case <-e.doneCh:
		return ErrShuttingDown
	}
}

// requestSlot implements C6 §4.6 step 1-3.
func (e *Endpoint) requestSlot(jobMasterId FencingToken, req SlotRequest) error {
	reg, ok := e.tables.jobManagersByJobID[req.JobID]
	if !ok {
		return e.declineSlotRequest(req, fmt.Sprintf("unregistered job manager for job %s", req.JobID))
	}
	if reg.JobMasterId != jobMasterId {
		return e.declineSlotRequest(req, fmt.Sprintf("leadership mismatch for job %s", req.JobID))
	}
	if err := e.cfg.SlotManager.RegisterSlotRequest(req); err != nil {
		return opFailure(err)
	}
	return nil
}

// declineSlotRequest builds the Decline error and reports it to the event
// broker before returning it to the caller.
func (e *Endpoint) declineSlotRequest(req SlotRequest, reason string) error {
	e.publish(events.EventSlotRequestDeclined, reason, map[string]string{
		"job_id":        string(req.JobID),
		"allocation_id": string(req.AllocationID),
	})
	return decline(reason)
}

// cancelSlotRequest implements C6 §4.6: forwarded unconditionally.
func (e *Endpoint) cancelSlotRequest(alloc AllocationID) {
	e.cfg.SlotManager.CancelSlotRequest(alloc)
}

// notifySlotAvailable implements C6 §4.6: ignore stale incarnations.
func (e *Endpoint) notifySlotAvailable(instance InstanceID, slot SlotID, alloc AllocationID) error {
	reg, ok := e.tables.taskExecutors[slot.Owner]
	if !ok || reg.InstanceID != instance {
		// Stale incarnation; ignore per spec.
		return nil
	}
	if err := e.cfg.SlotManager.FreeSlot(slot, alloc); err != nil {
		return opFailure(err)
	}
	return nil
}
