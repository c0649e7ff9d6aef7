package transport

import "github.com/cuemby/ohmsrm/pkg/rm"

// Empty is the request/response type for RPCs that carry no payload.
type Empty struct{}

// Every mutating request below carries ResourceManagerId: the envelope
// fencing token the caller asserts is the resource manager's current epoch.
// The server forwards it unexamined into the matching rm.Endpoint method,
// which admits or rejects the call against its own live fencing token at
// actor-loop dispatch time (§6 "each fenced by the current ResourceManagerId
// unless otherwise noted") — the transport layer carries the assertion, it
// does not itself adjudicate it. Populated from the ResourceManagerId a
// participant received in its registration response and echoed on every
// subsequent call.

// SendSlotReportRequest is the wire form of Endpoint.SendSlotReport.
type SendSlotReportRequest struct {
	ResourceManagerId rm.FencingToken
	ResourceID        rm.ResourceID
	InstanceID        rm.InstanceID
	Report            rm.SlotReport
}

// DisconnectTaskManagerRequest is the wire form of Endpoint.DisconnectTaskManager.
type DisconnectTaskManagerRequest struct {
	ResourceManagerId rm.FencingToken
	ResourceID        rm.ResourceID
	Cause             string
}

// DisconnectJobManagerRequest is the wire form of Endpoint.DisconnectJobManager.
type DisconnectJobManagerRequest struct {
	ResourceManagerId rm.FencingToken
	JobID             rm.JobID
	Cause             string
}

// HeartbeatFromTaskManagerRequest is the wire form of Endpoint.HeartbeatFromTaskManager.
type HeartbeatFromTaskManagerRequest struct {
	ResourceManagerId rm.FencingToken
	ResourceID        rm.ResourceID
	Report            rm.SlotReport
}

// HeartbeatFromJobManagerRequest is the wire form of Endpoint.HeartbeatFromJobManager.
type HeartbeatFromJobManagerRequest struct {
	ResourceManagerId rm.FencingToken
	ResourceID        rm.ResourceID
}

// RequestSlotRequest is the wire form of Endpoint.RequestSlotFromResourceManager.
// ResourceManagerId and JobMasterId are distinct epochs: the former gates
// dispatch onto the actor loop, the latter is checked against the job's
// registered leader inside the handler.
type RequestSlotRequest struct {
	ResourceManagerId rm.FencingToken
	JobMasterId       rm.FencingToken
	Req               rm.SlotRequest
}

// CancelSlotRequestRequest is the wire form of Endpoint.CancelSlotRequest.
type CancelSlotRequestRequest struct {
	ResourceManagerId rm.FencingToken
	AllocationID      rm.AllocationID
}

// NotifySlotAvailableRequest is the wire form of Endpoint.NotifySlotAvailable.
type NotifySlotAvailableRequest struct {
	ResourceManagerId rm.FencingToken
	Instance          rm.InstanceID
	Slot              rm.SlotID
	Alloc             rm.AllocationID
}

// DeregisterApplicationRequest is the wire form of Endpoint.DeregisterApplication.
type DeregisterApplicationRequest struct {
	Status      rm.ApplicationStatus
	Diagnostics string
}

// TaskManagerInfoResponse wraps Endpoint.RequestTaskManagerInfo's slice
// result (gRPC unary responses are a single message, not a bare slice).
type TaskManagerInfoResponse struct {
	TaskManagers []rm.TaskManagerInfo
}

// ResourceOverviewResponse wraps Endpoint.RequestResourceOverview's result.
type ResourceOverviewResponse struct {
	Overview rm.ResourceOverview
}

// --- outbound gateway RPC wire types (resource manager -> job manager / task executor) ---

// DisconnectResourceManagerRequest is sent to a task executor's
// DisconnectResourceManager RPC.
type DisconnectResourceManagerRequest struct {
	Cause string
}

// DisconnectResourceManagerFromJobManagerRequest is sent to a job manager's
// DisconnectResourceManager RPC (it additionally carries the fencing token
// being revoked).
type DisconnectResourceManagerFromJobManagerRequest struct {
	Token rm.FencingToken
	Cause string
}

// NotifyAllocationFailureRequest is sent to a job manager's
// NotifyAllocationFailure RPC.
type NotifyAllocationFailureRequest struct {
	AllocationID rm.AllocationID
	Cause        string
}

// RequestMetricQueryServiceAddressRequest is sent to a task executor.
type RequestMetricQueryServiceAddressRequest struct{}

// RequestMetricQueryServiceAddressResponse is the task executor's reply.
type RequestMetricQueryServiceAddressResponse struct {
	Address string
	OK      bool
}

// RequestFileUploadRequest is sent to a task executor.
type RequestFileUploadRequest struct {
	FileType rm.FileType
}
