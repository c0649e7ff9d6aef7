package rm

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/ohmsrm/pkg/events"
)

func causeMessage(cause error) string {
	if cause == nil {
		return ""
	}
	return cause.Error()
}

// GatewayConnector is the RPC-transport collaborator the registration state
// machine uses to open outbound connections to newly registering
// participants. Declared external per §1 ("RPC transport... connecting to
// remote gateways" is out of scope); only this contract matters to C5.
type GatewayConnector interface {
	ConnectJobManager(ctx context.Context, resourceID ResourceID, address string, claimed FencingToken) (JobManagerGateway, error)
	ConnectTaskExecutor(ctx context.Context, resourceID ResourceID, address string) (TaskExecutorGateway, error)
}

// RegisterJobManagerRequest is the input to registerJobManager (§4.5).
type RegisterJobManagerRequest struct {
	JobMasterId FencingToken
	ResourceID  ResourceID
	Address     string
	JobID       JobID
}

// RegisterJobManagerResponse carries the accepted registration's epoch and
// this endpoint's own identity, or (via error) a decline/failure.
type RegisterJobManagerResponse struct {
	FencingToken      FencingToken
	ResourceManagerID ResourceID
}

// RegisterJobManager implements C5's job-manager registration path. It may
// suspend on the job-leader-id future and the gateway connect future, both
// joined before the admission decision is made (§4.5 steps 1-4).
func (e *Endpoint) RegisterJobManager(ctx context.Context, req RegisterJobManagerRequest) (*RegisterJobManagerResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RegistrationTimeout)
	defer cancel()

	if !e.cfg.JobLeaderID.ContainsJob(req.JobID) {
		if err := e.cfg.JobLeaderID.AddJob(req.JobID); err != nil {
			e.OnFatalError(fmt.Errorf("adding job %s to job-leader-id service: %w", req.JobID, err))
			return nil, opFailure(err)
		}
	}

	leaderCh, err := e.cfg.JobLeaderID.GetLeaderID(req.JobID)
	if err != nil {
		e.OnFatalError(fmt.Errorf("fetching leader id for job %s: %w", req.JobID, err))
		return nil, opFailure(err)
	}

	type connectResult struct {
		gw  JobManagerGateway
		err error
	}
	connectCh := make(chan connectResult, 1)
	go func() {
		gw, err := e.cfg.Connector.ConnectJobManager(ctx, req.ResourceID, req.Address, req.JobMasterId)
		connectCh <- connectResult{gw: gw, err: err}
	}()

	// Join both futures: the leader-id lookup and the gateway connect race
	// concurrently, and both must land before the admission decision (§4.5
	// steps 2-4).
	var leaderResult LeaderIDResult
	var conn connectResult
	haveLeader, haveConn := false, false
	for !haveLeader || !haveConn {
		select {
		case leaderResult = <-leaderCh:
			haveLeader = true
		case conn = <-connectCh:
			haveConn = true
		case <-ctx.Done():
			return nil, opFailure(ctx.Err())
		}
	}

	if leaderResult.Err != nil {
		return nil, opFailure(leaderResult.Err)
	}
	if conn.err != nil {
		return nil, decline(fmt.Sprintf("could not connect to job manager gateway: %v", conn.err))
	}
	if leaderResult.JobMasterId != req.JobMasterId {
		return nil, decline(fmt.Sprintf("claimed job master id %s does not match authoritative leader %s", req.JobMasterId, leaderResult.JobMasterId))
	}

	reply := make(chan *RegisterJobManagerResponse, 1)
	errCh := make(chan error, 1)
	e.runUnfenced(func(ctx context.Context) {
		resp, err := e.admitJobManager(req, conn.gw)
		if err != nil {
			errCh <- err
			return
		}
		reply <- resp
	})

	select {
	case resp := <-reply:
		return resp, nil
	case err := <-errCh:
		return nil, err
	case <-e.doneCh:
		return nil, ErrShuttingDown
	}
}

// admitJobManager runs on the actor loop and implements §4.5 step 5-7.
func (e *Endpoint) admitJobManager(req RegisterJobManagerRequest, gw JobManagerGateway) (*RegisterJobManagerResponse, error) {
	if existing, ok := e.tables.jobManagersByJobID[req.JobID]; ok {
		if existing.JobMasterId == req.JobMasterId {
			// Idempotent re-registration: tables and monitor unchanged.
			return &RegisterJobManagerResponse{FencingToken: e.fencingToken, ResourceManagerID: e.cfg.ResourceID}, nil
		}
		e.disconnectJobManagerInternal(existing.JobID, fmt.Errorf("superseded by a new registration"))
	}

	reg := &JobManagerRegistration{
		JobID:        req.JobID,
		ResourceID:   req.ResourceID,
		Gateway:      gw,
		JobMasterId:  req.JobMasterId,
		RegisteredAt: time.Now(),
	}
	e.tables.putJobManager(reg)
	if e.jobMonitor != nil {
		e.jobMonitor.MonitorTarget(req.ResourceID)
	}
	e.publish(events.EventJobManagerAdmitted, "job manager registered", map[string]string{
		"job_id":      string(req.JobID),
		"resource_id": string(req.ResourceID),
	})

	return &RegisterJobManagerResponse{FencingToken: e.fencingToken, ResourceManagerID: e.cfg.ResourceID}, nil
}

// RegisterTaskExecutorRequest is the input to registerTaskExecutor (§4.5).
type RegisterTaskExecutorRequest struct {
	Address    string
	ResourceID ResourceID
	DataPort   int
	Hardware   HardwareDescription
}

// RegisterTaskExecutorResponse carries the freshly minted InstanceID, this
// endpoint's identity, and the cluster information blob.
type RegisterTaskExecutorResponse struct {
	InstanceID        InstanceID
	ResourceManagerID ResourceID
	ClusterInfo       ClusterInformation
}

// RegisterTaskExecutor implements C5's task-executor registration path
// (§4.5). Step 1-2's pointer-identity race is reproduced with a
// monotonically increasing attempt sequence number per the §9 design note.
func (e *Endpoint) RegisterTaskExecutor(ctx context.Context, req RegisterTaskExecutorRequest) (*RegisterTaskExecutorResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RegistrationTimeout)
	defer cancel()

	seqCh := make(chan uint64, 1)
	e.runUnfenced(func(ctx context.Context) {
		seqCh <- e.tables.beginPending(req.ResourceID)
	})
	var seq uint64
	select {
	case seq = <-seqCh:
	case <-ctx.Done():
		return nil, opFailure(ctx.Err())
	case <-e.doneCh:
		return nil, ErrShuttingDown
	}

	gw, connErr := e.cfg.Connector.ConnectTaskExecutor(ctx, req.ResourceID, req.Address)

	reply := make(chan *RegisterTaskExecutorResponse, 1)
	errCh := make(chan error, 1)
	e.runUnfenced(func(ctx context.Context) {
		resp, err := e.admitTaskExecutor(ctx, req, seq, gw, connErr)
		if err != nil {
			errCh <- err
			return
		}
		reply <- resp
	})

	select {
	case resp := <-reply:
		return resp, nil
	case err := <-errCh:
		return nil, err
	case <-e.doneCh:
		return nil, ErrShuttingDown
	}
}

// admitTaskExecutor runs on the actor loop and implements §4.5 steps 2-6.
func (e *Endpoint) admitTaskExecutor(ctx context.Context, req RegisterTaskExecutorRequest, seq uint64, gw TaskExecutorGateway, connErr error) (*RegisterTaskExecutorResponse, error) {
	if !e.tables.isCurrentAttempt(req.ResourceID, seq) {
		return nil, decline(fmt.Sprintf("registration for %s superseded by a newer attempt", req.ResourceID))
	}
	e.tables.endPending(req.ResourceID, seq)

	if connErr != nil {
		return nil, decline(fmt.Sprintf("could not connect to task executor gateway: %v", connErr))
	}

	if prior, ok := e.tables.removeTaskExecutor(req.ResourceID); ok {
		if e.taskMonitor != nil {
			e.taskMonitor.UnmonitorTarget(req.ResourceID)
		}
		e.cfg.SlotManager.UnregisterTaskManager(prior.InstanceID, fmt.Errorf("replaced by a new registration"))
	}

	handle, ok := e.cfg.Framework.WorkerStarted(ctx, req.ResourceID)
	if !ok {
		return nil, decline(fmt.Sprintf("resource id %s is not a recognized worker", req.ResourceID))
	}

	reg := &WorkerRegistration{
		ResourceID: req.ResourceID,
		Address:    req.Address,
		Gateway:    gw,
		Handle:     handle,
		DataPort:   req.DataPort,
		Hardware:   req.Hardware,
		InstanceID: NewInstanceID(),
		Registered: time.Now(),
	}
	e.tables.putTaskExecutor(reg)
	if e.taskMonitor != nil {
		e.taskMonitor.MonitorTarget(req.ResourceID)
	}
	e.publish(events.EventTaskExecutorAdmitted, "task executor registered", map[string]string{
		"resource_id": string(req.ResourceID),
		"instance_id": string(reg.InstanceID),
	})

	return &RegisterTaskExecutorResponse{
		InstanceID:        reg.InstanceID,
		ResourceManagerID: e.cfg.ResourceID,
		ClusterInfo:       e.cfg.ClusterInfo,
	}, nil
}

// SendSlotReport implements §4.5 sendSlotReport: accepted only when instance
// matches the currently stored InstanceID for resourceID. Fenced by the
// caller's asserted ResourceManagerId.
func (e *Endpoint) SendSlotReport(caller FencingToken, resourceID ResourceID, instance InstanceID, report SlotReport) error {
	reply := make(chan error, 1)
	e.runFencedReply(caller, func(ctx context.Context) {
		reg, ok := e.tables.taskExecutors[resourceID]
		if !ok {
			reply <- decline(fmt.Sprintf("unknown task executor %s", resourceID))
			return
		}
		if reg.InstanceID != instance {
			reply <- decline("stale slot report: instance id does not match current registration")
			return
		}
		if err := e.cfg.SlotManager.RegisterTaskManager(instance, resourceID, reg.Hardware); err != nil {
			reply <- opFailure(err)
			return
		}
		e.cfg.SlotManager.ReportSlotStatus(instance, report)
		reply <- nil
	}, func() { reply <- ErrFencingMismatch })
	select {
	case err := <-reply:
		return err
	case <-e.doneCh:
		return ErrShuttingDown
	}
}

// DisconnectTaskManager implements the task-executor half of §4.5's
// explicit-disconnect path. Idempotent: absence of the entry is not an
// error. Fenced by the caller's asserted ResourceManagerId: a disconnect
// from a stale epoch is simply dropped rather than reaching the tables.
func (e *Endpoint) DisconnectTaskManager(caller FencingToken, resourceID ResourceID, cause error) {
	e.runFenced(caller, func(ctx context.Context) {
		e.disconnectTaskManagerInternal(ctx, resourceID, cause)
	})
}

func (e *Endpoint) disconnectTaskManagerInternal(ctx context.Context, resourceID ResourceID, cause error) {
	reg, ok := e.tables.removeTaskExecutor(resourceID)
	if !ok {
		return
	}
	if e.taskMonitor != nil {
		e.taskMonitor.UnmonitorTarget(resourceID)
	}
	e.cfg.SlotManager.UnregisterTaskManager(reg.InstanceID, cause)
	e.publish(events.EventTaskExecutorLost, "task executor disconnected", map[string]string{
		"resource_id": string(resourceID),
		"cause":       causeMessage(cause),
	})
	if reg.Gateway != nil {
		if err := reg.Gateway.DisconnectResourceManager(ctx, cause); err != nil {
			e.logger.Debug().Err(err).Str("resource_id", string(resourceID)).Msg("failed to notify task executor of disconnect")
		}
	}
}

// DisconnectJobManager implements the job-manager half of §4.5's explicit
// disconnect path. Fenced by the caller's asserted ResourceManagerId.
func (e *Endpoint) DisconnectJobManager(caller FencingToken, jobID JobID, cause error) {
	e.runFenced(caller, func(ctx context.Context) {
		e.disconnectJobManagerInternal(jobID, cause)
	})
}

func (e *Endpoint) disconnectJobManagerInternal(jobID JobID, cause error) {
	reg, ok := e.tables.removeJobManagerByJobID(jobID)
	if !ok {
		return
	}
	if e.jobMonitor != nil {
		e.jobMonitor.UnmonitorTarget(reg.ResourceID)
	}
	e.publish(events.EventJobManagerLost, "job manager disconnected", map[string]string{
		"job_id": string(jobID),
		"cause":  causeMessage(cause),
	})
	if reg.Gateway != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := reg.Gateway.DisconnectResourceManager(ctx, e.fencingToken, cause); err != nil {
			e.logger.Debug().Err(err).Str("job_id", string(jobID)).Msg("failed to notify job manager of disconnect")
		}
	}
}

// --- JobLeaderIDListener ---

// JobLeaderLostLeadership implements C4's callback: disconnect the job's
// registration only if it still names the job-manager replica that just
// lost leadership; otherwise ignore (§4.4, §8 boundary behavior).
func (e *Endpoint) JobLeaderLostLeadership(job JobID, oldJobMasterId FencingToken) {
	e.runUnfenced(func(ctx context.Context) {
		reg, ok := e.tables.jobManagersByJobID[job]
		if !ok || reg.JobMasterId != oldJobMasterId {
			return
		}
		e.disconnectJobManagerInternal(job, fmt.Errorf("job manager replica %s lost leadership for job %s", oldJobMasterId, job))
	})
}

// NotifyJobTimeout implements C4's idle-timeout callback.
func (e *Endpoint) NotifyJobTimeout(job JobID, timeoutID string) {
	e.runUnfenced(func(ctx context.Context) {
		if !e.cfg.JobLeaderID.IsValidTimeout(job, timeoutID) {
			return
		}
		e.cfg.JobLeaderID.RemoveJob(job)
	})
}
