package rm

import (
	"context"
	"time"

	"github.com/cuemby/ohmsrm/pkg/events"
)

// AllocateResource implements C7 §4.7 allocateResource: delegates directly
// to the framework backend. The returned profiles describe what the new
// worker will advertise once it registers; the registration itself arrives
// later as an ordinary RegisterTaskExecutor call, not from this method.
func (e *Endpoint) AllocateResource(ctx context.Context, profile ResourceProfile) ([]ResourceProfile, error) {
	profiles, err := e.cfg.Framework.StartNewWorker(ctx, profile)
	if err != nil {
		return nil, opFailure(err)
	}
	return profiles, nil
}

// ReleaseResource implements C7 §4.7 releaseResource: locate the worker by
// InstanceID (a linear scan is acceptable per the spec's own TODO), stop it
// via the framework backend, and run the disconnect path. If no such worker
// is found the table entry is already gone, but slotManager.UnregisterTaskManager
// is still invoked to clean up any residual state there.
func (e *Endpoint) ReleaseResource(instance InstanceID, cause error) {
	reg, ok := e.tables.taskExecutorByInstance(instance)
	if !ok {
		e.cfg.SlotManager.UnregisterTaskManager(instance, cause)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.cfg.Framework.StopWorker(ctx, reg.Handle); err != nil {
		e.logger.Error().Err(err).Str("resource_id", string(reg.ResourceID)).Msg("failed to stop worker during resource release")
		return
	}

	e.disconnectTaskManagerInternal(ctx, reg.ResourceID, cause)
}

// NotifyAllocationFailure implements C7 §4.7: forwards to the job manager's
// gateway if it is still registered, otherwise silently drops.
func (e *Endpoint) NotifyAllocationFailure(job JobID, alloc AllocationID, cause error) {
	e.publish(events.EventAllocationFailed, causeMessage(cause), map[string]string{
		"job_id":        string(job),
		"allocation_id": string(alloc),
	})
	reg, ok := e.tables.jobManagersByJobID[job]
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := reg.Gateway.NotifyAllocationFailure(ctx, alloc, cause); err != nil {
		e.logger.Debug().Err(err).Str("job_id", string(job)).Msg("failed to notify job manager of allocation failure")
	}
}
