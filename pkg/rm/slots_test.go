package rm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestSlotDeclinesForUnregisteredJob(t *testing.T) {
	e, _, _, _ := newTestEndpoint()
	defer e.Stop()

	err := e.RequestSlotFromResourceManager(e.CurrentFencingToken(), FencingToken("whatever"), SlotRequest{
		JobID:        JobID("job-unknown"),
		AllocationID: AllocationID("alloc-1"),
	})

	require.Error(t, err)
	var decline *Decline
	assert.ErrorAs(t, err, &decline)
}

func TestRequestSlotDeclinesOnLeadershipMismatch(t *testing.T) {
	e, _, jobLeaderID, _ := newTestEndpoint()
	defer e.Stop()

	job := JobID("job-a")
	leader := FencingToken("leader-1")
	jobLeaderID.setLeader(job, leader)

	_, err := e.RegisterJobManager(context.Background(), RegisterJobManagerRequest{
		JobMasterId: leader,
		ResourceID:  ResourceID("jm-1"),
		Address:     "127.0.0.1:1",
		JobID:       job,
	})
	require.NoError(t, err)

	err = e.RequestSlotFromResourceManager(e.CurrentFencingToken(), FencingToken("impostor"), SlotRequest{
		JobID:        job,
		AllocationID: AllocationID("alloc-1"),
	})

	require.Error(t, err)
	var decline *Decline
	assert.ErrorAs(t, err, &decline)
}

func TestRequestSlotSucceedsForCurrentJobLeader(t *testing.T) {
	e, _, jobLeaderID, slotManager := newTestEndpoint()
	defer e.Stop()

	job := JobID("job-a")
	leader := FencingToken("leader-1")
	jobLeaderID.setLeader(job, leader)

	_, err := e.RegisterJobManager(context.Background(), RegisterJobManagerRequest{
		JobMasterId: leader,
		ResourceID:  ResourceID("jm-1"),
		Address:     "127.0.0.1:1",
		JobID:       job,
	})
	require.NoError(t, err)

	req := SlotRequest{JobID: job, AllocationID: AllocationID("alloc-1")}
	err = e.RequestSlotFromResourceManager(e.CurrentFencingToken(), leader, req)
	require.NoError(t, err)

	slotManager.mu.Lock()
	defer slotManager.mu.Unlock()
	require.Len(t, slotManager.requests, 1)
	assert.Equal(t, req, slotManager.requests[0])
}
