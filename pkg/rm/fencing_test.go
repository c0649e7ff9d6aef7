package rm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFencedRPCRejectedBeforeLeadership covers I5: while no fencing token is
// held, a fenced RPC fails at dispatch even when the caller also asserts the
// empty token (the two empty strings must not compare equal into a pass).
func TestFencedRPCRejectedBeforeLeadership(t *testing.T) {
	e, _, _, slotManager := newUnleaderedTestEndpoint(nil)
	defer e.Stop()

	err := e.RequestSlotFromResourceManager("", "", SlotRequest{
		JobID:        JobID("job-a"),
		AllocationID: AllocationID("alloc-1"),
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFencingMismatch))

	slotManager.mu.Lock()
	defer slotManager.mu.Unlock()
	assert.Empty(t, slotManager.requests)
}

// TestRequestSlotRejectsStaleResourceManagerId confirms a caller asserting an
// epoch other than the one this endpoint currently holds is rejected before
// the handler (and therefore the slot manager) ever sees the request, and
// that rejection wakes the caller rather than leaving it blocked.
func TestRequestSlotRejectsStaleResourceManagerId(t *testing.T) {
	e, _, _, slotManager := newTestEndpoint()
	defer e.Stop()

	err := e.RequestSlotFromResourceManager(FencingToken("some-other-epoch"), FencingToken("leader-1"), SlotRequest{
		JobID:        JobID("job-a"),
		AllocationID: AllocationID("alloc-1"),
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFencingMismatch))

	slotManager.mu.Lock()
	defer slotManager.mu.Unlock()
	assert.Empty(t, slotManager.requests)
}

// TestFencedRPCsFailAfterRevocation covers scenario 5: once leadership is
// revoked, the fencing token is cleared and subsequent fenced RPCs fail.
func TestFencedRPCsFailAfterRevocation(t *testing.T) {
	e, election, _, slotManager := newTestEndpoint()
	defer e.Stop()

	token := e.CurrentFencingToken()
	require.True(t, token.Valid())

	election.revoke()

	deadline := waitForCondition(t, func() bool { return !e.CurrentFencingToken().Valid() })
	require.True(t, deadline)

	err := e.RequestSlotFromResourceManager(token, FencingToken("leader-1"), SlotRequest{
		JobID:        JobID("job-a"),
		AllocationID: AllocationID("alloc-1"),
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFencingMismatch))

	slotManager.mu.Lock()
	defer slotManager.mu.Unlock()
	assert.Empty(t, slotManager.requests)
}
