package jobleader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ohmsrm/pkg/rm"
)

func TestSingleMasterResolverResolveLeader(t *testing.T) {
	r := NewSingleMasterResolver(rm.FencingToken("leader-1"))

	token, err := r.ResolveLeader(context.Background(), rm.JobID("job-a"))
	require.NoError(t, err)
	assert.Equal(t, rm.FencingToken("leader-1"), token)

	// Same answer regardless of which job asks.
	token, err = r.ResolveLeader(context.Background(), rm.JobID("job-b"))
	require.NoError(t, err)
	assert.Equal(t, rm.FencingToken("leader-1"), token)
}

func TestSingleMasterResolverWatchClosesOnCancel(t *testing.T) {
	r := NewSingleMasterResolver(rm.FencingToken("leader-1"))
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := r.Watch(ctx, rm.JobID("job-a"))
	require.NoError(t, err)

	select {
	case _, ok := <-ch:
		t.Fatalf("watch channel delivered before cancel: ok=%v", ok)
	case <-time.After(20 * time.Millisecond):
	}

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "watch channel should be closed after cancel")
	case <-time.After(time.Second):
		t.Fatal("watch channel did not close after cancel")
	}
}

func TestBrokerResolverResolveLeaderBlocksUntilSetLeader(t *testing.T) {
	r := NewBrokerResolver()
	job := rm.JobID("job-a")

	resultCh := make(chan rm.FencingToken, 1)
	errCh := make(chan error, 1)
	go func() {
		token, err := r.ResolveLeader(context.Background(), job)
		resultCh <- token
		errCh <- err
	}()

	select {
	case <-resultCh:
		t.Fatal("ResolveLeader returned before SetLeader was called")
	case <-time.After(20 * time.Millisecond):
	}

	r.SetLeader(job, rm.FencingToken("leader-1"))

	select {
	case token := <-resultCh:
		assert.Equal(t, rm.FencingToken("leader-1"), token)
		require.NoError(t, <-errCh)
	case <-time.After(time.Second):
		t.Fatal("ResolveLeader did not return after SetLeader")
	}
}

func TestBrokerResolverResolveLeaderReturnsImmediatelyIfAlreadySet(t *testing.T) {
	r := NewBrokerResolver()
	job := rm.JobID("job-a")
	r.SetLeader(job, rm.FencingToken("leader-1"))

	token, err := r.ResolveLeader(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, rm.FencingToken("leader-1"), token)
}

func TestBrokerResolverResolveLeaderRespectsContextCancellation(t *testing.T) {
	r := NewBrokerResolver()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.ResolveLeader(ctx, rm.JobID("job-never-led"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBrokerResolverWatchNotifiesOnChange(t *testing.T) {
	r := NewBrokerResolver()
	job := rm.JobID("job-a")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := r.Watch(ctx, job)
	require.NoError(t, err)

	r.SetLeader(job, rm.FencingToken("leader-1"))
	select {
	case token := <-ch:
		assert.Equal(t, rm.FencingToken("leader-1"), token)
	case <-time.After(time.Second):
		t.Fatal("watch did not observe the first SetLeader")
	}

	r.SetLeader(job, rm.FencingToken("leader-2"))
	select {
	case token := <-ch:
		assert.Equal(t, rm.FencingToken("leader-2"), token)
	case <-time.After(time.Second):
		t.Fatal("watch did not observe the second SetLeader")
	}
}

func TestBrokerResolverSetLeaderNoopWhenUnchanged(t *testing.T) {
	r := NewBrokerResolver()
	job := rm.JobID("job-a")
	r.SetLeader(job, rm.FencingToken("leader-1"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := r.Watch(ctx, job)
	require.NoError(t, err)

	// Re-asserting the same leader must not wake subscribers.
	r.SetLeader(job, rm.FencingToken("leader-1"))

	select {
	case token := <-ch:
		t.Fatalf("watch fired on a no-op SetLeader: %v", token)
	case <-time.After(30 * time.Millisecond):
	}
}
