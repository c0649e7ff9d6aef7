package jobleader

import (
	"context"
	"sync"

	"github.com/cuemby/ohmsrm/pkg/rm"
)

// SingleMasterResolver implements Resolver for deployments with exactly one
// job manager process for the lifetime of the cluster (the job-leader-id
// counterpart to the standalone framework backend: no independent per-job
// election infrastructure, one operator-configured JobMasterId answers for
// every job this resource manager ever serves). Its leader never changes,
// so Watch never delivers an update.
type SingleMasterResolver struct {
	leader rm.FencingToken
}

// NewSingleMasterResolver builds a Resolver that always resolves to leader.
func NewSingleMasterResolver(leader rm.FencingToken) *SingleMasterResolver {
	return &SingleMasterResolver{leader: leader}
}

// ResolveLeader implements Resolver.
func (r *SingleMasterResolver) ResolveLeader(ctx context.Context, job rm.JobID) (rm.FencingToken, error) {
	return r.leader, nil
}

// Watch implements Resolver: the channel only ever closes, on ctx
// cancellation, since a single configured master never fails over.
func (r *SingleMasterResolver) Watch(ctx context.Context, job rm.JobID) (<-chan rm.FencingToken, error) {
	ch := make(chan rm.FencingToken)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

// BrokerResolver implements Resolver for deployments running more than one
// concurrently-led job, where an external authority (a job-submission
// control plane, an admin CLI, or a future real per-job election service)
// asserts each job's current JobMasterId through SetLeader. Modeled on
// pkg/events.Broker's subscribe/broadcast shape, narrowed to one broadcast
// point per job rather than one global bus, since leader-change
// notifications are inherently per-job.
type BrokerResolver struct {
	mu   sync.Mutex
	jobs map[rm.JobID]*brokerJobState
}

type brokerJobState struct {
	current rm.FencingToken
	has     bool
	subs    map[chan rm.FencingToken]struct{}
}

// NewBrokerResolver constructs an empty BrokerResolver. Every job's leader
// starts unknown; ResolveLeader blocks until SetLeader names one.
func NewBrokerResolver() *BrokerResolver {
	return &BrokerResolver{jobs: make(map[rm.JobID]*brokerJobState)}
}

// SetLeader asserts leader as job's current JobMasterId, waking any blocked
// ResolveLeader call and notifying every active Watch subscriber if this
// changes the job's previously asserted leader.
func (r *BrokerResolver) SetLeader(job rm.JobID, leader rm.FencingToken) {
	r.mu.Lock()
	state, ok := r.jobs[job]
	if !ok {
		state = &brokerJobState{subs: make(map[chan rm.FencingToken]struct{})}
		r.jobs[job] = state
	}
	changed := !state.has || state.current != leader
	state.current = leader
	state.has = true
	subs := make([]chan rm.FencingToken, 0, len(state.subs))
	for sub := range state.subs {
		subs = append(subs, sub)
	}
	r.mu.Unlock()

	if !changed {
		return
	}
	for _, sub := range subs {
		select {
		case sub <- leader:
		default:
		}
	}
}

// ResolveLeader implements Resolver.
func (r *BrokerResolver) ResolveLeader(ctx context.Context, job rm.JobID) (rm.FencingToken, error) {
	r.mu.Lock()
	state, ok := r.jobs[job]
	if !ok {
		state = &brokerJobState{subs: make(map[chan rm.FencingToken]struct{})}
		r.jobs[job] = state
	}
	if state.has {
		leader := state.current
		r.mu.Unlock()
		return leader, nil
	}
	wake := make(chan rm.FencingToken, 1)
	state.subs[wake] = struct{}{}
	r.mu.Unlock()

	select {
	case leader := <-wake:
		r.mu.Lock()
		delete(state.subs, wake)
		r.mu.Unlock()
		return leader, nil
	case <-ctx.Done():
		r.mu.Lock()
		delete(state.subs, wake)
		r.mu.Unlock()
		return "", ctx.Err()
	}
}

// Watch implements Resolver.
func (r *BrokerResolver) Watch(ctx context.Context, job rm.JobID) (<-chan rm.FencingToken, error) {
	r.mu.Lock()
	state, ok := r.jobs[job]
	if !ok {
		state = &brokerJobState{subs: make(map[chan rm.FencingToken]struct{})}
		r.jobs[job] = state
	}
	sub := make(chan rm.FencingToken, 8)
	state.subs[sub] = struct{}{}
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		delete(state.subs, sub)
		r.mu.Unlock()
	}()
	return sub, nil
}
