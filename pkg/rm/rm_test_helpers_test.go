package rm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/ohmsrm/pkg/events"
)

// The fakes in this file back pkg/rm's own tests: minimal, synchronous
// stand-ins for the external collaborators (§1) the actor loop depends on.

type fakeElection struct {
	mu       sync.Mutex
	listener LeadershipListener
}

func (f *fakeElection) Start(listener LeadershipListener) error {
	f.mu.Lock()
	f.listener = listener
	f.mu.Unlock()
	return nil
}
func (f *fakeElection) Stop() error                                                  { return nil }
func (f *fakeElection) ConfirmLeadership(sessionID string, token FencingToken) error { return nil }
func (f *fakeElection) HasLeadership(sessionID string) bool                          { return true }

func (f *fakeElection) grant(sessionID string) {
	f.mu.Lock()
	l := f.listener
	f.mu.Unlock()
	l.GrantLeadership(sessionID)
}

func (f *fakeElection) revoke() {
	f.mu.Lock()
	l := f.listener
	f.mu.Unlock()
	l.RevokeLeadership()
}

type fakeFramework struct{}

func (fakeFramework) StartNewWorker(ctx context.Context, profile ResourceProfile) ([]ResourceProfile, error) {
	return []ResourceProfile{profile}, nil
}
func (fakeFramework) WorkerStarted(ctx context.Context, resourceID ResourceID) (WorkerHandle, bool) {
	return resourceID, true
}
func (fakeFramework) StopWorker(ctx context.Context, handle WorkerHandle) error { return nil }
func (fakeFramework) InternalDeregisterApplication(ctx context.Context, status ApplicationStatus, diagnostics string) error {
	return nil
}
func (fakeFramework) PrepareLeadershipAsync(ctx context.Context) error { return nil }
func (fakeFramework) ClearStateAsync(ctx context.Context) error        { return nil }

type fakeSlotManager struct {
	mu       sync.Mutex
	started  bool
	requests []SlotRequest
}

func (m *fakeSlotManager) Start(token FencingToken, actions ResourceActions) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
}
func (m *fakeSlotManager) Suspend() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
}
func (m *fakeSlotManager) RegisterTaskManager(instance InstanceID, resourceID ResourceID, hardware HardwareDescription) error {
	return nil
}
func (m *fakeSlotManager) UnregisterTaskManager(instance InstanceID, cause error)  {}
func (m *fakeSlotManager) ReportSlotStatus(instance InstanceID, report SlotReport) {}
func (m *fakeSlotManager) RegisterSlotRequest(req SlotRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return nil
}
func (m *fakeSlotManager) CancelSlotRequest(alloc AllocationID)           {}
func (m *fakeSlotManager) FreeSlot(slot SlotID, alloc AllocationID) error { return nil }

type fakeJobLeaderID struct {
	mu       sync.Mutex
	jobs     map[JobID]bool
	leaders  map[JobID]FencingToken
	listener JobLeaderIDListener
}

func newFakeJobLeaderID() *fakeJobLeaderID {
	return &fakeJobLeaderID{jobs: make(map[JobID]bool), leaders: make(map[JobID]FencingToken)}
}

func (f *fakeJobLeaderID) ContainsJob(job JobID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[job]
}
func (f *fakeJobLeaderID) AddJob(job JobID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job] = true
	return nil
}
func (f *fakeJobLeaderID) RemoveJob(job JobID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobs, job)
}
func (f *fakeJobLeaderID) GetLeaderID(job JobID) (<-chan LeaderIDResult, error) {
	f.mu.Lock()
	leader := f.leaders[job]
	f.mu.Unlock()
	ch := make(chan LeaderIDResult, 1)
	ch <- LeaderIDResult{JobMasterId: leader}
	return ch, nil
}
func (f *fakeJobLeaderID) IsValidTimeout(job JobID, timeoutID string) bool { return false }
func (f *fakeJobLeaderID) Clear() error                                    { return nil }
func (f *fakeJobLeaderID) SetListener(listener JobLeaderIDListener)        { f.listener = listener }

func (f *fakeJobLeaderID) setLeader(job JobID, leader FencingToken) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaders[job] = leader
}

type noopMonitor struct{}

func (noopMonitor) MonitorTarget(id ResourceID)   {}
func (noopMonitor) UnmonitorTarget(id ResourceID) {}
func (noopMonitor) Stop()                         {}

type fakeHeartbeatFactory struct{}

func (fakeHeartbeatFactory) NewTaskManagerMonitor(e *Endpoint) TaskHeartbeatMonitor {
	return noopMonitor{}
}
func (fakeHeartbeatFactory) NewJobManagerMonitor(e *Endpoint) JobHeartbeatMonitor {
	return noopMonitor{}
}

type fakeJobManagerGateway struct{}

func (fakeJobManagerGateway) HeartbeatFromResourceManager(ctx context.Context) error { return nil }
func (fakeJobManagerGateway) DisconnectResourceManager(ctx context.Context, token FencingToken, cause error) error {
	return nil
}
func (fakeJobManagerGateway) NotifyAllocationFailure(ctx context.Context, alloc AllocationID, cause error) error {
	return nil
}

type fakeTaskExecutorGateway struct{}

func (fakeTaskExecutorGateway) HeartbeatFromResourceManager(ctx context.Context) error { return nil }
func (fakeTaskExecutorGateway) DisconnectResourceManager(ctx context.Context, cause error) error {
	return nil
}
func (fakeTaskExecutorGateway) RequestMetricQueryServiceAddress(ctx context.Context, timeout time.Duration) (string, bool, error) {
	return "", false, nil
}
func (fakeTaskExecutorGateway) RequestFileUpload(ctx context.Context, fileType FileType) error {
	return nil
}

type fakeConnector struct{}

func (fakeConnector) ConnectJobManager(ctx context.Context, resourceID ResourceID, address string, claimed FencingToken) (JobManagerGateway, error) {
	return fakeJobManagerGateway{}, nil
}
func (fakeConnector) ConnectTaskExecutor(ctx context.Context, resourceID ResourceID, address string) (TaskExecutorGateway, error) {
	return fakeTaskExecutorGateway{}, nil
}

// newTestEndpoint builds an Endpoint wired entirely with fakes, started and
// already elected leader by the time it returns.
func newTestEndpoint() (*Endpoint, *fakeElection, *fakeJobLeaderID, *fakeSlotManager) {
	return newTestEndpointWithEvents(nil)
}

// newTestEndpointWithEvents is newTestEndpoint but with an event broker
// wired in, for tests asserting on published events.
func newTestEndpointWithEvents(broker *events.Broker) (*Endpoint, *fakeElection, *fakeJobLeaderID, *fakeSlotManager) {
	e, election, jobLeaderID, slotManager := newUnleaderedTestEndpoint(broker)
	election.grant("session-1")
	waitForFencingToken(e)
	return e, election, jobLeaderID, slotManager
}

// newUnleaderedTestEndpoint builds and starts an Endpoint wired entirely
// with fakes, but never grants it leadership — for tests exercising the
// follower state (no fencing token held) or an explicit revocation.
func newUnleaderedTestEndpoint(broker *events.Broker) (*Endpoint, *fakeElection, *fakeJobLeaderID, *fakeSlotManager) {
	election := &fakeElection{}
	jobLeaderID := newFakeJobLeaderID()
	slotManager := &fakeSlotManager{}

	e := NewEndpoint(Config{
		ResourceID:          ResourceID("rm-test"),
		SlotManager:         slotManager,
		Framework:           fakeFramework{},
		Election:            election,
		JobLeaderID:         jobLeaderID,
		HeartbeatFactory:    fakeHeartbeatFactory{},
		Connector:           fakeConnector{},
		ClusterInfo:         ClusterInformation{},
		Events:              broker,
		Logger:              zerolog.Nop(),
		RegistrationTimeout: 2 * time.Second,
	})
	if err := e.Start(); err != nil {
		panic(err)
	}
	return e, election, jobLeaderID, slotManager
}

// mustReceiveEvent drains sub until it sees an event of type want, failing
// the test if none arrives within a short deadline.
func mustReceiveEvent(t *testing.T, sub events.Subscriber, want events.EventType) *events.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt := <-sub:
			if evt.Type == want {
				return evt
			}
		case <-deadline:
			t.Fatalf("did not observe event %s within deadline", want)
			return nil
		}
	}
}

func waitForFencingToken(e *Endpoint) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.CurrentFencingToken().Valid() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	panic("endpoint never acquired a fencing token")
}

// waitForCondition polls cond until it reports true or 2 seconds elapse,
// returning whether it succeeded.
func waitForCondition(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}
