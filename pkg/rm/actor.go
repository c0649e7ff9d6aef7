package rm

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/ohmsrm/pkg/events"
)

// TaskHeartbeatMonitor and JobHeartbeatMonitor are the narrow slices of
// *heartbeat.Monitor the actor loop depends on, so this package does not
// need to name the generic instantiation directly in every signature.
type TaskHeartbeatMonitor interface {
	MonitorTarget(id ResourceID)
	UnmonitorTarget(id ResourceID)
	Stop()
}

type JobHeartbeatMonitor interface {
	MonitorTarget(id ResourceID)
	UnmonitorTarget(id ResourceID)
	Stop()
}

// HeartbeatMonitorFactory creates the two independent heartbeat monitors
// (C2) on leadership acquisition. A fresh pair is created per leadership
// epoch so a stale monitor from a previous epoch can never deliver a timeout
// for the current one.
type HeartbeatMonitorFactory interface {
	NewTaskManagerMonitor(e *Endpoint) TaskHeartbeatMonitor
	NewJobManagerMonitor(e *Endpoint) JobHeartbeatMonitor
}

// Config bundles everything the endpoint needs from its operator at
// construction time: the collaborators the spec treats as external.
type Config struct {
	ResourceID        ResourceID
	SlotManager       SlotManager
	Framework         FrameworkBackend
	Election          LeaderElection
	JobLeaderID       JobLeaderIDService
	HeartbeatFactory  HeartbeatMonitorFactory
	Connector         GatewayConnector
	FatalErrorHandler FatalErrorHandler
	ClusterInfo       ClusterInformation
	Logger            zerolog.Logger

	// Events, if non-nil, receives a lifecycle event on every leadership
	// transition, registration admission/loss, slot-request decline, and
	// allocation failure. Optional: a nil broker silently disables
	// publication.
	Events *events.Broker

	// RegistrationTimeout bounds how long an inbound registerJobManager or
	// registerTaskExecutor RPC will wait on its async steps before
	// declining.
	RegistrationTimeout time.Duration
}

// command is one unit of work submitted to the actor loop. fenced commands
// are rejected before running if the caller's token does not match the
// endpoint's current fencing token (§4.8, §5). reject, if set, runs in run's
// place on rejection, so a caller blocked on a reply channel is woken with a
// fencing error rather than hanging until shutdown.
type command struct {
	fenced bool
	token  FencingToken
	run    func(ctx context.Context)
	reject func()
}

// Endpoint is the resource manager endpoint: the single-threaded actor that
// owns C1 (registration tables), mediates C2 (heartbeat monitors), binds C3
// (leader election) and C4 (job-leader-id service), runs the C5 registration
// state machine, C6 slot dispatch and C7 resource actions, all serialized by
// the C8 actor loop. Construct with NewEndpoint, then call Start, which runs
// the actor loop in its own goroutine.
type Endpoint struct {
	cfg    Config
	logger zerolog.Logger

	tables *registrationTables

	fencingToken FencingToken
	sessionID    string

	taskMonitor TaskHeartbeatMonitor
	jobMonitor  JobHeartbeatMonitor

	clearStateDone chan struct{} // closed when the in-flight clearStateAsync completes

	cmdCh  chan command
	doneCh chan struct{}
}

// NewEndpoint constructs an Endpoint. Call Start to begin processing.
func NewEndpoint(cfg Config) *Endpoint {
	if cfg.RegistrationTimeout == 0 {
		cfg.RegistrationTimeout = 10 * time.Second
	}
	e := &Endpoint{
		cfg:    cfg,
		logger: cfg.Logger,
		tables: newRegistrationTables(),
		cmdCh:  make(chan command, 256),
		doneCh: make(chan struct{}),
	}
	cfg.JobLeaderID.SetListener(e)
	return e
}

// Start launches the actor loop goroutine and registers this endpoint with
// the leader-election service.
func (e *Endpoint) Start() error {
	go e.run()
	return e.cfg.Election.Start(e)
}

// Stop tears down the actor loop. Any command submitted after Stop returns
// ErrShuttingDown.
func (e *Endpoint) Stop() error {
	err := e.cfg.Election.Stop()
	close(e.doneCh)
	return err
}

func (e *Endpoint) run() {
	ctx := context.Background()
	for {
		select {
		case cmd := <-e.cmdCh:
			if cmd.fenced && (!e.fencingToken.Valid() || cmd.token != e.fencingToken) {
				// Fencing check rejected at dispatch, before the handler runs
				// (§5): either this endpoint holds no epoch at all (I5 — a
				// follower admits no fenced RPC, not even one asserting the
				// empty token), or the caller's asserted token no longer
				// matches the epoch this endpoint currently holds.
				if cmd.reject != nil {
					cmd.reject()
				}
				continue
			}
			cmd.run(ctx)
		case <-e.doneCh:
			return
		}
	}
}

// runFenced submits fn to the actor loop, rejected before running unless
// token matches the endpoint's current fencing token. It is fire-and-forget;
// callers that need a result should close over a reply channel in fn and use
// runFencedReply instead, so a rejection also wakes the waiting caller.
func (e *Endpoint) runFenced(token FencingToken, fn func(ctx context.Context)) {
	select {
	case e.cmdCh <- command{fenced: true, token: token, run: fn}:
	case <-e.doneCh:
	}
}

// runFencedReply is runFenced for handlers that reply on a channel: reject
// runs in fn's place when token is stale, so the caller's receive on that
// channel is woken with a fencing error instead of blocking until shutdown.
func (e *Endpoint) runFencedReply(token FencingToken, fn func(ctx context.Context), reject func()) {
	select {
	case e.cmdCh <- command{fenced: true, token: token, run: fn, reject: reject}:
	case <-e.doneCh:
	}
}

// runUnfenced submits fn to the actor loop unconditionally. Reserved for
// leadership-transition handlers, which by definition run while the
// fencing token itself is changing (§4.8).
func (e *Endpoint) runUnfenced(fn func(ctx context.Context)) {
	select {
	case e.cmdCh <- command{fenced: false, run: fn}:
	case <-e.doneCh:
	}
}

// publish emits ev if this endpoint was configured with an event broker;
// a no-op otherwise.
func (e *Endpoint) publish(t events.EventType, message string, metadata map[string]string) {
	if e.cfg.Events == nil {
		return
	}
	e.cfg.Events.PublishEvent(t, message, metadata)
}

// CurrentFencingToken returns the token under which fenced RPCs are
// currently admitted. Safe to call from any goroutine only for
// observability purposes (e.g. a transport-layer pre-check); the
// authoritative check happens when run dispatches a fenced command.
func (e *Endpoint) CurrentFencingToken() FencingToken {
	reply := make(chan FencingToken, 1)
	e.runUnfenced(func(ctx context.Context) { reply <- e.fencingToken })
	select {
	case t := <-reply:
		return t
	case <-e.doneCh:
		return ""
	}
}
