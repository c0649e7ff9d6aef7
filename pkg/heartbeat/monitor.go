package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Target is the outbound half of a monitored participant: the monitor calls
// RequestHeartbeat on each tick and expects the caller to eventually invoke
// Monitor.Report with the reply (or never, if the target has died).
type Target[K comparable] interface {
	RequestHeartbeat(ctx context.Context, id K) error
}

// Listener receives the results of monitoring: a payload delivered with an
// inbound heartbeat, and a timeout notification for a target that stopped
// replying. NotifyHeartbeatTimeout is invoked on the monitor's own timer
// goroutine and ReportPayload on whichever goroutine called Report — the
// resource manager's listener immediately re-posts the call onto its actor
// loop's command channel rather than mutate state inline, to preserve
// single-writer ownership (see rm.Endpoint).
type Listener[K comparable, P any] interface {
	ReportPayload(id K, payload P)
	NotifyHeartbeatTimeout(id K)
}

// Monitor tracks liveness for a set of targets of key type K, each of which
// replies with a payload of type P. Two independent instances exist in the
// resource manager: one for task executors (P = SlotReport), one for job
// managers (P = struct{}).
type Monitor[K comparable, P any] struct {
	interval time.Duration
	timeout  time.Duration
	target   Target[K]
	listener Listener[K, P]
	logger   zerolog.Logger

	mu      sync.Mutex
	targets map[K]*monitoredTarget
}

type monitoredTarget struct {
	cancel context.CancelFunc
	timer  *time.Timer
}

// NewMonitor creates a monitor that pings every interval and declares a
// target dead after it misses timeout without a reply.
func NewMonitor[K comparable, P any](interval, timeout time.Duration, target Target[K], listener Listener[K, P], logger zerolog.Logger) *Monitor[K, P] {
	return &Monitor[K, P]{
		interval: interval,
		timeout:  timeout,
		target:   target,
		listener: listener,
		logger:   logger,
		targets:  make(map[K]*monitoredTarget),
	}
}

// MonitorTarget starts monitoring id. Safe to call multiple times for
// different ids concurrently; calling it twice for the same id restarts
// timing for that id.
func (m *Monitor[K, P]) MonitorTarget(id K) {
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if existing, ok := m.targets[id]; ok {
		existing.cancel()
	}
	mt := &monitoredTarget{cancel: cancel}
	mt.timer = time.AfterFunc(m.timeout, func() { m.onTimeout(id, ctx) })
	m.targets[id] = mt
	m.mu.Unlock()

	go m.pingLoop(ctx, id)
}

// UnmonitorTarget stops monitoring id. Idempotent: unmonitoring an id that is
// not currently monitored is a no-op (§4.5 "absence of the entry is not an
// error").
func (m *Monitor[K, P]) UnmonitorTarget(id K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mt, ok := m.targets[id]; ok {
		mt.cancel()
		mt.timer.Stop()
		delete(m.targets, id)
	}
}

// Stop tears down every monitored target. Used on leadership revocation.
func (m *Monitor[K, P]) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, mt := range m.targets {
		mt.cancel()
		mt.timer.Stop()
		delete(m.targets, id)
	}
}

// Report records an inbound heartbeat from id, carrying payload, and re-arms
// the timeout timer. Call this from the RPC handler that receives the
// heartbeat from the remote participant.
func (m *Monitor[K, P]) Report(id K, payload P) {
	m.mu.Lock()
	mt, ok := m.targets[id]
	if ok {
		mt.timer.Reset(m.timeout)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	m.listener.ReportPayload(id, payload)
}

func (m *Monitor[K, P]) pingLoop(ctx context.Context, id K) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.target.RequestHeartbeat(ctx, id); err != nil {
				m.logger.Debug().Err(err).Msg("heartbeat request failed, awaiting timeout or reconnect")
			}
		}
	}
}

func (m *Monitor[K, P]) onTimeout(id K, ctx context.Context) {
	if ctx.Err() != nil {
		// already unmonitored/cancelled between the timer firing and this
		// callback running.
		return
	}
	m.mu.Lock()
	_, stillMonitored := m.targets[id]
	m.mu.Unlock()
	if !stillMonitored {
		return
	}
	m.listener.NotifyHeartbeatTimeout(id)
}
