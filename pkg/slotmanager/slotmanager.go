package slotmanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/ohmsrm/pkg/metrics"
	"github.com/cuemby/ohmsrm/pkg/rm"
)

type slotState struct {
	profile    rm.ResourceProfile
	allocation *rm.AllocationID
}

type taskManagerState struct {
	resourceID rm.ResourceID
	instance   rm.InstanceID
	hardware   rm.HardwareDescription
	slots      map[rm.SlotID]*slotState
}

type pendingRequest struct {
	req     rm.SlotRequest
	arrived time.Time
}

// Manager implements rm.SlotManager: a FIFO request queue matched against
// slots reported by registered task managers, falling back to requesting a
// new worker through ResourceActions when nothing free fits. Modeled on
// pkg/scheduler.Scheduler's periodic reconcile-under-lock loop.
type Manager struct {
	logger zerolog.Logger

	mu          sync.Mutex
	started     bool
	fencingTok  rm.FencingToken
	actions     rm.ResourceActions
	taskMgrs    map[rm.InstanceID]*taskManagerState
	pending     []*pendingRequest
	pendingByID map[rm.AllocationID]*pendingRequest
	allocations map[rm.AllocationID]rm.SlotID

	stopCh chan struct{}
}

// New constructs a Manager. Call Start to begin matching.
func New(logger zerolog.Logger) *Manager {
	return &Manager{
		logger:      logger,
		taskMgrs:    make(map[rm.InstanceID]*taskManagerState),
		pendingByID: make(map[rm.AllocationID]*pendingRequest),
		allocations: make(map[rm.AllocationID]rm.SlotID),
	}
}

// Start implements rm.SlotManager: begins accepting requests under the new
// fencing epoch and launches the periodic match cycle.
func (m *Manager) Start(token rm.FencingToken, actions rm.ResourceActions) {
	m.mu.Lock()
	m.fencingTok = token
	m.actions = actions
	m.started = true
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	go m.run(stopCh)
}

// Suspend implements rm.SlotManager: stops the match cycle and clears all
// tracked state, mirroring the registration tables' own clear() on
// leadership loss.
func (m *Manager) Suspend() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	close(m.stopCh)
	m.taskMgrs = make(map[rm.InstanceID]*taskManagerState)
	m.pending = nil
	m.pendingByID = make(map[rm.AllocationID]*pendingRequest)
	m.allocations = make(map[rm.AllocationID]rm.SlotID)
	m.mu.Unlock()
}

func (m *Manager) run(stopCh chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.matchPending()
		case <-stopCh:
			return
		}
	}
}

// RegisterTaskManager implements rm.SlotManager: the initial slot-table
// population for a newly registered task executor (§4.5's sendSlotReport
// path, per the spec's §3 invariant 4).
func (m *Manager) RegisterTaskManager(instance rm.InstanceID, resourceID rm.ResourceID, hardware rm.HardwareDescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.taskMgrs[instance] = &taskManagerState{
		resourceID: resourceID,
		instance:   instance,
		hardware:   hardware,
		slots:      make(map[rm.SlotID]*slotState),
	}
	m.updateSlotMetricsLocked()
	return nil
}

// UnregisterTaskManager implements rm.SlotManager. Any allocation held by
// one of the departing task manager's slots is reported as a failed
// allocation.
func (m *Manager) UnregisterTaskManager(instance rm.InstanceID, cause error) {
	m.mu.Lock()
	tm, ok := m.taskMgrs[instance]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.taskMgrs, instance)

	var failed []struct {
		job   rm.JobID
		alloc rm.AllocationID
	}
	for slotID, slot := range tm.slots {
		if slot.allocation == nil {
			continue
		}
		if pr, ok := m.pendingByID[*slot.allocation]; ok {
			failed = append(failed, struct {
				job   rm.JobID
				alloc rm.AllocationID
			}{job: pr.req.JobID, alloc: *slot.allocation})
			delete(m.pendingByID, *slot.allocation)
		}
		delete(m.allocations, *slot.allocation)
		_ = slotID
	}
	actions := m.actions
	m.updateSlotMetricsLocked()
	m.mu.Unlock()

	if actions != nil {
		for _, f := range failed {
			actions.NotifyAllocationFailure(f.job, f.alloc, cause)
		}
	}
}

// ReportSlotStatus implements rm.SlotManager: a heartbeat-borne refresh of
// a task manager's authoritative slot set. Allocations already recorded
// here are preserved across reports that still name the same SlotID.
func (m *Manager) ReportSlotStatus(instance rm.InstanceID, report rm.SlotReport) {
	m.mu.Lock()
	tm, ok := m.taskMgrs[instance]
	if !ok {
		m.mu.Unlock()
		return
	}

	fresh := make(map[rm.SlotID]*slotState, len(report.Slots))
	for _, s := range report.Slots {
		state := &slotState{profile: s.Profile}
		if prior, ok := tm.slots[s.SlotID]; ok {
			state.allocation = prior.allocation
		}
		if s.Allocation != nil {
			state.allocation = s.Allocation
		}
		fresh[s.SlotID] = state
	}
	tm.slots = fresh
	m.updateSlotMetricsLocked()
	m.mu.Unlock()

	m.matchPending()
}

// RegisterSlotRequest implements rm.SlotManager: enqueues req and attempts
// an immediate match.
func (m *Manager) RegisterSlotRequest(req rm.SlotRequest) error {
	m.mu.Lock()
	if _, exists := m.pendingByID[req.AllocationID]; exists {
		m.mu.Unlock()
		return nil // idempotent re-request
	}
	pr := &pendingRequest{req: req, arrived: time.Now()}
	m.pending = append(m.pending, pr)
	m.pendingByID[req.AllocationID] = pr
	m.mu.Unlock()

	metrics.SlotRequestsTotal.WithLabelValues("received").Inc()
	m.matchPending()
	return nil
}

// CancelSlotRequest implements rm.SlotManager: best-effort removal from the
// pending queue, or freeing of an already-matched slot.
func (m *Manager) CancelSlotRequest(alloc rm.AllocationID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pr, ok := m.pendingByID[alloc]; ok {
		delete(m.pendingByID, alloc)
		for i, p := range m.pending {
			if p == pr {
				m.pending = append(m.pending[:i], m.pending[i+1:]...)
				break
			}
		}
	}

	if slotID, ok := m.allocations[alloc]; ok {
		delete(m.allocations, alloc)
		if tm := m.taskManagerBySlotLocked(slotID); tm != nil {
			if s, ok := tm.slots[slotID]; ok {
				s.allocation = nil
			}
		}
	}
	m.updateSlotMetricsLocked()
}

// FreeSlot implements rm.SlotManager: called when notifySlotAvailable
// names a slot whose owning worker's InstanceID still matches (§4.6).
func (m *Manager) FreeSlot(slot rm.SlotID, alloc rm.AllocationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.allocations[alloc]
	if !ok || current != slot {
		return fmt.Errorf("allocation %s does not currently own slot %v", alloc, slot)
	}

	delete(m.allocations, alloc)
	if tm := m.taskManagerBySlotLocked(slot); tm != nil {
		if s, ok := tm.slots[slot]; ok {
			s.allocation = nil
		}
	}
	m.updateSlotMetricsLocked()
	return nil
}

// SlotCounts implements the optional introspection capability
// (slotStatusSource) rm.Endpoint probes for via a type assertion.
func (m *Manager) SlotCounts(resourceID rm.ResourceID) (total, free int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tm := range m.taskMgrs {
		if tm.resourceID != resourceID {
			continue
		}
		for _, s := range tm.slots {
			total++
			if s.allocation == nil {
				free++
			}
		}
	}
	return total, free
}

func (m *Manager) taskManagerBySlotLocked(slot rm.SlotID) *taskManagerState {
	return m.taskMgrs[m.instanceForSlotLocked(slot)]
}

func (m *Manager) instanceForSlotLocked(slot rm.SlotID) rm.InstanceID {
	for instance, tm := range m.taskMgrs {
		if _, ok := tm.slots[slot]; ok {
			return instance
		}
	}
	return ""
}

func (m *Manager) matchPending() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}

	var stillPending []*pendingRequest
	var toProvision []*pendingRequest
	actions := m.actions

	for _, pr := range m.pending {
		slotID, tmInstance, found := m.findFreeSlotLocked(pr.req)
		if !found {
			stillPending = append(stillPending, pr)
			toProvision = append(toProvision, pr)
			continue
		}
		alloc := pr.req.AllocationID
		tm := m.taskMgrs[tmInstance]
		s := tm.slots[slotID]
		s.allocation = &alloc
		m.allocations[alloc] = slotID
		delete(m.pendingByID, alloc)
		metrics.SlotRequestsTotal.WithLabelValues("matched").Inc()
		metrics.SlotMatchLatency.Observe(time.Since(pr.arrived).Seconds())
	}
	m.pending = stillPending
	m.updateSlotMetricsLocked()
	m.mu.Unlock()

	if actions == nil {
		return
	}
	for _, pr := range toProvision {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		profiles, err := actions.AllocateResource(ctx, pr.req.Profile)
		cancel()
		if err != nil {
			m.logger.Debug().Err(err).Str("job_id", string(pr.req.JobID)).Msg("failed to provision worker for pending slot request")
			metrics.WorkersProvisionedTotal.WithLabelValues("failed").Inc()
			continue
		}
		metrics.WorkersProvisionedTotal.WithLabelValues("requested").Inc()
		_ = profiles // the new worker's slots arrive later via a fresh registration and slot report
	}
}

func (m *Manager) findFreeSlotLocked(req rm.SlotRequest) (rm.SlotID, rm.InstanceID, bool) {
	if req.PreferredHost != "" {
		for instance, tm := range m.taskMgrs {
			if tm.resourceID != req.PreferredHost {
				continue
			}
			if slotID, ok := firstFreeSlot(tm, req.Profile); ok {
				return slotID, instance, true
			}
		}
	}
	for instance, tm := range m.taskMgrs {
		if slotID, ok := firstFreeSlot(tm, req.Profile); ok {
			return slotID, instance, true
		}
	}
	return rm.SlotID{}, "", false
}

func firstFreeSlot(tm *taskManagerState, requested rm.ResourceProfile) (rm.SlotID, bool) {
	for id, s := range tm.slots {
		if s.allocation == nil && s.profile.Matches(requested) {
			return id, true
		}
	}
	return rm.SlotID{}, false
}

func (m *Manager) updateSlotMetricsLocked() {
	total, free := 0, 0
	for _, tm := range m.taskMgrs {
		for _, s := range tm.slots {
			total++
			if s.allocation == nil {
				free++
			}
		}
	}
	metrics.SlotsTotal.Set(float64(total))
	metrics.SlotsFree.Set(float64(free))
	metrics.RegisteredTaskManagers.Set(float64(len(m.taskMgrs)))
}
