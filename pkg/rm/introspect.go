package rm

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cuemby/ohmsrm/pkg/events"
)

// TaskManagerInfo is the introspection view of a single registered task
// executor (C9).
type TaskManagerInfo struct {
	ResourceID   ResourceID
	InstanceID   InstanceID
	Address      string
	DataPort     int
	Hardware     HardwareDescription
	RegisteredAt time.Time
	NumSlots     int
	NumFreeSlots int
}

// ResourceOverview is the cluster-wide totals view (C9).
type ResourceOverview struct {
	NumberOfTaskManagers int
	NumberOfSlots        int
	NumberOfFreeSlots    int
}

// GetNumberOfRegisteredTaskManagers implements §6's introspection query.
func (e *Endpoint) GetNumberOfRegisteredTaskManagers() int {
	reply := make(chan int, 1)
	e.runUnfenced(func(ctx context.Context) {
		reply <- len(e.tables.taskExecutors)
	})
	select {
	case n := <-reply:
		return n
	case <-e.doneCh:
		return 0
	}
}

// RequestTaskManagerInfo returns the info for every registered task
// executor, sorted by ResourceID for a stable introspection ordering.
func (e *Endpoint) RequestTaskManagerInfo() []TaskManagerInfo {
	reply := make(chan []TaskManagerInfo, 1)
	e.runUnfenced(func(ctx context.Context) {
		infos := make([]TaskManagerInfo, 0, len(e.tables.taskExecutors))
		for _, reg := range e.tables.taskExecutors {
			infos = append(infos, e.taskManagerInfoLocked(reg))
		}
		sort.Slice(infos, func(i, j int) bool { return infos[i].ResourceID < infos[j].ResourceID })
		reply <- infos
	})
	select {
	case infos := <-reply:
		return infos
	case <-e.doneCh:
		return nil
	}
}

// RequestTaskManagerInfoByID returns the info for a single task executor, or
// ok=false if it is not registered.
func (e *Endpoint) RequestTaskManagerInfoByID(resourceID ResourceID) (TaskManagerInfo, bool) {
	type result struct {
		info TaskManagerInfo
		ok   bool
	}
	reply := make(chan result, 1)
	e.runUnfenced(func(ctx context.Context) {
		reg, ok := e.tables.taskExecutors[resourceID]
		if !ok {
			reply <- result{}
			return
		}
		reply <- result{info: e.taskManagerInfoLocked(reg), ok: true}
	})
	select {
	case r := <-reply:
		return r.info, r.ok
	case <-e.doneCh:
		return TaskManagerInfo{}, false
	}
}

func (e *Endpoint) taskManagerInfoLocked(reg *WorkerRegistration) TaskManagerInfo {
	info := TaskManagerInfo{
		ResourceID:   reg.ResourceID,
		InstanceID:   reg.InstanceID,
		Address:      reg.Address,
		DataPort:     reg.DataPort,
		Hardware:     reg.Hardware,
		RegisteredAt: reg.Registered,
	}
	if report, ok := e.cfg.SlotManager.(slotStatusSource); ok {
		slots, free := report.SlotCounts(reg.ResourceID)
		info.NumSlots, info.NumFreeSlots = slots, free
	}
	return info
}

// slotStatusSource is an optional capability a SlotManager implementation
// may provide so introspection can report slot counts without the rm
// package needing to know the slot manager's internal bookkeeping.
type slotStatusSource interface {
	SlotCounts(resourceID ResourceID) (total, free int)
}

// RequestResourceOverview implements §6's requestResourceOverview.
func (e *Endpoint) RequestResourceOverview() ResourceOverview {
	reply := make(chan ResourceOverview, 1)
	e.runUnfenced(func(ctx context.Context) {
		overview := ResourceOverview{NumberOfTaskManagers: len(e.tables.taskExecutors)}
		for _, reg := range e.tables.taskExecutors {
			total, free := 0, 0
			if src, ok := e.cfg.SlotManager.(slotStatusSource); ok {
				total, free = src.SlotCounts(reg.ResourceID)
			}
			overview.NumberOfSlots += total
			overview.NumberOfFreeSlots += free
		}
		reply <- overview
	})
	select {
	case overview := <-reply:
		return overview
	case <-e.doneCh:
		return ResourceOverview{}
	}
}

// RequestTaskManagerMetricQueryServiceAddresses fans out to every registered
// task executor's gateway and collects the addresses that answered,
// dropping any entry whose remote reported none (§6).
func (e *Endpoint) RequestTaskManagerMetricQueryServiceAddresses(ctx context.Context, timeout time.Duration) map[ResourceID]string {
	type snapshot struct {
		resourceID ResourceID
		gateway    TaskExecutorGateway
	}
	snapCh := make(chan []snapshot, 1)
	e.runUnfenced(func(ctx context.Context) {
		snaps := make([]snapshot, 0, len(e.tables.taskExecutors))
		for id, reg := range e.tables.taskExecutors {
			snaps = append(snaps, snapshot{resourceID: id, gateway: reg.Gateway})
		}
		snapCh <- snaps
	})

	var snaps []snapshot
	select {
	case snaps = <-snapCh:
	case <-e.doneCh:
		return nil
	case <-ctx.Done():
		return nil
	}

	type fanoutResult struct {
		resourceID ResourceID
		addr       string
		ok         bool
	}
	results := make(chan fanoutResult, len(snaps))
	for _, s := range snaps {
		go func(s snapshot) {
			addr, ok, err := s.gateway.RequestMetricQueryServiceAddress(ctx, timeout)
			if err != nil || !ok {
				results <- fanoutResult{resourceID: s.resourceID}
				return
			}
			results <- fanoutResult{resourceID: s.resourceID, addr: addr, ok: true}
		}(s)
	}

	addrs := make(map[ResourceID]string, len(snaps))
	for range snaps {
		r := <-results
		if r.ok {
			addrs[r.resourceID] = r.addr
		}
	}
	return addrs
}

// RequestTaskManagerFileUpload relays a file-upload request to the named
// task executor, failing with a decline if it is not currently registered
// (§6).
func (e *Endpoint) RequestTaskManagerFileUpload(ctx context.Context, resourceID ResourceID, fileType FileType) error {
	type snapshot struct {
		gateway TaskExecutorGateway
		ok      bool
	}
	snapCh := make(chan snapshot, 1)
	e.runUnfenced(func(ctx context.Context) {
		reg, ok := e.tables.taskExecutors[resourceID]
		if !ok {
			snapCh <- snapshot{}
			return
		}
		snapCh <- snapshot{gateway: reg.Gateway, ok: true}
	})

	var snap snapshot
	select {
	case snap = <-snapCh:
	case <-e.doneCh:
		return ErrShuttingDown
	case <-ctx.Done():
		return opFailure(ctx.Err())
	}

	if !snap.ok {
		return decline(fmt.Sprintf("unknown task executor %s", resourceID))
	}
	if err := snap.gateway.RequestFileUpload(ctx, fileType); err != nil {
		return opFailure(err)
	}
	return nil
}

// DeregisterApplication implements §6's deregisterApplication: invokes the
// framework backend's teardown hook. Per §7, failures here are reported as
// operation failures rather than fatal, since the application is already
// terminating.
func (e *Endpoint) DeregisterApplication(ctx context.Context, status ApplicationStatus, diagnostics string) error {
	e.publish(events.EventApplicationDeregister, diagnostics, map[string]string{
		"status": fmt.Sprintf("%d", status),
	})
	if err := e.cfg.Framework.InternalDeregisterApplication(ctx, status, diagnostics); err != nil {
		return opFailure(err)
	}
	return nil
}
