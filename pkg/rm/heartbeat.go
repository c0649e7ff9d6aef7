package rm

import "context"

// HeartbeatFromTaskManager implements the inbound heartbeatFromTaskManager
// RPC (§6): delivers the reporting task executor's current slot report to
// the task monitor, which resets its timeout timer and forwards the payload
// to taskListener.ReportPayload. A report from a resource id that is not
// currently monitored (e.g. it raced a disconnect) is silently dropped, same
// as heartbeat.Monitor.Report does internally. Fenced by the caller's
// asserted ResourceManagerId like every other mutating RPC in the table.
func (e *Endpoint) HeartbeatFromTaskManager(caller FencingToken, resourceID ResourceID, report SlotReport) {
	e.runFenced(caller, func(ctx context.Context) {
		if e.taskMonitor == nil {
			return
		}
		if m, ok := e.taskMonitor.(taskReporter); ok {
			m.Report(resourceID, report)
		}
	})
}

// HeartbeatFromJobManager implements the inbound heartbeatFromJobManager RPC
// (§6): a pure liveness signal, no payload. Fenced by the caller's asserted
// ResourceManagerId.
func (e *Endpoint) HeartbeatFromJobManager(caller FencingToken, resourceID ResourceID) {
	e.runFenced(caller, func(ctx context.Context) {
		if e.jobMonitor == nil {
			return
		}
		if m, ok := e.jobMonitor.(jobReporter); ok {
			m.Report(resourceID, struct{}{})
		}
	})
}

// taskReporter and jobReporter narrow *heartbeat.Monitor[ResourceID, P] down
// to the one additional method (beyond TaskHeartbeatMonitor/
// JobHeartbeatMonitor) that inbound heartbeat delivery needs, again to dodge
// the same ReportPayload signature collision heartbeat_glue.go works around.
type taskReporter interface {
	Report(id ResourceID, payload SlotReport)
}

type jobReporter interface {
	Report(id ResourceID, payload struct{})
}
