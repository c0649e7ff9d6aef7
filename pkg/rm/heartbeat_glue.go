package rm

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/ohmsrm/pkg/heartbeat"
)

// taskTarget and jobTarget adapt the endpoint's registration tables to
// heartbeat.Target[ResourceID]. Two separate types exist (rather than one
// shared type) only because their generic Monitor instantiations carry
// different payload types and a single type cannot implement
// heartbeat.Listener[ResourceID, SlotReport] and
// heartbeat.Listener[ResourceID, struct{}] at once — both would need a
// ReportPayload method with a different signature.
type taskTarget struct{ e *Endpoint }

func (t taskTarget) RequestHeartbeat(ctx context.Context, id ResourceID) error {
	reg, ok := t.e.tables.taskExecutors[id]
	if !ok {
		return errors.New("heartbeat target: task executor no longer registered")
	}
	return reg.Gateway.HeartbeatFromResourceManager(ctx)
}

type jobTarget struct{ e *Endpoint }

func (t jobTarget) RequestHeartbeat(ctx context.Context, id ResourceID) error {
	reg, ok := t.e.tables.jobManagersByResourceID[id]
	if !ok {
		return errors.New("heartbeat target: job manager no longer registered")
	}
	return reg.Gateway.HeartbeatFromResourceManager(ctx)
}

// taskListener delivers task-executor heartbeat results back onto the actor
// loop: a reported SlotReport updates the slot manager's view, a timeout
// disconnects the executor as if it had called disconnectTaskManager itself.
type taskListener struct{ e *Endpoint }

func (l taskListener) ReportPayload(id ResourceID, payload SlotReport) {
	l.e.runUnfenced(func(ctx context.Context) {
		reg, ok := l.e.tables.taskExecutors[id]
		if !ok {
			return
		}
		l.e.cfg.SlotManager.ReportSlotStatus(reg.InstanceID, payload)
	})
}

func (l taskListener) NotifyHeartbeatTimeout(id ResourceID) {
	l.e.runUnfenced(func(ctx context.Context) {
		l.e.disconnectTaskManagerInternal(ctx, id, errHeartbeatTimeout)
	})
}

// jobListener mirrors taskListener for job managers. Job-manager heartbeats
// carry no payload, so ReportPayload has nothing to do with it beyond
// resetting the monitor's own timer, which heartbeat.Monitor.Report already
// does before invoking this callback.
type jobListener struct{ e *Endpoint }

func (l jobListener) ReportPayload(id ResourceID, _ struct{}) {}

func (l jobListener) NotifyHeartbeatTimeout(id ResourceID) {
	l.e.runUnfenced(func(ctx context.Context) {
		reg, ok := l.e.tables.jobManagersByResourceID[id]
		if !ok {
			return
		}
		l.e.disconnectJobManagerInternal(reg.JobID, errHeartbeatTimeout)
	})
}

var errHeartbeatTimeout = errors.New("heartbeat timed out")

// defaultHeartbeatMonitorFactory is the production HeartbeatMonitorFactory,
// grounded on pkg/heartbeat's sender-style Monitor. A fresh pair of monitors
// is built per leadership epoch (§4.3).
type defaultHeartbeatMonitorFactory struct {
	TaskManagerInterval time.Duration
	TaskManagerTimeout  time.Duration
	JobManagerInterval  time.Duration
	JobManagerTimeout   time.Duration
	Logger              zerolog.Logger
}

// NewDefaultHeartbeatMonitorFactory builds a HeartbeatMonitorFactory using
// the given intervals/timeouts for each monitored population.
func NewDefaultHeartbeatMonitorFactory(taskInterval, taskTimeout, jobInterval, jobTimeout time.Duration, logger zerolog.Logger) HeartbeatMonitorFactory {
	return &defaultHeartbeatMonitorFactory{
		TaskManagerInterval: taskInterval,
		TaskManagerTimeout:  taskTimeout,
		JobManagerInterval:  jobInterval,
		JobManagerTimeout:   jobTimeout,
		Logger:              logger,
	}
}

func (f *defaultHeartbeatMonitorFactory) NewTaskManagerMonitor(e *Endpoint) TaskHeartbeatMonitor {
	return heartbeat.NewMonitor[ResourceID, SlotReport](
		f.TaskManagerInterval, f.TaskManagerTimeout,
		taskTarget{e}, taskListener{e}, f.Logger.With().Str("monitor", "task_executor").Logger(),
	)
}

func (f *defaultHeartbeatMonitorFactory) NewJobManagerMonitor(e *Endpoint) JobHeartbeatMonitor {
	return heartbeat.NewMonitor[ResourceID, struct{}](
		f.JobManagerInterval, f.JobManagerTimeout,
		jobTarget{e}, jobListener{e}, f.Logger.With().Str("monitor", "job_manager").Logger(),
	)
}
