// Package standalone implements rm.FrameworkBackend for a fixed-size,
// pre-started cluster: task executors are launched and supervised outside
// the resource manager's control (by an operator, a systemd unit, or a
// container orchestrator that isn't this process), so StartNewWorker has
// nothing to provision and WorkerStarted admits any ResourceID, or, when an
// operator-maintained allow-list is configured, only the ResourceIDs on it.
package standalone
