// Package heartbeat implements sender-style liveness monitors: for every
// monitored target the monitor owns a timer goroutine that periodically asks
// the target for a heartbeat and re-arms itself whenever the target replies.
// A target that never replies within the timeout is reported to the
// monitor's listener exactly once, on its own goroutine, so the listener
// (the resource manager's actor loop) is never re-entered from inside a
// monitor callback that is itself running on the actor loop.
//
// This mirrors the ticker/cancel-map shape of a container health monitor,
// generalized to heartbeat instead of a liveness probe and parameterized
// over the payload type delivered on each inbound heartbeat.
package heartbeat
