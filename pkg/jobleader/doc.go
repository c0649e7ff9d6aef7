// Package jobleader implements rm.JobLeaderIDService: for each job the
// resource manager is tracking, it resolves and watches the job's
// authoritative leading JobMasterId through an injected Resolver, and
// raises an idle-timeout notification for a job still tracked once the
// configured idle timeout has passed since it was added.
//
// Modeled on pkg/events.Broker's subscribe/broadcast shape: each tracked
// job is its own lightweight broadcast point rather than one global bus,
// since leader-change notifications are inherently per-job.
package jobleader
