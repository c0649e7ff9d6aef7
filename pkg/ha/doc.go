// Package ha binds rm.LeaderElection to a Hashicorp Raft consensus group.
//
// Unlike a typical Raft-backed manager, which replicates its entire
// application state through the FSM, this package uses Raft purely to elect
// a leader: the only thing ever applied to the log is a leadership epoch
// marker. Registration tables and slot state are intentionally local to
// whichever node currently holds the fencing token, exactly as the
// specification requires — a follower that becomes leader starts from an
// empty set of registrations and relies on task executors and job managers
// re-registering against the new leader.
package ha
