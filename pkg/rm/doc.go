// Package rm implements the resource manager endpoint: the actor loop,
// registration state machine, slot-request dispatcher, and resource-actions
// bridge that make up the control plane's single source of truth for which
// job managers and task executors are currently trusted.
//
// Everything that mutates registration state runs on the actor loop in
// actor.go. Collaborators (slot manager, framework backend, leader
// election, job-leader-id service, heartbeat monitors, remote gateways) are
// injected as interfaces so this package has no knowledge of Raft, gRPC, or
// any particular worker-lifecycle backend.
package rm
