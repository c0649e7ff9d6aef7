// Package events provides an in-memory event broker used to publish
// resource-manager lifecycle events: leadership transitions, registration
// admissions and losses, slot-request declines, and allocation failures.
//
// The broker itself is topic-agnostic — every event goes to every
// subscriber, who filters by EventType — matching the single-Endpoint
// scale this system runs at: there is one leader publishing at a time, and
// subscribers (a log sink, a metrics counter, an operator's audit feed)
// are expected to be few and fast. Publish never blocks the resource
// manager's actor loop: events queue onto a buffered channel and a
// separate broadcast goroutine fans them out, so a stalled subscriber
// only drops its own events (its buffer fills and further sends to it are
// skipped) rather than stalling admission of new registrations.
//
// Construct with NewBroker, call Start once, and pass the broker into
// rm.Config.Events; Stop on shutdown. A nil *Broker in rm.Config is valid
// and simply disables event publication.
package events
