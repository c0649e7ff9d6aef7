// Package slotmanager implements rm.SlotManager: the table of slot supply
// and demand, and the policy that matches one against the other.
//
// Modeled on pkg/scheduler.Scheduler's periodic reconciliation loop (a
// ticker-driven cycle that reconciles desired vs. actual state under a
// single mutex), adapted here to match pending SlotRequests against free
// slots reported by registered task managers with a first-fit choice (a
// request's preferred host is searched first), falling back to
// provisioning a new worker through ResourceActions when nothing free fits.
package slotmanager
