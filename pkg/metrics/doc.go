/*
Package metrics provides Prometheus metrics collection and exposition for the
resource manager.

The metrics package defines and registers the resource manager's ohmsrm_*
metrics using the Prometheus client library, covering registrations, heartbeats,
slots, worker provisioning, leadership and the actor loop. Metrics are exposed
via an HTTP endpoint for scraping by Prometheus servers.

# Architecture

The metrics system follows Prometheus best practices:

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  │  - Automatic Go runtime metrics             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Metric Types                   │          │
	│  │                                              │          │
	│  │  Gauge: Instant values (free slots)         │          │
	│  │  Counter: Monotonic increases (requests)    │          │
	│  │  Histogram: Distributions (latency)         │          │
	│  │  Summary: Quantiles (percentiles)           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Registration: managers, attempts, latency  │          │
	│  │  Heartbeat: timeouts by participant         │          │
	│  │  Slots: total, free, requests, match time   │          │
	│  │  Provisioning: workers requested/failed     │          │
	│  │  Leadership: leader flag, transitions       │          │
	│  │  Actor loop: queue depth, fatal errors      │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Prometheus Server                   │          │
	│  │  - Scrapes /metrics every 15s               │          │
	│  │  - Stores time series data                  │          │
	│  │  - Provides PromQL query interface          │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Metric Registry:
  - Global Prometheus DefaultRegistry
  - All metrics registered at package init
  - Automatic collection of Go runtime metrics
  - Thread-safe for concurrent updates

Gauge Metrics:
  - Instant value that can go up or down
  - Examples: registered task managers, free slots, leader flag
  - Operations: Set, Inc, Dec, Add, Sub

Counter Metrics:
  - Monotonically increasing value
  - Examples: slot requests total, workers provisioned total
  - Operations: Inc, Add (cannot decrease)

Histogram Metrics:
  - Distribution of observed values
  - Buckets for latency percentiles (p50, p95, p99)
  - Examples: registration duration, slot match latency
  - Includes: sum, count, buckets

Timer Helper:
  - Convenience wrapper for timing operations
  - Start timer, observe duration to histogram
  - Supports label values for histogram vectors

# Metrics Catalog

Registration Metrics:

ohmsrm_registered_task_managers (RegisteredTaskManagers):
  - Type: Gauge
  - Description: Current number of registered task executors
  - Updated by: Collector (polling the rm endpoint) and pkg/slotmanager
  - Example: ohmsrm_registered_task_managers 5

ohmsrm_registered_job_managers (RegisteredJobManagers):
  - Type: Gauge
  - Description: Current number of registered job managers

ohmsrm_registrations_total{participant, outcome} (RegistrationsTotal):
  - Type: Counter
  - Description: Registration attempts by participant kind and outcome
  - Labels: participant, outcome

ohmsrm_registration_duration_seconds{participant} (RegistrationDuration):
  - Type: Histogram
  - Description: Time to admit or decline a registration request
  - Labels: participant
  - Buckets: Default Prometheus buckets

Heartbeat Metrics:

ohmsrm_heartbeat_timeouts_total{participant} (HeartbeatTimeoutsTotal):
  - Type: Counter
  - Description: Heartbeat timeouts by participant kind
  - Labels: participant

Slot Metrics (updated by pkg/slotmanager):

ohmsrm_slots_total (SlotsTotal):
  - Type: Gauge
  - Description: Total slots known across registered task managers
  - Example: ohmsrm_slots_total 16

ohmsrm_slots_free (SlotsFree):
  - Type: Gauge
  - Description: Currently free (unallocated) slots
  - Example: ohmsrm_slots_free 4

ohmsrm_slot_requests_total{outcome} (SlotRequestsTotal):
  - Type: Counter
  - Description: Slot requests by outcome
  - Labels: outcome ("received" when a request arrives, "matched" when it is
    matched to a free slot)
  - Example: ohmsrm_slot_requests_total{outcome="matched"} 250

ohmsrm_slot_match_latency_seconds (SlotMatchLatency):
  - Type: Histogram
  - Description: Time between a slot request arriving and being matched
  - Buckets: Default Prometheus buckets

ohmsrm_workers_provisioned_total{outcome} (WorkersProvisionedTotal):
  - Type: Counter
  - Description: Workers requested from the framework backend by outcome
  - Labels: outcome ("requested" or "failed")

Leadership and Actor-Loop Metrics:

ohmsrm_is_leader (LeaderElected):
  - Type: Gauge
  - Description: Whether this node holds the resource-manager leadership (1) or not (0)

ohmsrm_leadership_transitions_total (LeadershipTransitionsTotal):
  - Type: Counter
  - Description: Leadership grants observed by this node

ohmsrm_actor_loop_queue_depth (ActorLoopQueueDepth):
  - Type: Gauge
  - Description: Approximate number of commands queued on the actor loop

ohmsrm_fatal_errors_total (FatalErrorsTotal):
  - Type: Counter
  - Description: Fatal errors delivered to the fatal-error handler

RegisteredJobManagers, RegistrationsTotal, RegistrationDuration,
HeartbeatTimeoutsTotal, LeaderElected, LeadershipTransitionsTotal,
ActorLoopQueueDepth and FatalErrorsTotal are registered and exposed, but no
code in this module updates them, so they report zero.

# Usage

Updating Gauge Metrics:

	import "github.com/cuemby/ohmsrm/pkg/metrics"

	// Set absolute value
	metrics.SlotsTotal.Set(16)

	// Increment/decrement
	metrics.RegisteredJobManagers.Inc()
	metrics.RegisteredJobManagers.Dec()

Updating Counter Metrics:

	// Increment by 1
	metrics.LeadershipTransitionsTotal.Inc()

	// Add arbitrary value
	metrics.SlotRequestsTotal.WithLabelValues("received").Add(1)

Recording Histogram Observations:

	// Direct observation
	metrics.SlotMatchLatency.Observe(0.125) // 125ms

	// Using Timer helper
	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDuration(metrics.SlotMatchLatency)

Using Timer with Labels:

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDurationVec(metrics.RegistrationDuration, "taskmanager")

Complete Example:

	package main

	import (
		"net/http"
		"time"
		"github.com/cuemby/ohmsrm/pkg/metrics"
	)

	func main() {
		// Update slot metrics
		metrics.SlotsTotal.Set(16)
		metrics.SlotsFree.Set(4)
		metrics.RegisteredTaskManagers.Set(4)

		// Time an operation
		timer := metrics.NewTimer()
		matchSlot()
		timer.ObserveDuration(metrics.SlotMatchLatency)

		// Expose metrics endpoint
		http.Handle("/metrics", metrics.Handler())
		http.ListenAndServe(":9090", nil)
	}

	func matchSlot() {
		// Slot matching logic
		time.Sleep(100 * time.Millisecond)
	}

# Integration Points

This package integrates with:

  - cmd/resourcemanagerd: Serves Handler() at /metrics
  - pkg/rm: Its endpoint supplies the registered task-executor count that
    Collector polls
  - pkg/slotmanager: Updates the slot, slot-request, match-latency,
    worker-provisioning and registered-task-manager metrics
  - Prometheus: Scrapes /metrics endpoint

# Design Patterns

Package Init Registration:
  - All metrics registered in init() function
  - MustRegister panics on duplicate registration
  - Ensures metrics available before main()
  - No runtime registration needed

Label Discipline:
  - Use WithLabelValues for cardinality-bounded labels
  - Avoid high-cardinality labels (IDs, timestamps)
  - Document label values in metric description
  - Keep label count low (< 5 per metric)

Timer Pattern:
  - Create timer at operation start
  - Defer or explicitly call ObserveDuration
  - Automatically calculates elapsed time
  - Supports both simple and vector histograms

Global Metrics:
  - Package-level variables for all metrics
  - Accessible from any package of this module
  - Thread-safe concurrent updates
  - No initialization required by callers

# Performance Characteristics

Metric Update Overhead:
  - Gauge set/inc: ~50ns per operation
  - Counter inc: ~50ns per operation
  - Histogram observe: ~200ns per operation
  - Labels: +100ns per label value
  - Negligible impact on hot path

Memory Usage:
  - Per metric: ~1KB baseline
  - Per label combination: ~100 bytes
  - Histogram buckets: ~50 bytes each
  - Total: ~1-5MB for a typical deployment

Scrape Performance:
  - Metrics gathering: ~1-5ms for full scrape
  - HTTP response: ~10ms for typical metric set
  - Recommendation: Scrape interval ≥ 15s
  - Concurrent scrapes: Safe (read-only)

Cardinality Management:
  - Low cardinality: role, status, state (< 10 values)
  - Medium cardinality: method, host (< 100 values)
  - Avoid: task IDs, timestamps (unbounded)
  - Best practice: Aggregate high-cardinality in logs

# Troubleshooting

Common Issues:

Missing Metrics:
  - Symptom: Metric not appearing in /metrics output
  - Check: Metric registered in init() function
  - Check: MustRegister called (panics if duplicate)
  - Solution: Verify metric variable is exported

High Cardinality:
  - Symptom: Prometheus memory usage grows
  - Cause: Using IDs or unbounded values as labels
  - Check: Label cardinality (count unique combinations)
  - Solution: Remove high-cardinality labels, aggregate differently

Histogram Bucket Mismatch:
  - Symptom: No data in desired percentiles
  - Cause: Buckets don't cover observed value range
  - Check: Histogram sum / count for average
  - Solution: Customize buckets for value range

Stale Metrics:
  - Symptom: Metrics not updating
  - Cause: Code not calling metric update methods
  - Check: Add logging around metric updates
  - Solution: Instrument code paths correctly

# Monitoring

Prometheus Queries (PromQL):

Task Executors:
  - Registered: ohmsrm_registered_task_managers

Slots:
  - Total slots: ohmsrm_slots_total
  - Free slots: ohmsrm_slots_free
  - Utilization: 1 - ohmsrm_slots_free / ohmsrm_slots_total

Slot Requests:
  - Arrival rate: rate(ohmsrm_slot_requests_total{outcome="received"}[1m])
  - Match rate: rate(ohmsrm_slot_requests_total{outcome="matched"}[1m])
  - p95 match latency: histogram_quantile(0.95, rate(ohmsrm_slot_match_latency_seconds_bucket[5m]))

Worker Provisioning:
  - Request rate: rate(ohmsrm_workers_provisioned_total{outcome="requested"}[5m])
  - Failure rate: rate(ohmsrm_workers_provisioned_total{outcome="failed"}[5m])

# Alerting Rules

Recommended Prometheus alerts:

No Free Slots:
  - Alert: ohmsrm_slots_free == 0 and ohmsrm_slots_total > 0
  - Description: Every known slot is allocated
  - Action: Check pending slot requests and worker provisioning

Worker Provisioning Failures:
  - Alert: rate(ohmsrm_workers_provisioned_total{outcome="failed"}[5m]) > 0
  - Description: The framework backend is refusing to start workers
  - Action: Check the framework backend's logs and configuration

Slow Slot Matching:
  - Alert: histogram_quantile(0.95, rate(ohmsrm_slot_match_latency_seconds_bucket[5m])) > 10
  - Description: p95 time from slot request to match > 10 seconds
  - Action: Check free slots and registered task executors

# Grafana Dashboards

Recommended dashboard panels:

Slot Overview:
  - Gauge: Total slots
  - Gauge: Free slots
  - Time series: Registered task executors

Slot Requests:
  - Time series: Requests received vs matched per second
  - Heatmap: Slot match latency distribution

Worker Provisioning:
  - Time series: Workers requested vs failed per second

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
  - PromQL tutorial: https://prometheus.io/docs/prometheus/latest/querying/basics/
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics
