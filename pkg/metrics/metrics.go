package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registration metrics
	RegisteredTaskManagers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ohmsrm_registered_task_managers",
			Help: "Current number of registered task executors",
		},
	)

	RegisteredJobManagers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ohmsrm_registered_job_managers",
			Help: "Current number of registered job managers",
		},
	)

	RegistrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ohmsrm_registrations_total",
			Help: "Total registration attempts by participant kind and outcome",
		},
		[]string{"participant", "outcome"},
	)

	RegistrationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ohmsrm_registration_duration_seconds",
			Help:    "Time to admit or decline a registration request",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"participant"},
	)

	// Heartbeat metrics
	HeartbeatTimeoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ohmsrm_heartbeat_timeouts_total",
			Help: "Total heartbeat timeouts by participant kind",
		},
		[]string{"participant"},
	)

	// Slot metrics
	SlotsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ohmsrm_slots_total",
			Help: "Total slots known across registered task managers",
		},
	)

	SlotsFree = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ohmsrm_slots_free",
			Help: "Currently free (unallocated) slots",
		},
	)

	SlotRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ohmsrm_slot_requests_total",
			Help: "Total slot requests by outcome",
		},
		[]string{"outcome"},
	)

	SlotMatchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ohmsrm_slot_match_latency_seconds",
			Help:    "Time between a slot request arriving and being matched to a free slot",
			Buckets: prometheus.DefBuckets,
		},
	)

	WorkersProvisionedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ohmsrm_workers_provisioned_total",
			Help: "Total workers requested from the framework backend by outcome",
		},
		[]string{"outcome"},
	)

	// Leadership / actor-loop metrics
	LeaderElected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ohmsrm_is_leader",
			Help: "Whether this node currently holds the resource-manager leadership (1) or not (0)",
		},
	)

	LeadershipTransitionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ohmsrm_leadership_transitions_total",
			Help: "Total number of leadership grants observed by this node",
		},
	)

	ActorLoopQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ohmsrm_actor_loop_queue_depth",
			Help: "Approximate number of commands queued on the actor loop",
		},
	)

	FatalErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ohmsrm_fatal_errors_total",
			Help: "Total fatal errors delivered to the fatal-error handler",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RegisteredTaskManagers,
		RegisteredJobManagers,
		RegistrationsTotal,
		RegistrationDuration,
		HeartbeatTimeoutsTotal,
		SlotsTotal,
		SlotsFree,
		SlotRequestsTotal,
		SlotMatchLatency,
		WorkersProvisionedTotal,
		LeaderElected,
		LeadershipTransitionsTotal,
		ActorLoopQueueDepth,
		FatalErrorsTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
