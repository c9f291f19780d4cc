// Package metrics holds the Prometheus collectors for the poetry camera.
// Collectors register on the default registry and are served by the status
// server at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BackendResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poetry_backend_resolutions_total",
		Help: "Device backend resolutions by class and winning backend",
	}, []string{"class", "backend", "simulated"})

	BackendProbeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poetry_backend_probe_failures_total",
		Help: "Failed backend probes by class and candidate",
	}, []string{"class", "candidate"})

	Triggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poetry_triggers_total",
		Help: "Trigger events by source and what the engine did with them",
	}, []string{"source", "outcome"})

	TriggerQueueDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poetry_trigger_queue_drops_total",
		Help: "Trigger events evicted from the bounded queue by a newer event",
	})

	PhaseTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poetry_phase_transitions_total",
		Help: "Engine phase entries",
	}, []string{"phase"})

	Runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poetry_runs_total",
		Help: "Completed pipeline runs by result",
	}, []string{"result"})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "poetry_run_duration_seconds",
		Help:    "Time from arming to cooldown or error",
		Buckets: []float64{5, 10, 15, 20, 30, 45, 60, 90, 120, 180},
	})

	ServiceAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poetry_service_attempts_total",
		Help: "External service call attempts by operation and outcome",
	}, []string{"op", "outcome"})

	ServiceLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "poetry_service_latency_seconds",
		Help:    "Latency of a single external service attempt",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 9),
	}, []string{"op"})

	FeedbackDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poetry_feedback_drops_total",
		Help: "Feedback events dropped because the bus buffer was full",
	})

	PrintedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poetry_printed_bytes_total",
		Help: "Bytes sent to the printer by backend",
	}, []string{"backend"})

	DetectorRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poetry_detector_restarts_total",
		Help: "Classifier stream restarts by source",
	}, []string{"source"})
)

// Bool renders a label value for boolean dimensions.
func Bool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
