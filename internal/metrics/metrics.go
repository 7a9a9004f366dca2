// Package metrics declares the Prometheus collectors exported by the daemon
// on /metrics. Collectors are registered with the default registry at init.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Health gauge values, ordered so that larger is healthier.
const (
	HealthUnavailable float64 = iota + 1
	HealthDegraded
	HealthAvailable
)

var (
	JobsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retriever_jobs_submitted_total",
		Help: "Total number of jobs accepted for execution",
	}, []string{"kind"})

	JobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retriever_jobs_finished_total",
		Help: "Total number of jobs that reached a terminal state",
	}, []string{"kind", "state"}) // state: completed/failed/cancelled

	JobsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "retriever_jobs_running",
		Help: "Number of jobs currently held by a worker",
	})

	Attempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retriever_backend_attempts_total",
		Help: "Total number of backend attempts by outcome",
	}, []string{"backend", "outcome", "error_kind"})

	AttemptDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "retriever_backend_attempt_duration_seconds",
		Help:    "Backend attempt duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800},
	}, []string{"backend", "kind"})

	Fallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retriever_fallbacks_total",
		Help: "Total number of times a job moved on to the next backend",
	}, []string{"from", "error_kind"})

	BackendHealth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "retriever_backend_health_status",
		Help: "Health of each backend (1 unavailable, 2 degraded, 3 available)",
	}, []string{"backend"})

	BackendHealthLastUpdate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "retriever_backend_health_last_update",
		Help: "Last update timestamp of backend health",
	}, []string{"backend"})

	Validations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retriever_validations_total",
		Help: "Total number of candidate validations by status",
	}, []string{"backend", "status"})

	ValidationsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "retriever_validations_in_flight",
		Help: "Number of candidate validations currently holding a slot",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retriever_http_requests_total",
		Help: "Total number of API requests",
	}, []string{"method", "route", "code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "retriever_http_request_duration_seconds",
		Help:    "API request duration in seconds",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method", "route"})
)

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetBackendHealth records the gauge value for backend.
func SetBackendHealth(backend string, value float64) {
	BackendHealth.With(prometheus.Labels{"backend": backend}).Set(value)
	BackendHealthLastUpdate.With(prometheus.Labels{"backend": backend}).SetToCurrentTime()
}
