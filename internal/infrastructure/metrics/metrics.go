// Package metrics exposes Prometheus instrumentation for mediadesk.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Labels stay low-cardinality: job kind, outcome, endpoint name. Never job IDs.
var (
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediadesk_submissions_total",
		Help: "Job submissions by kind and outcome (accepted, invalid, backend_error).",
	}, []string{"kind", "outcome"})

	TimecodeRejectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediadesk_timecode_rejects_total",
		Help: "Form submissions rejected for an invalid timecode, by field.",
	}, []string{"field"})

	BackendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediadesk_backend_request_duration_seconds",
		Help:    "Latency of calls to the job backend, by endpoint and status class.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint", "status"})

	PollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediadesk_job_polls_total",
		Help: "Job status polls by result (applied, stale, error).",
	}, []string{"result"})

	ActiveMonitors = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediadesk_active_job_monitors",
		Help: "Jobs currently being polled.",
	})

	SSEClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediadesk_sse_clients",
		Help: "Open server-sent event streams.",
	})

	HTTPResponsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediadesk_http_responses_total",
		Help: "Front-end HTTP responses by method and status class.",
	}, []string{"method", "status"})

	LoginThrottledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediadesk_login_throttled_total",
		Help: "Sign-in attempts refused by the rate limiter.",
	})
)

// StatusClass buckets an HTTP status into "2xx", "4xx", ... or "error" for transport failures.
func StatusClass(code int) string {
	switch {
	case code <= 0:
		return "error"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
