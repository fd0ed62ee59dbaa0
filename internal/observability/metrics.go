package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exported by the service.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	httpErrors     *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	assignments    *prometheus.CounterVec
	versionRetries *prometheus.CounterVec
	slaOpen        *prometheus.GaugeVec
	sweepDuration  prometheus.Histogram
	sweepFailures  prometheus.Counter
}

// NewMetrics registers collectors on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "civic",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "civic",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method"}),
		httpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "civic",
			Name:      "http_errors_total",
			Help:      "HTTP errors by domain error code.",
		}, []string{"path", "method", "code"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "civic",
			Name:      "request_transitions_total",
			Help:      "Lifecycle transitions by target status.",
		}, []string{"status"}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "civic",
			Name:      "assignments_total",
			Help:      "Assignment attempts by outcome.",
		}, []string{"outcome"}),
		versionRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "civic",
			Name:      "version_conflict_retries_total",
			Help:      "Retries caused by optimistic version conflicts.",
		}, []string{"operation"}),
		slaOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "civic",
			Name:      "sla_open_requests",
			Help:      "Open requests by SLA state as of the last sweep.",
		}, []string{"state"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "civic",
			Name:      "sla_sweep_duration_seconds",
			Help:      "SLA sweep run time.",
			Buckets:   prometheus.DefBuckets,
		}),
		sweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "civic",
			Name:      "sla_sweep_failures_total",
			Help:      "SLA sweeps that returned an error.",
		}),
	}
	m.registry.MustRegister(
		m.httpRequests, m.httpDuration, m.httpErrors,
		m.transitions, m.assignments, m.versionRetries,
		m.slaOpen, m.sweepDuration, m.sweepFailures,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records a completed HTTP request.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.httpErrors.WithLabelValues(path, method, code).Inc()
}

// RecordTransition counts a status change.
func (m *Metrics) RecordTransition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

// RecordAssignment counts an assignment outcome (auto, manual, no_match, released).
func (m *Metrics) RecordAssignment(outcome string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(outcome).Inc()
}

// RecordRetry counts a version-conflict retry.
func (m *Metrics) RecordRetry(operation string) {
	if m == nil {
		return
	}
	m.versionRetries.WithLabelValues(operation).Inc()
}

// RecordSweep publishes the outcome of an SLA sweep.
func (m *Metrics) RecordSweep(atRisk, breached, scanned int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(duration.Seconds())
	if err != nil {
		m.sweepFailures.Inc()
		return
	}
	m.slaOpen.WithLabelValues("at_risk").Set(float64(atRisk))
	m.slaOpen.WithLabelValues("breached").Set(float64(breached))
	m.slaOpen.WithLabelValues("on_time").Set(float64(scanned - atRisk - breached))
}
