// Package metrics registers the gateway's Prometheus collectors. A single
// Metrics value is constructed at startup and passed into the components that
// record observations.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ErrorsTotal      *prometheus.CounterVec
	AuthFailures     *prometheus.CounterVec
	RateLimitHits    prometheus.Counter
	LimiterDegraded  prometheus.Gauge
	AuditDropsTotal  prometheus.Counter
	AuditSinkErrors  *prometheus.CounterVec
}

// New creates and registers all gateway metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics on a specific registerer. Tests pass a fresh
// registry to avoid duplicate registration panics.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scorpius_gateway_requests_total",
			Help: "Proxied requests by method, target service, and response status.",
		}, []string{"method", "service", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scorpius_gateway_request_duration_seconds",
			Help:    "End-to-end gateway request latency by target service.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"service"}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scorpius_gateway_errors_total",
			Help: "Gateway-level failures by outcome type.",
		}, []string{"type"}),
		AuthFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scorpius_gateway_auth_failures_total",
			Help: "Rejected bearer credentials by reason.",
		}, []string{"reason"}),
		RateLimitHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "scorpius_gateway_rate_limit_rejections_total",
			Help: "Requests rejected by the sliding-window rate limiter.",
		}),
		LimiterDegraded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "scorpius_gateway_rate_limiter_degraded",
			Help: "1 while the limiter runs on the in-process fallback store.",
		}),
		AuditDropsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "scorpius_gateway_audit_dropped_total",
			Help: "Audit events whose durable write was dropped due to backpressure.",
		}),
		AuditSinkErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scorpius_gateway_audit_sink_errors_total",
			Help: "Durable audit sink write failures by sink.",
		}, []string{"sink"}),
	}
}

// ObserveRequest records the outcome of one proxied request.
func (m *Metrics) ObserveRequest(method, service string, status int, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(method, service, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(service).Observe(elapsed.Seconds())
}

// RecordError increments the failure counter for an outcome type.
func (m *Metrics) RecordError(outcomeType string) {
	m.ErrorsTotal.WithLabelValues(outcomeType).Inc()
}

// RecordAuthFailure increments the credential rejection counter for a reason.
func (m *Metrics) RecordAuthFailure(reason string) {
	m.AuthFailures.WithLabelValues(reason).Inc()
}
