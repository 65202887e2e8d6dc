package metrics

import (
	"strconv"
	"time"

	"mercator-hq/quotagate/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// UpstreamMetrics tracks calls made to the upstream API.
//
// Metrics:
//   - quotagate_upstream_requests_total: Requests by upstream, method and status
//   - quotagate_upstream_request_duration_seconds: Latency of a single attempt
//   - quotagate_upstream_errors_total: Failures by error type
//   - quotagate_upstream_retries_total: Retried attempts
type UpstreamMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	errors   *prometheus.CounterVec
	retries  *prometheus.CounterVec
}

// NewUpstreamMetrics creates and registers upstream metrics with the provided registry.
func NewUpstreamMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *UpstreamMetrics {
	um := &UpstreamMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "upstream",
				Name:      "requests_total",
				Help:      "Total number of upstream requests by status code",
			},
			[]string{"upstream", "method", "status"},
		),

		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "upstream",
				Name:      "request_duration_seconds",
				Help:      "Upstream request latency in seconds, excluding limiter wait",
				Buckets:   cfg.LatencyBuckets,
			},
			[]string{"upstream", "method"},
		),

		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "upstream",
				Name:      "errors_total",
				Help:      "Total number of upstream errors by type",
			},
			[]string{"upstream", "error_type"},
		),

		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "upstream",
				Name:      "retries_total",
				Help:      "Total number of retried upstream attempts",
			},
			[]string{"upstream"},
		),
	}

	registry.MustRegister(
		um.requests,
		um.latency,
		um.errors,
		um.retries,
	)

	return um
}

// RecordRequest records a completed attempt.
func (um *UpstreamMetrics) RecordRequest(upstream, method string, status int, duration time.Duration) {
	um.requests.WithLabelValues(upstream, method, strconv.Itoa(status)).Inc()
	um.latency.WithLabelValues(upstream, method).Observe(duration.Seconds())
}

// RecordError records a failed attempt.
//
// errorType is one of "timeout", "rate_limit", "auth", "server_error",
// "network", "parse" or "gate".
func (um *UpstreamMetrics) RecordError(upstream, errorType string) {
	um.errors.WithLabelValues(upstream, errorType).Inc()
}

// RecordRetry records an attempt that is about to be retried.
func (um *UpstreamMetrics) RecordRetry(upstream string) {
	um.retries.WithLabelValues(upstream).Inc()
}
