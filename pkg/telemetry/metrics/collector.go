package metrics

import (
	"strings"
	"sync"
	"time"

	"mercator-hq/quotagate/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets, in seconds.
var (
	// Limiter waits range from an uncontended fast path to a full long window.
	DefaultWaitBuckets = []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120}

	DefaultLatencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
)

// maxMethodLabels bounds the method label; the sidecar forwards whatever
// method a caller sends.
const maxMethodLabels = 32

// Collector owns the Prometheus registry for one quotagate instance and
// fans recorded events out to the limiter and upstream metrics.
//
// When metrics are disabled every Record method is a no-op, and the
// collector still satisfies ratelimit.Recorder.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	limiterMetrics  *LimiterMetrics
	upstreamMetrics *UpstreamMetrics

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a collector with the specified configuration. If
// registry is nil a new one is created; the default Prometheus registry is
// never used, so tests and multiple instances do not collide.
//
// Defaults are filled on a copy. metricsCfg usually points into the running
// configuration, which config.Diff later compares against reloads.
func NewCollector(metricsCfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	cfg := *metricsCfg
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if len(cfg.WaitBuckets) == 0 {
		cfg.WaitBuckets = DefaultWaitBuckets
	}
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultLatencyBuckets
	}

	c := &Collector{
		config:             &cfg,
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(maxMethodLabels),
	}

	c.limiterMetrics = NewLimiterMetrics(c.config, registry)
	c.upstreamMetrics = NewUpstreamMetrics(c.config, registry)

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: cfg.Namespace}),
	)

	return c
}

// WatchLimiter exports the bucket gauges of source on every scrape.
func (c *Collector) WatchLimiter(source StatusSource) {
	if !c.config.Enabled {
		return
	}
	c.registry.MustRegister(newLimiterStateCollector(c.config.Namespace, source))
}

// RecordAcquire implements ratelimit.Recorder.
func (c *Collector) RecordAcquire(outcome string, wait time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.limiterMetrics.RecordAcquire(outcome, wait)
}

// RecordBackpressure implements ratelimit.Recorder.
func (c *Collector) RecordBackpressure(bucket string) {
	if !c.config.Enabled {
		return
	}
	c.limiterMetrics.RecordBackpressure(bucket)
}

// RecordRefill implements ratelimit.Recorder.
func (c *Collector) RecordRefill(bucket string, restored, released int) {
	if !c.config.Enabled {
		return
	}
	c.limiterMetrics.RecordRefill(bucket, restored, released)
}

// RecordUpstreamRequest records one completed upstream attempt.
func (c *Collector) RecordUpstreamRequest(upstream, method string, status int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}

	method = strings.ToUpper(method)
	if !c.cardinalityLimiter.Allow(method) {
		method = "OTHER"
	}
	c.upstreamMetrics.RecordRequest(upstream, method, status, duration)
}

// RecordUpstreamError records a failed upstream attempt.
func (c *Collector) RecordUpstreamError(upstream, errorType string) {
	if !c.config.Enabled {
		return
	}
	c.upstreamMetrics.RecordError(upstream, errorType)
}

// RecordUpstreamRetry records an upstream attempt that will be retried.
func (c *Collector) RecordUpstreamRetry(upstream string) {
	if !c.config.Enabled {
		return
	}
	c.upstreamMetrics.RecordRetry(upstream)
}

// Enabled reports whether metrics are being recorded.
func (c *Collector) Enabled() bool {
	return c.config.Enabled
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique values a label may take.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value may be used as a label: it was seen before or
// the limit has not been reached yet.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[value]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[value] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
