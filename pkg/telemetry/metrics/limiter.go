package metrics

import (
	"time"

	"mercator-hq/quotagate/pkg/config"
	"mercator-hq/quotagate/pkg/limits/ratelimit"

	"github.com/prometheus/client_golang/prometheus"
)

// LimiterMetrics tracks the composite rate limiter. It implements
// ratelimit.Recorder.
//
// Metrics:
//   - quotagate_limiter_acquires_total: Acquire calls by outcome
//   - quotagate_limiter_wait_seconds: Time callers spent in Acquire
//   - quotagate_limiter_backpressure_total: Callers that had to block, by bucket
//   - quotagate_limiter_refills_total: Refill ticks that restored permits
//   - quotagate_limiter_released_waiters_total: Parked callers woken by refills
type LimiterMetrics struct {
	acquires        *prometheus.CounterVec
	wait            prometheus.Histogram
	backpressure    *prometheus.CounterVec
	refills         *prometheus.CounterVec
	releasedWaiters *prometheus.CounterVec
}

var _ ratelimit.Recorder = (*LimiterMetrics)(nil)

// NewLimiterMetrics creates and registers limiter metrics with the provided registry.
func NewLimiterMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *LimiterMetrics {
	lm := &LimiterMetrics{
		acquires: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "limiter",
				Name:      "acquires_total",
				Help:      "Total number of limiter acquire calls by outcome",
			},
			[]string{"outcome"},
		),

		wait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "limiter",
				Name:      "wait_seconds",
				Help:      "Time callers spent waiting for permits in seconds",
				Buckets:   cfg.WaitBuckets,
			},
		),

		backpressure: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "limiter",
				Name:      "backpressure_total",
				Help:      "Total number of callers that blocked on an exhausted window",
			},
			[]string{"bucket"},
		),

		refills: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "limiter",
				Name:      "refills_total",
				Help:      "Total number of refill ticks that restored permits",
			},
			[]string{"bucket"},
		),

		releasedWaiters: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "limiter",
				Name:      "released_waiters_total",
				Help:      "Total number of waiting callers released by refills",
			},
			[]string{"bucket"},
		),
	}

	registry.MustRegister(
		lm.acquires,
		lm.wait,
		lm.backpressure,
		lm.refills,
		lm.releasedWaiters,
	)

	// Pre-create the outcome series so rate() works from the first scrape.
	for _, outcome := range []string{ratelimit.OutcomeAdmitted, ratelimit.OutcomeCancelled, ratelimit.OutcomeDisposed} {
		lm.acquires.WithLabelValues(outcome)
	}

	return lm
}

// RecordAcquire records the outcome of one Acquire and how long it took.
func (lm *LimiterMetrics) RecordAcquire(outcome string, wait time.Duration) {
	lm.acquires.WithLabelValues(outcome).Inc()
	lm.wait.Observe(wait.Seconds())
}

// RecordBackpressure records a caller blocking on bucket.
func (lm *LimiterMetrics) RecordBackpressure(bucket string) {
	lm.backpressure.WithLabelValues(bucket).Inc()
}

// RecordRefill records a refill that restored permits and released waiters.
func (lm *LimiterMetrics) RecordRefill(bucket string, restored, released int) {
	if restored > 0 {
		lm.refills.WithLabelValues(bucket).Inc()
	}
	if released > 0 {
		lm.releasedWaiters.WithLabelValues(bucket).Add(float64(released))
	}
}

// StatusSource reports point-in-time bucket state. *ratelimit.Limiter
// satisfies it.
type StatusSource interface {
	Status() []ratelimit.BucketStatus
}

// limiterStateCollector exports bucket gauges at scrape time so the
// acquire path never touches a gauge.
type limiterStateCollector struct {
	source StatusSource

	capacity  *prometheus.Desc
	available *prometheus.Desc
	waiting   *prometheus.Desc
	disposed  *prometheus.Desc
}

func newLimiterStateCollector(namespace string, source StatusSource) *limiterStateCollector {
	name := func(n string) string {
		return prometheus.BuildFQName(namespace, "limiter", n)
	}
	labels := []string{"bucket"}
	return &limiterStateCollector{
		source:    source,
		capacity:  prometheus.NewDesc(name("bucket_capacity"), "Configured permits per refill", labels, nil),
		available: prometheus.NewDesc(name("available_permits"), "Permits currently available", labels, nil),
		waiting:   prometheus.NewDesc(name("waiting_callers"), "Callers currently blocked on the bucket", labels, nil),
		disposed:  prometheus.NewDesc(name("bucket_disposed"), "Whether the bucket has been closed (1=closed)", labels, nil),
	}
}

func (c *limiterStateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.capacity
	ch <- c.available
	ch <- c.waiting
	ch <- c.disposed
}

func (c *limiterStateCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.source.Status() {
		disposed := 0.0
		if s.Disposed {
			disposed = 1
		}
		ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(s.Capacity), s.Name)
		ch <- prometheus.MustNewConstMetric(c.available, prometheus.GaugeValue, float64(s.Available), s.Name)
		ch <- prometheus.MustNewConstMetric(c.waiting, prometheus.GaugeValue, float64(s.Waiting), s.Name)
		ch <- prometheus.MustNewConstMetric(c.disposed, prometheus.GaugeValue, disposed, s.Name)
	}
}
