package ratelimit

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBackpressureLogInterval is the minimum spacing between two
// backpressure log lines for the same bucket.
const DefaultBackpressureLogInterval = 10 * time.Second

// LogBackpressure returns a Handler that logs a warning when a bucket starts
// blocking callers, at most once per interval per bucket.
//
// Example:
//
//	limiter.Subscribe(ratelimit.LogBackpressure(logger, 10*time.Second))
func LogBackpressure(logger *slog.Logger, interval time.Duration) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultBackpressureLogInterval
	}

	var mu sync.Mutex
	throttles := make(map[string]*rate.Sometimes)

	return func(bucket string) {
		mu.Lock()
		throttle, ok := throttles[bucket]
		if !ok {
			throttle = &rate.Sometimes{First: 1, Interval: interval}
			throttles[bucket] = throttle
		}
		mu.Unlock()

		throttle.Do(func() {
			logger.Warn("rate limit window exhausted, callers are waiting for refill",
				"bucket", bucket,
			)
		})
	}
}
