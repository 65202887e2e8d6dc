// Package metrics provides Prometheus metrics collection for quotagate.
//
// # Overview
//
// Collector owns a per-instance registry. It implements ratelimit.Recorder,
// so it is passed straight to ratelimit.New, and it records every upstream
// attempt made by the upstream client. Bucket gauges (available permits,
// waiting callers) are read from the limiter at scrape time through
// WatchLimiter rather than updated on the acquire path.
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	limiter, err := ratelimit.New(windows, ratelimit.WithRecorder(collector))
//	if err != nil {
//	    return err
//	}
//	collector.WatchLimiter(limiter)
//	mux.Handle("/metrics", collector.Handler())
//
// # Cardinality
//
// Bucket labels come from configuration and are bounded. The method label
// on upstream metrics comes from callers, so it is capped and excess values
// are folded into "OTHER".
package metrics
