// Package ratelimit gates outbound calls to an upstream API that enforces
// several quotas at once.
//
// # Overview
//
// The package implements:
//
//   - Bucket: one quota window with a full refill every period (or on a cron
//     schedule) and cancellable blocking waits
//   - Limiter: a composite of buckets; a call is admitted only when every
//     bucket has given it a permit
//   - Signal: a backpressure hook fired when a caller has to block
//
// # Usage
//
//	limiter, err := ratelimit.New([]ratelimit.Window{
//	    {Name: "short", Capacity: 10, Period: time.Second},
//	    {Name: "long", Capacity: 50, Period: 2 * time.Minute},
//	})
//	if err != nil {
//	    return err
//	}
//	defer limiter.Close()
//
//	limiter.Subscribe(ratelimit.LogBackpressure(logger, 10*time.Second))
//
//	if err := limiter.Acquire(ctx); err != nil {
//	    // context.Canceled, context.DeadlineExceeded or ErrDisposed
//	    return err
//	}
//
// # Refill Semantics
//
// A bucket does not trickle permits back. On every tick its counter is reset
// to capacity, and callers parked since the window ran out are released in
// arrival order. A tick that finds the bucket full is a no-op.
//
// Wall-clock quotas (for example "1000 calls per day, reset at midnight UTC")
// use a cron schedule instead of a period:
//
//	ratelimit.Window{Name: "daily", Capacity: 1000, Schedule: "TZ=UTC 0 0 * * *"}
//
// # Errors
//
//   - *ValidationError: invalid window at construction
//   - ctx.Err(): the caller gave up while waiting; no permit was consumed
//   - ErrDisposed: the limiter was closed before or during the wait
//
// # Thread Safety
//
// All types are safe for concurrent use. Permit counters are lock-free; a
// narrow mutex guards only the queue of parked callers.
package ratelimit
