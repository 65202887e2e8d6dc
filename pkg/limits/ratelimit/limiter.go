package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Limiter coordinates several window buckets that must all admit a call.
//
// The Limiter models an upstream API that enforces independent quotas at the
// same time, for example 10 requests per second and 50 requests per two
// minutes. A call is admitted only after a permit has been taken from every
// bucket, in the order the windows were declared.
//
// Permits taken from earlier buckets are not returned when a later bucket
// fails (cancellation or disposal). A consumed window slot stays consumed
// until that window's own refill.
type Limiter struct {
	buckets []*Bucket
	signal  *Signal

	recorder Recorder
	logger   *slog.Logger

	closeOnce sync.Once
}

// New creates a limiter enforcing every window, checked in the given order.
// Declaring the tightest window first makes exhausted callers block on it
// before touching longer windows.
//
// Example:
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
//	if err := limiter.Acquire(ctx); err != nil {
//	    return err
//	}
//	// issue the upstream call
func New(windows []Window, opts ...Option) (*Limiter, error) {
	if len(windows) == 0 {
		return nil, &ValidationError{Field: "windows", Message: "at least one window is required"}
	}

	o := newOptions(opts)
	signal := NewSignal(o.logger)

	l := &Limiter{
		buckets:  make([]*Bucket, 0, len(windows)),
		signal:   signal,
		recorder: o.recorder,
		logger:   o.logger.With("component", "ratelimit.limiter"),
	}

	bucketOpts := append(slices.Clone(opts), withSignal(signal))

	seen := make(map[string]struct{}, len(windows))
	for i, w := range windows {
		label := w.Label()
		if _, dup := seen[label]; dup {
			l.closeBuckets()
			return nil, &ValidationError{
				Window:  label,
				Field:   fmt.Sprintf("windows[%d].name", i),
				Message: "must be unique",
			}
		}
		seen[label] = struct{}{}

		bucket, err := NewBucket(w, bucketOpts...)
		if err != nil {
			l.closeBuckets()
			return nil, err
		}
		l.buckets = append(l.buckets, bucket)
	}

	l.logger.Debug("rate limiter created", "windows", l.describe())

	return l, nil
}

// Acquire waits for permission to issue one upstream call.
//
// It takes a permit from each bucket in order, blocking on any exhausted
// window. It returns nil when every window admitted the call, ctx.Err() if
// the context ended while waiting, or ErrDisposed if the limiter was closed.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := time.Now()

	for _, b := range l.buckets {
		if err := b.Acquire(ctx); err != nil {
			l.recorder.RecordAcquire(outcomeOf(err), time.Since(start))
			if errors.Is(err, ErrDisposed) {
				l.logger.Debug("acquire on disposed limiter", "bucket", b.Name())
			}
			return err
		}
	}

	l.recorder.RecordAcquire(OutcomeAdmitted, time.Since(start))
	return nil
}

// TryAcquire admits the call only if every window has a permit right now.
// Like Acquire, permits taken before a failing window are not returned.
func (l *Limiter) TryAcquire() bool {
	for _, b := range l.buckets {
		if !b.TryAcquire() {
			return false
		}
	}
	return true
}

// Subscribe registers a backpressure handler fired whenever any bucket makes
// a caller block. It returns an ID for Unsubscribe.
func (l *Limiter) Subscribe(h Handler) string {
	return l.signal.Subscribe(h)
}

// Unsubscribe removes a backpressure handler.
func (l *Limiter) Unsubscribe(id string) bool {
	return l.signal.Unsubscribe(id)
}

// Windows returns the windows in enforcement order.
func (l *Limiter) Windows() []Window {
	windows := make([]Window, len(l.buckets))
	for i, b := range l.buckets {
		windows[i] = b.Window()
	}
	return windows
}

// Status returns a snapshot of every bucket in enforcement order.
func (l *Limiter) Status() []BucketStatus {
	status := make([]BucketStatus, len(l.buckets))
	for i, b := range l.buckets {
		status[i] = b.Status()
	}
	return status
}

// Disposed reports whether the limiter has been closed.
func (l *Limiter) Disposed() bool {
	for _, b := range l.buckets {
		if !b.Disposed() {
			return false
		}
	}
	return true
}

// Close stops every refill ticker and fails pending callers with
// ErrDisposed. It is safe to call more than once.
func (l *Limiter) Close() error {
	l.closeOnce.Do(func() {
		l.closeBuckets()
		l.logger.Debug("rate limiter closed")
	})
	return nil
}

func (l *Limiter) closeBuckets() {
	for _, b := range l.buckets {
		_ = b.Close()
	}
}

func (l *Limiter) describe() []string {
	out := make([]string, len(l.buckets))
	for i, b := range l.buckets {
		out[i] = b.Window().String()
	}
	return out
}
