package ratelimit

import (
	"fmt"
	"log/slog"
	"time"
)

// Acquire outcomes reported to a Recorder.
const (
	OutcomeAdmitted  = "admitted"
	OutcomeCancelled = "cancelled"
	OutcomeDisposed  = "disposed"
)

// Window describes one quota enforced by the upstream API: Capacity calls per
// refill. The refill is either every Period or on a cron Schedule, never both.
type Window struct {
	// Name labels the window in logs, metrics and backpressure signals.
	// Defaults to "<capacity>/<period>" when empty.
	Name string

	// Capacity is the number of calls admitted between two refills.
	Capacity int

	// Period is the interval between full refills.
	Period time.Duration

	// Schedule is a standard cron expression (e.g. "0 0 * * *" or
	// "TZ=UTC 0 0 * * *") for windows that reset at fixed wall-clock times.
	Schedule string
}

// Label returns the window name, or a label derived from its shape.
func (w Window) Label() string {
	if w.Name != "" {
		return w.Name
	}
	return w.shape()
}

// String returns a human readable description such as "short: 10 per 1s".
func (w Window) String() string {
	if w.Name == "" {
		return w.shape()
	}
	return fmt.Sprintf("%s: %s", w.Name, w.shape())
}

func (w Window) shape() string {
	if w.Schedule != "" {
		return fmt.Sprintf("%d per cron(%s)", w.Capacity, w.Schedule)
	}
	return fmt.Sprintf("%d per %s", w.Capacity, w.Period)
}

// Validate checks the window shape. It does not parse the cron schedule;
// that happens when the ticker is created.
func (w Window) Validate() error {
	if w.Capacity <= 0 {
		return &ValidationError{Window: w.Label(), Field: "capacity", Message: "must be positive"}
	}
	if w.Schedule != "" && w.Period != 0 {
		return &ValidationError{Window: w.Label(), Field: "schedule", Message: "cannot be combined with period"}
	}
	if w.Schedule == "" && w.Period <= 0 {
		return &ValidationError{Window: w.Label(), Field: "period", Message: "must be positive"}
	}
	return nil
}

// BucketStatus is a point-in-time snapshot of a single window bucket.
type BucketStatus struct {
	Name      string `json:"name"`
	Window    string `json:"window"`
	Capacity  int64  `json:"capacity"`
	Available int64  `json:"available"`
	Waiting   int    `json:"waiting"`
	Disposed  bool   `json:"disposed"`
}

// Recorder receives limiter events for metrics collection.
// Implementations must be safe for concurrent use and must not block.
type Recorder interface {
	// RecordAcquire records the outcome of a composite acquire and how long
	// the caller waited for it.
	RecordAcquire(outcome string, wait time.Duration)

	// RecordBackpressure records that a caller had to block on bucket.
	RecordBackpressure(bucket string)

	// RecordRefill records a refill tick that restored permits and the
	// number of parked callers it released.
	RecordRefill(bucket string, restored, released int)
}

type nopRecorder struct{}

func (nopRecorder) RecordAcquire(string, time.Duration) {}
func (nopRecorder) RecordBackpressure(string)           {}
func (nopRecorder) RecordRefill(string, int, int)       {}

// TickerFactory builds the refill driver for a window.
type TickerFactory func(w Window) (Ticker, error)

// Option configures a Bucket or Limiter.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	recorder Recorder
	tickers  TickerFactory
	signal   *Signal
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.recorder == nil {
		o.recorder = nopRecorder{}
	}
	if o.tickers == nil {
		o.tickers = DefaultTicker
	}
	return o
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// WithTickerFactory overrides how refill tickers are created.
// Tests use it to drive refills by hand.
func WithTickerFactory(f TickerFactory) Option {
	return func(o *options) {
		o.tickers = f
	}
}

// withSignal shares a backpressure signal between the buckets of a limiter.
func withSignal(s *Signal) Option {
	return func(o *options) {
		o.signal = s
	}
}
