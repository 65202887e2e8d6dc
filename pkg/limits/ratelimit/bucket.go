package ratelimit

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Bucket is a single quota window: up to capacity admissions between two
// refills, with a full refill on every tick.
//
// # Algorithm
//
//  1. Fast path: CAS-decrement the available counter if it is positive
//  2. Slow path: under the waiter lock, retry the decrement, otherwise park
//     in a FIFO queue and fire the backpressure signal
//  3. On each tick: start a new generation, CAS the counter back to
//     capacity, then hand one permit to each parked caller, oldest first, up
//     to the restored deficit
//
// A caller cancelled after being handed a permit passes it on to the next
// parked caller, unless a tick has since started a new generation.
//
// # Fairness
//
// Parked callers are released in arrival order. A caller arriving while
// permits are available is admitted immediately, even if it overtakes a
// parked caller that has not been handed a permit yet.
//
// # Thread Safety
//
// The counter is only touched with atomic operations, so the fast path takes
// no lock. The waiter lock is held only on the slow path, during refill
// hand-off, on cancellation and on Close.
type Bucket struct {
	name     string
	window   Window
	capacity int64

	available atomic.Int64
	closed    atomic.Bool

	// generation counts refills. A permit belongs to the generation it was
	// granted in and is only given back within it.
	generation atomic.Uint64

	mu       sync.Mutex
	waiters  list.List // *waiter, oldest first
	disposed bool

	ticker    Ticker
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	signal   *Signal
	recorder Recorder
	logger   *slog.Logger
}

// waiter is a parked caller. ready receives nil when a permit is handed over
// and ErrDisposed when the bucket closes. Sends happen under Bucket.mu, after
// gen is set to the generation the permit came from.
type waiter struct {
	ready chan error
	gen   uint64
}

// NewBucket creates a full bucket for w and starts its refill ticker.
//
// Example:
//
//	bucket, err := NewBucket(Window{Name: "short", Capacity: 10, Period: time.Second})
//	if err != nil {
//	    return err
//	}
//	defer bucket.Close()
//
//	if err := bucket.Acquire(ctx); err != nil {
//	    return err
//	}
func NewBucket(w Window, opts ...Option) (*Bucket, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	o := newOptions(opts)

	ticker, err := o.tickers(w)
	if err != nil {
		return nil, &ValidationError{Window: w.Label(), Field: "schedule", Message: err.Error()}
	}

	signal := o.signal
	if signal == nil {
		signal = NewSignal(o.logger)
	}

	b := &Bucket{
		name:     w.Label(),
		window:   w,
		capacity: int64(w.Capacity),
		ticker:   ticker,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		signal:   signal,
		recorder: o.recorder,
		logger:   o.logger.With("bucket", w.Label()),
	}
	b.available.Store(b.capacity)

	go b.run()

	return b, nil
}

// Acquire takes one permit, blocking until a refill provides one if the
// window is exhausted.
//
// Returns nil once admitted, ctx.Err() if the context ends first (no permit
// is consumed), or ErrDisposed if the bucket is or becomes closed.
func (b *Bucket) Acquire(ctx context.Context) error {
	if b.closed.Load() {
		return ErrDisposed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if b.tryTake() {
		return nil
	}

	return b.wait(ctx)
}

// TryAcquire takes a permit only if one is immediately available.
// It never blocks and never fires the backpressure signal.
func (b *Bucket) TryAcquire() bool {
	if b.closed.Load() {
		return false
	}
	return b.tryTake()
}

// tryTake decrements the counter if it is positive.
func (b *Bucket) tryTake() bool {
	for {
		current := b.available.Load()
		if current <= 0 {
			return false
		}
		if b.available.CompareAndSwap(current, current-1) {
			return true
		}
	}
}

// wait is the slow path of Acquire.
func (b *Bucket) wait(ctx context.Context) error {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return ErrDisposed
	}
	// A refill may have landed since the fast path failed.
	if b.tryTake() {
		b.mu.Unlock()
		return nil
	}
	w := &waiter{ready: make(chan error, 1)}
	elem := b.waiters.PushBack(w)
	b.mu.Unlock()

	b.recorder.RecordBackpressure(b.name)
	b.signal.Fire(b.name)

	select {
	case err := <-w.ready:
		return err

	case <-ctx.Done():
		b.mu.Lock()
		select {
		case err := <-w.ready:
			b.mu.Unlock()
			if err != nil {
				return err
			}
			// Handed a permit while being cancelled: give it back.
			b.release(w.gen)
		default:
			b.waiters.Remove(elem)
			b.mu.Unlock()
		}
		return ctx.Err()
	}
}

// release returns one permit of generation gen taken by a caller that gave
// up. The permit goes straight to the oldest parked caller if there is one,
// otherwise back to the counter, never above capacity. A permit from an
// earlier generation is dropped: the refill since then already restored it.
func (b *Bucket) release(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disposed || b.generation.Load() != gen {
		return
	}
	if front := b.waiters.Front(); front != nil {
		w := b.waiters.Remove(front).(*waiter)
		w.gen = gen
		w.ready <- nil
		return
	}
	for {
		current := b.available.Load()
		if current >= b.capacity {
			return
		}
		if b.available.CompareAndSwap(current, current+1) {
			return
		}
	}
}

// run applies refills until Close.
func (b *Bucket) run() {
	defer close(b.done)

	for {
		select {
		case <-b.stop:
			b.ticker.Stop()
			return
		case <-b.ticker.C():
			b.refill()
		}
	}
}

// refill starts a new generation, restores the counter to capacity and
// releases up to the restored deficit of parked callers in arrival order. A
// tick that finds the bucket full changes nothing else.
func (b *Bucket) refill() (restored, released int) {
	gen := b.generation.Add(1)

	var previous int64
	for {
		previous = b.available.Load()
		if previous >= b.capacity {
			return 0, 0
		}
		if b.available.CompareAndSwap(previous, b.capacity) {
			break
		}
	}
	restored = int(b.capacity - previous)

	b.mu.Lock()
	released = b.grantLocked(restored, gen)
	waiting := b.waiters.Len()
	b.mu.Unlock()

	b.recorder.RecordRefill(b.name, restored, released)
	if released > 0 || waiting > 0 {
		b.logger.Debug("window refilled",
			"restored", restored,
			"released", released,
			"still_waiting", waiting,
		)
	}

	return restored, released
}

// grantLocked hands up to n permits from the counter to parked callers,
// oldest first, and returns how many it handed over. b.mu must be held.
func (b *Bucket) grantLocked(n int, gen uint64) int {
	granted := 0
	for granted < n {
		front := b.waiters.Front()
		if front == nil || !b.tryTake() {
			break
		}
		w := b.waiters.Remove(front).(*waiter)
		w.gen = gen
		w.ready <- nil
		granted++
	}
	return granted
}

// Close stops the refill ticker, fails every parked caller with ErrDisposed
// and marks the bucket unusable. It is safe to call more than once.
func (b *Bucket) Close() error {
	b.closeOnce.Do(func() {
		close(b.stop)
		<-b.done

		b.mu.Lock()
		failed := 0
		for front := b.waiters.Front(); front != nil; front = b.waiters.Front() {
			w := b.waiters.Remove(front).(*waiter)
			w.ready <- ErrDisposed
			failed++
		}
		b.disposed = true
		b.mu.Unlock()

		b.closed.Store(true)

		b.logger.Debug("window closed", "failed_waiters", failed)
	})
	return nil
}

// Name returns the bucket label.
func (b *Bucket) Name() string {
	return b.name
}

// Window returns the window definition the bucket was built from.
func (b *Bucket) Window() Window {
	return b.window
}

// Capacity returns the number of permits restored by each refill.
func (b *Bucket) Capacity() int64 {
	return b.capacity
}

// Available returns the permits currently available.
func (b *Bucket) Available() int64 {
	return b.available.Load()
}

// Waiting returns the number of parked callers.
func (b *Bucket) Waiting() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.waiters.Len()
}

// Disposed reports whether Close has completed.
func (b *Bucket) Disposed() bool {
	return b.closed.Load()
}

// Subscribe registers a backpressure handler on this bucket's signal.
func (b *Bucket) Subscribe(h Handler) string {
	return b.signal.Subscribe(h)
}

// Unsubscribe removes a backpressure handler.
func (b *Bucket) Unsubscribe(id string) bool {
	return b.signal.Unsubscribe(id)
}

// Status returns a snapshot of the bucket.
func (b *Bucket) Status() BucketStatus {
	return BucketStatus{
		Name:      b.name,
		Window:    b.window.shape(),
		Capacity:  b.capacity,
		Available: b.Available(),
		Waiting:   b.Waiting(),
		Disposed:  b.Disposed(),
	}
}
