package ratelimit

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Handler observes backpressure. It receives the label of the bucket that
// made a caller block.
type Handler func(bucket string)

// Signal is the backpressure notification point. Handlers run synchronously
// on the blocking caller's goroutine, before it parks, in subscription order.
// A panicking handler is recovered and ignored; handlers never influence
// admission.
type Signal struct {
	mu     sync.RWMutex
	subs   []subscription // copy-on-write
	panics atomic.Int64
	logger *slog.Logger
}

type subscription struct {
	id      string
	handler Handler
}

// NewSignal creates an empty signal.
func NewSignal(logger *slog.Logger) *Signal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Signal{logger: logger}
}

// Subscribe registers h and returns a subscription ID for Unsubscribe.
func (s *Signal) Subscribe(h Handler) string {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	subs := make([]subscription, len(s.subs), len(s.subs)+1)
	copy(subs, s.subs)
	s.subs = append(subs, subscription{id: id, handler: h})
	return id
}

// Unsubscribe removes the subscription with the given ID.
// Returns false if no such subscription exists.
func (s *Signal) Unsubscribe(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subs {
		if sub.id != id {
			continue
		}
		subs := make([]subscription, 0, len(s.subs)-1)
		subs = append(subs, s.subs[:i]...)
		s.subs = append(subs, s.subs[i+1:]...)
		return true
	}
	return false
}

// Fire notifies every handler that bucket blocked a caller.
func (s *Signal) Fire(bucket string) {
	s.mu.RLock()
	subs := s.subs
	s.mu.RUnlock()

	for _, sub := range subs {
		s.invoke(sub, bucket)
	}
}

func (s *Signal) invoke(sub subscription, bucket string) {
	defer func() {
		if r := recover(); r != nil {
			s.panics.Add(1)
			s.logger.Debug("backpressure handler panicked",
				"subscription", sub.id,
				"bucket", bucket,
				"panic", r,
			)
		}
	}()
	sub.handler(bucket)
}

// Len returns the number of active subscriptions.
func (s *Signal) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Panics returns how many handler invocations panicked.
func (s *Signal) Panics() int64 {
	return s.panics.Load()
}
