package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Ticker drives bucket refills. It has the delivery semantics of
// time.Ticker: ticks that the receiver is not ready for are dropped.
type Ticker interface {
	// C returns the channel on which ticks are delivered.
	C() <-chan time.Time

	// Stop turns off the ticker. No ticks are delivered after Stop returns.
	Stop()
}

// DefaultTicker returns a schedule ticker for windows with a cron schedule
// and a period ticker otherwise.
func DefaultTicker(w Window) (Ticker, error) {
	if w.Schedule != "" {
		return NewScheduleTicker(w.Schedule)
	}
	return NewPeriodTicker(w.Period)
}

type periodTicker struct {
	t *time.Ticker
}

// NewPeriodTicker returns a ticker firing every period. Ticks are anchored to
// the creation time, so slow receivers do not make the schedule drift.
func NewPeriodTicker(period time.Duration) (Ticker, error) {
	if period <= 0 {
		return nil, fmt.Errorf("ticker period must be positive, got %s", period)
	}
	return &periodTicker{t: time.NewTicker(period)}, nil
}

func (p *periodTicker) C() <-chan time.Time { return p.t.C }
func (p *periodTicker) Stop()               { p.t.Stop() }

// scheduleTicker fires at the activation times of a cron schedule.
type scheduleTicker struct {
	schedule cron.Schedule
	c        chan time.Time
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

// NewScheduleTicker returns a ticker that fires at each activation of a
// standard five-field cron expression. Descriptors such as "@daily" and a
// leading "TZ=" are accepted.
func NewScheduleTicker(expr string) (Ticker, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}

	t := &scheduleTicker{
		schedule: schedule,
		c:        make(chan time.Time, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go t.run()
	return t, nil
}

func (t *scheduleTicker) run() {
	defer close(t.done)

	for {
		now := time.Now()
		next := t.schedule.Next(now)
		if next.IsZero() {
			// The schedule never fires again.
			<-t.stop
			return
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-t.stop:
			timer.Stop()
			return
		case fired := <-timer.C:
			select {
			case t.c <- fired:
			default:
			}
		}
	}
}

func (t *scheduleTicker) C() <-chan time.Time { return t.c }

func (t *scheduleTicker) Stop() {
	t.once.Do(func() {
		close(t.stop)
		<-t.done
	})
}
