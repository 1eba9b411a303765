package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTickRate is used when a non-positive rate is configured.
const DefaultTickRate = 60.0

// TickFunc is called once per tick with the host time in milliseconds since
// the scheduler was created. Returning done ends the run.
type TickFunc func(timestampMs float64) (done bool, err error)

// advancer is implemented by clocks that can be moved forward by Step.
type advancer interface {
	Advance(d time.Duration)
}

// Scheduler calls a TickFunc at a fixed rate.
type Scheduler struct {
	interval time.Duration
	clock    Clock
	origin   time.Time

	ticks   atomic.Uint64
	running atomic.Bool

	stopChan chan struct{}
	stopOnce sync.Once
}

// New creates a scheduler ticking rate times per second on clock. A nil clock
// uses the system clock.
func New(rate float64, clock Clock) *Scheduler {
	if rate <= 0 {
		rate = DefaultTickRate
	}
	if clock == nil {
		clock = NewTimeProvider()
	}
	return &Scheduler{
		interval: time.Duration(float64(time.Second) / rate),
		clock:    clock,
		origin:   clock.Now(),
		stopChan: make(chan struct{}),
	}
}

// Interval returns the time between ticks.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Now returns the current host timestamp in milliseconds.
func (s *Scheduler) Now() float64 {
	return float64(s.clock.Now().Sub(s.origin)) / float64(time.Millisecond)
}

// Ticks returns how many times the TickFunc has been called.
func (s *Scheduler) Ticks() uint64 {
	return s.ticks.Load()
}

// IsRunning reports whether Run is in progress.
func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// Run ticks until fn reports done or fails, ctx is cancelled, or Stop is
// called. Nothing is called after Run returns. A cancelled context returns
// ctx.Err(); Stop and done return nil.
func (s *Scheduler) Run(ctx context.Context, fn TickFunc) error {
	s.running.Store(true)
	defer s.running.Store(false)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopChan:
			return nil
		case <-ticker.C:
			// Stop and cancellation win over a tick that became ready at the same time.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.stopChan:
				return nil
			default:
			}

			done, err := s.tick(fn)
			if err != nil || done {
				return err
			}
		}
	}
}

// Step runs up to n ticks synchronously, advancing the clock by one interval
// before each when it supports it. It returns the number of ticks run and
// stops early when fn reports done or fails.
func (s *Scheduler) Step(n int, fn TickFunc) (int, error) {
	adv, _ := s.clock.(advancer)
	for i := 0; i < n; i++ {
		if adv != nil {
			adv.Advance(s.interval)
		}
		done, err := s.tick(fn)
		if err != nil {
			return i + 1, err
		}
		if done {
			return i + 1, nil
		}
	}
	return n, nil
}

// Stop ends Run. It is safe to call more than once; a stopped scheduler
// cannot be run again.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

func (s *Scheduler) tick(fn TickFunc) (bool, error) {
	s.ticks.Add(1)
	return fn(s.Now())
}
