package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNew_Interval(t *testing.T) {
	tests := []struct {
		rate float64
		want time.Duration
	}{
		{rate: 50, want: 20 * time.Millisecond},
		{rate: 1000, want: time.Millisecond},
		{rate: 60, want: 16666666 * time.Nanosecond},
		{rate: 0, want: 16666666 * time.Nanosecond},
		{rate: -5, want: 16666666 * time.Nanosecond},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, New(tt.rate, nil).Interval(), "rate %v", tt.rate)
	}
}

func TestStep_AdvancesMockClock(t *testing.T) {
	clock := NewMockTimeProvider(epoch)
	s := New(50, clock)

	var stamps []float64
	n, err := s.Step(3, func(ts float64) (bool, error) {
		stamps = append(stamps, ts)
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []float64{20, 40, 60}, stamps)
	assert.Equal(t, uint64(3), s.Ticks())
	assert.Equal(t, epoch.Add(60*time.Millisecond), clock.Now())
}

func TestStep_StopsWhenDone(t *testing.T) {
	s := New(50, NewMockTimeProvider(epoch))

	n, err := s.Step(100, func(ts float64) (bool, error) {
		return ts >= 100, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestStep_ReturnsError(t *testing.T) {
	s := New(50, NewMockTimeProvider(epoch))
	boom := errors.New("boom")

	n, err := s.Step(10, func(float64) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)
}

func TestNow_FromOrigin(t *testing.T) {
	clock := NewMockTimeProvider(epoch)
	s := New(60, clock)
	assert.Equal(t, 0.0, s.Now())

	clock.Advance(1500 * time.Microsecond)
	assert.InDelta(t, 1.5, s.Now(), 1e-9)

	clock.SetTime(epoch.Add(2 * time.Second))
	assert.InDelta(t, 2000, s.Now(), 1e-9)
}

func TestRun_UntilDone(t *testing.T) {
	s := New(1000, nil)

	var calls atomic.Int32
	err := s.Run(context.Background(), func(float64) (bool, error) {
		return calls.Add(1) == 5, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(5), calls.Load())
	assert.False(t, s.IsRunning())
}

func TestRun_TimestampsIncrease(t *testing.T) {
	s := New(1000, nil)

	var stamps []float64
	err := s.Run(context.Background(), func(ts float64) (bool, error) {
		stamps = append(stamps, ts)
		return len(stamps) == 3, nil
	})
	require.NoError(t, err)
	require.Len(t, stamps, 3)
	assert.Greater(t, stamps[0], 0.0)
	assert.Greater(t, stamps[2], stamps[0])
}

func TestRun_ContextCancelled(t *testing.T) {
	s := New(1000, nil)
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	err := s.Run(ctx, func(float64) (bool, error) {
		if calls.Add(1) == 3 {
			cancel()
		}
		return false, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRun_Stop(t *testing.T) {
	s := New(1000, nil)

	done := make(chan error, 1)
	started := make(chan struct{})
	var once atomic.Bool
	go func() {
		done <- s.Run(context.Background(), func(float64) (bool, error) {
			if once.CompareAndSwap(false, true) {
				close(started)
			}
			return false, nil
		})
	}()

	<-started
	s.Stop()
	s.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	after := s.Ticks()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, after, s.Ticks())
}

func TestRun_ReturnsTickError(t *testing.T) {
	s := New(1000, nil)
	boom := errors.New("boom")

	err := s.Run(context.Background(), func(float64) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(1), s.Ticks())
}

func TestMockTimeProvider(t *testing.T) {
	m := NewMockTimeProvider(epoch)
	assert.Equal(t, epoch, m.Now())

	m.Advance(time.Second)
	assert.Equal(t, epoch.Add(time.Second), m.Now())
}
