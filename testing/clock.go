package testing

import (
	"time"

	"k8s.io/utils/clock"
	testingclock "k8s.io/utils/clock/testing"
)

// ObservedClock is a fake clock that announces every ticker it creates, so
// callers can step time only once a sampling loop is armed.
type ObservedClock struct {
	*testingclock.FakeClock
	tickers chan time.Duration
}

// NewObservedClock creates a fake clock starting at t.
func NewObservedClock(t time.Time) *ObservedClock {
	return &ObservedClock{
		FakeClock: testingclock.NewFakeClock(t),
		tickers:   make(chan time.Duration, 64),
	}
}

// NewTicker implements clock.WithTicker.
func (c *ObservedClock) NewTicker(d time.Duration) clock.Ticker {
	t := c.FakeClock.NewTicker(d)
	select {
	case c.tickers <- d:
	default:
	}
	return t
}

// WaitForTicker blocks until a ticker is created or timeout elapses in real
// time. It returns the ticker interval.
func (c *ObservedClock) WaitForTicker(timeout time.Duration) (time.Duration, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case d := <-c.tickers:
		return d, true
	case <-timer.C:
		return 0, false
	}
}
