// Package sampler provides the cancellable periodic task shared by the
// call-quality estimators.
//
// A Loop owns exactly one background goroutine. Stop cancels it and blocks
// until the goroutine has returned, so no tick can fire after Stop returns.
package sampler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

// ErrAlreadyRunning is returned when starting a loop that is still running.
var ErrAlreadyRunning = errors.New("sampler is already running")

// Loop runs a single body function on a background goroutine.
// It is safe for concurrent use, but Stop must not be called from the body.
type Loop struct {
	name string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLoop creates a stopped loop. The name only appears in logs.
func NewLoop(name string) *Loop {
	return &Loop{name: name}
}

// Start launches body on a new goroutine. The context passed to body is
// cancelled by Stop. A body that returns on its own leaves the loop stopped.
func (l *Loop) Start(body func(ctx context.Context)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.runningLocked() {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done

	logrus.WithFields(logrus.Fields{
		"function": "Loop.Start",
		"loop":     l.name,
	}).Debug("Starting sampling loop")

	go func() {
		defer close(done)
		defer cancel()
		body(ctx)
	}()

	return nil
}

// Stop cancels the body and waits for it to return. It reports whether a
// body was running. Calling Stop on a stopped loop is a no-op.
func (l *Loop) Stop() bool {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return false
	}

	cancel()
	<-done

	logrus.WithFields(logrus.Fields{
		"function": "Loop.Stop",
		"loop":     l.name,
	}).Debug("Sampling loop stopped")

	return true
}

// Running reports whether the body is still executing.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runningLocked()
}

func (l *Loop) runningLocked() bool {
	if l.done == nil {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

// Every calls fn with the tick time on every interval until ctx is done.
// Ticks that arrive while fn is still running are dropped by the ticker.
func Every(ctx context.Context, clk clock.WithTicker, interval time.Duration, fn func(now time.Time)) {
	ticker := clk.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			if ctx.Err() != nil {
				return
			}
			fn(now)
		}
	}
}

// OrRealClock returns clk, or the wall clock when clk is nil.
func OrRealClock(clk clock.WithTicker) clock.WithTicker {
	if clk == nil {
		return clock.RealClock{}
	}
	return clk
}
