package sampler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

func TestLoopStartStop(t *testing.T) {
	loop := NewLoop("test")
	assert.False(t, loop.Running())
	assert.False(t, loop.Stop(), "stopping an idle loop is a no-op")

	started := make(chan struct{})
	require.NoError(t, loop.Start(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	}))
	<-started
	assert.True(t, loop.Running())

	assert.ErrorIs(t, loop.Start(func(ctx context.Context) {}), ErrAlreadyRunning)

	assert.True(t, loop.Stop())
	assert.False(t, loop.Running())
	assert.False(t, loop.Stop())
}

func TestLoopStopWaitsForBody(t *testing.T) {
	loop := NewLoop("test")
	var finished atomic.Bool

	require.NoError(t, loop.Start(func(ctx context.Context) {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
	}))

	loop.Stop()
	assert.True(t, finished.Load(), "Stop must return only after the body exits")
}

func TestLoopRestartAfterBodyReturns(t *testing.T) {
	loop := NewLoop("test")
	done := make(chan struct{})
	require.NoError(t, loop.Start(func(ctx context.Context) { close(done) }))
	<-done

	assert.Eventually(t, func() bool { return !loop.Running() }, time.Second, time.Millisecond)
	require.NoError(t, loop.Start(func(ctx context.Context) { <-ctx.Done() }))
	assert.True(t, loop.Stop())
}

func TestEveryTicksOnFakeClock(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Unix(0, 0))
	loop := NewLoop("ticker")
	ticks := make(chan time.Time, 10)

	require.NoError(t, loop.Start(func(ctx context.Context) {
		Every(ctx, clk, 100*time.Millisecond, func(now time.Time) { ticks <- now })
	}))

	require.Eventually(t, clk.HasWaiters, time.Second, time.Millisecond)

	clk.Step(100 * time.Millisecond)
	select {
	case now := <-ticks:
		assert.Equal(t, time.Unix(0, 0).Add(100*time.Millisecond), now)
	case <-time.After(time.Second):
		t.Fatal("expected a tick")
	}

	loop.Stop()

	clk.Step(time.Second)
	select {
	case <-ticks:
		t.Fatal("no tick may fire after Stop")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOrRealClock(t *testing.T) {
	assert.NotNil(t, OrRealClock(nil))
	clk := testingclock.NewFakeClock(time.Now())
	assert.Equal(t, clk, OrRealClock(clk))
}
