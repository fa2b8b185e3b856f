package testing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservedClock(t *testing.T) {
	clk := NewObservedClock(time.Unix(0, 0))

	_, ok := clk.WaitForTicker(10 * time.Millisecond)
	assert.False(t, ok)

	go func() {
		ticker := clk.NewTicker(time.Second)
		<-ticker.C()
	}()

	d, ok := clk.WaitForTicker(time.Second)
	require.True(t, ok)
	assert.Equal(t, time.Second, d)
	clk.Step(time.Second)
}
