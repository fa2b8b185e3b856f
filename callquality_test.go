package callquality

import (
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/callquality/interfaces"
	"github.com/opd-ai/callquality/metrics"
	"github.com/opd-ai/callquality/netquality"
	"github.com/opd-ai/callquality/speaking"
	simulated "github.com/opd-ai/callquality/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type monitorHarness struct {
	clock      *simulated.ObservedClock
	analysers  *simulated.SimulatedAnalyserFactory
	track      *simulated.SimulatedTrack
	stream     *simulated.SimulatedStream
	reporter   *simulated.SimulatedStatsReporter
	aggregator *metrics.Aggregator
	monitor    *CallMonitor

	mu        sync.Mutex
	snapshots []Snapshot
}

func newMonitorHarness(t *testing.T) *monitorHarness {
	t.Helper()
	h := &monitorHarness{
		clock:      simulated.NewObservedClock(time.Unix(1_700_000_000, 0)),
		analysers:  simulated.NewSimulatedAnalyserFactory(),
		track:      simulated.NewSimulatedTrack("mic", true),
		reporter:   simulated.NewSimulatedStatsReporter(simulated.ProfileGood),
		aggregator: metrics.NewAggregator(time.Minute, 0),
	}
	h.stream = simulated.NewSimulatedStream("remote", h.track)
	h.aggregator.SetClock(h.clock)
	h.monitor = NewCallMonitor("call-1", h.analysers, &Options{
		Aggregator: h.aggregator,
		Clock:      h.clock,
		Network:    &netquality.Config{Interval: 2 * time.Second},
		Speaking:   &speaking.Config{SampleInterval: 100 * time.Millisecond},
	})
	h.monitor.OnUpdate(func(s Snapshot) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.snapshots = append(h.snapshots, s)
	})
	t.Cleanup(h.monitor.Stop)
	return h
}

func (h *monitorHarness) start(t *testing.T, stream interfaces.MediaStream, conn interfaces.StatsReporter) {
	t.Helper()
	h.monitor.Start(stream, conn)
	for i := 0; i < 2; i++ {
		_, ok := h.clock.WaitForTicker(time.Second)
		require.True(t, ok, "estimator %d not armed", i)
	}
}

func (h *monitorHarness) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.snapshots)
}

func TestCallMonitorCombinesEstimators(t *testing.T) {
	h := newMonitorHarness(t)
	h.analysers.SetFrame(simulated.UniformFrame(128, 50))
	h.start(t, h.stream, h.reporter)

	// 20 speaking ticks and one network tick
	for i := 0; i < 20; i++ {
		h.clock.Step(100 * time.Millisecond)
		want := i + 1
		if i == 19 {
			want++
		}
		require.Eventually(t, func() bool { return h.count() >= want }, time.Second, time.Millisecond)
	}

	snap := h.monitor.Snapshot()
	assert.Equal(t, "call-1", snap.CallID)
	assert.Equal(t, speaking.Result{Level: 0.5, IsSpeaking: true}, snap.Speaking)
	assert.Equal(t, netquality.QualityGood, snap.Network.Quality)
	assert.Equal(t, 1900*time.Millisecond, snap.SpeakingTime)

	m := h.aggregator.GetSystemMetrics()
	assert.Equal(t, 1, m.ActiveCalls)
	assert.Equal(t, 1, m.SpeakingCalls)
	assert.Equal(t, 1, m.GoodCalls)
}

func TestCallMonitorStopResetsAndReleases(t *testing.T) {
	h := newMonitorHarness(t)
	h.analysers.SetFrame(simulated.UniformFrame(128, 50))
	h.start(t, h.stream, h.reporter)

	h.clock.Step(100 * time.Millisecond)
	require.Eventually(t, func() bool { return h.monitor.Snapshot().Speaking.IsSpeaking }, time.Second, time.Millisecond)

	h.monitor.Stop()
	h.monitor.Stop()

	snap := h.monitor.Snapshot()
	assert.Equal(t, speaking.Result{}, snap.Speaking)
	assert.Equal(t, netquality.Stats{}, snap.Network)
	assert.False(t, h.monitor.Active())
	assert.Equal(t, 1, h.analysers.Released())
	assert.Empty(t, h.aggregator.ActiveCallIDs())

	calls := len(h.reporter.Calls())
	samples := h.analysers.Samples()
	h.clock.Step(10 * time.Second)
	assert.Len(t, h.reporter.Calls(), calls)
	assert.Equal(t, samples, h.analysers.Samples())
}

func TestCallMonitorLateInputs(t *testing.T) {
	h := newMonitorHarness(t)

	h.monitor.Start(nil, nil)
	_, ok := h.clock.WaitForTicker(time.Second)
	require.True(t, ok, "estimator armed without a connection")
	assert.True(t, h.monitor.Active())
	assert.Equal(t, 0, h.analysers.Acquired())

	h.monitor.SetStream(h.stream)
	assert.Equal(t, 1, h.analysers.Acquired())
	_, ok = h.clock.WaitForTicker(time.Second)
	require.True(t, ok)

	h.monitor.SetConnection(h.reporter)
	_, ok = h.clock.WaitForTicker(time.Second)
	require.True(t, ok)
	h.clock.Step(2 * time.Second)
	require.Eventually(t, func() bool { return len(h.reporter.Calls()) == 1 }, time.Second, time.Millisecond)
}

func TestCallMonitorInactiveInputsDeferred(t *testing.T) {
	h := newMonitorHarness(t)

	h.monitor.SetStream(h.stream)
	h.monitor.SetConnection(h.reporter)
	assert.False(t, h.monitor.Active())
	assert.Equal(t, 0, h.analysers.Acquired())
	assert.Empty(t, h.aggregator.ActiveCallIDs())
}

func TestSnapshotSample(t *testing.T) {
	rtt := 42.0
	s := Snapshot{
		CallID:   "c",
		Speaking: speaking.Result{Level: 0.2},
		Network:  netquality.Stats{Quality: netquality.QualityExcellent, RTT: &rtt},
	}
	sample := s.Sample()
	assert.Equal(t, "c", sample.CallID)
	assert.Equal(t, s.Network, sample.Network)
	assert.Equal(t, s.Speaking, sample.Speaking)
}
