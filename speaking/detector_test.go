package speaking

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	simulated "github.com/opd-ai/callquality/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bins = 128

type harness struct {
	clock    *simulated.ObservedClock
	factory  *simulated.SimulatedAnalyserFactory
	track    *simulated.SimulatedTrack
	stream   *simulated.SimulatedStream
	detector *Detector
	results  chan Result
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:   simulated.NewObservedClock(time.Unix(1_700_000_000, 0)),
		factory: simulated.NewSimulatedAnalyserFactory(),
		track:   simulated.NewSimulatedTrack("mic", true),
		results: make(chan Result, 64),
	}
	h.stream = simulated.NewSimulatedStream("local", h.track)
	h.detector = NewDetector(h.factory, nil)
	h.detector.SetClock(h.clock)
	h.detector.OnResult(func(r Result) { h.results <- r })
	t.Cleanup(h.detector.Stop)
	return h
}

// start arms the detector and waits for its ticker to be registered.
func (h *harness) start(t *testing.T) {
	t.Helper()
	h.detector.Update(h.stream, true)
	_, armed := h.clock.WaitForTicker(time.Second)
	require.True(t, armed, "sampling loop not armed")
}

// step advances simulated time and returns the result published in response.
func (h *harness) step(t *testing.T, d time.Duration) Result {
	t.Helper()
	h.clock.Step(d)
	select {
	case r := <-h.results:
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("no result published after stepping %v", d)
		return Result{}
	}
}

func TestLevel(t *testing.T) {
	tests := []struct {
		name string
		bins []byte
		want float64
	}{
		{"empty", nil, 0},
		{"silence", make([]byte, 10), 0},
		{"ten bins averaging 50", []byte{0, 100, 50, 50, 20, 80, 40, 60, 50, 50}, 0.5},
		{"exactly normaliser", simulated.UniformFrame(10, 100), 1},
		{"saturated", simulated.UniformFrame(10, 255), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Level(tt.bins, 100), 1e-9)
		})
	}
}

func TestLevelBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		frame := make([]byte, 1+rng.Intn(256))
		rng.Read(frame)
		level := Level(frame, 100)
		assert.GreaterOrEqual(t, level, 0.0)
		assert.LessOrEqual(t, level, 1.0)
	}
}

func TestDetectorLevelScenario(t *testing.T) {
	h := newHarness(t)
	h.factory.SetFrame(simulated.UniformFrame(bins, 50))
	h.start(t)

	r := h.step(t, 60*time.Millisecond)
	assert.Equal(t, Result{Level: 0.5, IsSpeaking: true}, r)
	assert.Equal(t, r, h.detector.Result())
	assert.True(t, h.detector.Active())
}

func TestDetectorBelowThreshold(t *testing.T) {
	h := newHarness(t)
	// mean 8 gives exactly the 0.08 threshold, which does not trigger
	h.factory.SetFrame(simulated.UniformFrame(bins, 8))
	h.start(t)

	r := h.step(t, 60*time.Millisecond)
	assert.InDelta(t, 0.08, r.Level, 1e-9)
	assert.False(t, r.IsSpeaking)
}

func TestDetectorHysteresis(t *testing.T) {
	h := newHarness(t)
	h.factory.Script(simulated.UniformFrame(bins, 50))
	h.start(t)

	// t=60: single loud sample
	r := h.step(t, 60*time.Millisecond)
	require.Equal(t, Result{Level: 0.5, IsSpeaking: true}, r)

	// t=120..360: silence, still within the decay window
	for i := 0; i < 5; i++ {
		r = h.step(t, 60*time.Millisecond)
		assert.Equal(t, Result{Level: 0, IsSpeaking: true}, r, "tick %d", i+2)
	}

	// t=409: one millisecond short of release
	h.clock.Step(49 * time.Millisecond)
	assert.True(t, h.detector.Result().IsSpeaking)
	assert.Empty(t, h.results)

	// t=410: decay window elapsed
	r = h.step(t, time.Millisecond)
	assert.Equal(t, Result{Level: 0, IsSpeaking: false}, r)
	assert.Equal(t, 350*time.Millisecond, h.detector.SpeakingTime())

	// t=420: next silent tick keeps speaking off
	r = h.step(t, 10*time.Millisecond)
	assert.Equal(t, Result{}, r)
}

func TestDetectorRetriggerExtendsDecay(t *testing.T) {
	h := newHarness(t)
	loud := simulated.UniformFrame(bins, 30)
	h.factory.Script(loud, simulated.UniformFrame(bins, 0), loud)
	h.start(t)

	require.True(t, h.step(t, 60*time.Millisecond).IsSpeaking)  // t=60
	require.True(t, h.step(t, 60*time.Millisecond).IsSpeaking)  // t=120
	require.True(t, h.step(t, 60*time.Millisecond).IsSpeaking)  // t=180, re-trigger
	for i := 0; i < 4; i++ {
		require.True(t, h.step(t, 60*time.Millisecond).IsSpeaking) // t=240..420
	}

	// original window would have ended at 410; the re-trigger moved it to 530
	h.clock.Step(60 * time.Millisecond) // t=480
	r := <-h.results
	assert.True(t, r.IsSpeaking)

	r = h.step(t, 50*time.Millisecond) // t=530
	assert.False(t, r.IsSpeaking)
}

func TestDetectorResetIsIdempotent(t *testing.T) {
	h := newHarness(t)

	h.detector.Stop()
	h.detector.Update(nil, false)
	h.detector.Update(h.stream, false)
	assert.Equal(t, Result{}, h.detector.Result())
	assert.Empty(t, h.results, "no publication when already reset")

	h.factory.SetFrame(simulated.UniformFrame(bins, 90))
	h.start(t)
	require.True(t, h.step(t, 60*time.Millisecond).IsSpeaking)

	h.detector.Stop()
	assert.Equal(t, Result{}, <-h.results)
	h.detector.Stop()
	assert.Empty(t, h.results)
	assert.Equal(t, Result{}, h.detector.Result())
	assert.False(t, h.detector.Active())
	assert.Equal(t, 1, h.factory.Released())
}

func TestDetectorSpeakingTimeIsPerSession(t *testing.T) {
	h := newHarness(t)
	h.factory.SetFrame(simulated.UniformFrame(bins, 90))
	h.start(t)

	require.True(t, h.step(t, 60*time.Millisecond).IsSpeaking) // t=60
	require.True(t, h.step(t, 60*time.Millisecond).IsSpeaking) // t=120
	assert.Equal(t, 60*time.Millisecond, h.detector.SpeakingTime())

	h.detector.Stop()
	assert.Equal(t, Result{}, <-h.results)
	assert.Equal(t, 60*time.Millisecond, h.detector.SpeakingTime(), "most recent session kept after teardown")

	h.start(t)
	assert.Zero(t, h.detector.SpeakingTime(), "new session starts from zero")

	require.True(t, h.step(t, 60*time.Millisecond).IsSpeaking)
	h.step(t, 60*time.Millisecond)
	assert.Equal(t, 60*time.Millisecond, h.detector.SpeakingTime())
}

func TestDetectorNoTicksAfterStop(t *testing.T) {
	h := newHarness(t)
	h.factory.SetFrame(simulated.UniformFrame(bins, 90))
	h.start(t)
	h.step(t, 60*time.Millisecond)

	h.detector.Stop()
	<-h.results
	samples := h.factory.Samples()

	h.clock.Step(time.Second)
	h.clock.Step(time.Second)

	assert.Equal(t, samples, h.factory.Samples())
	assert.Equal(t, Result{}, h.detector.Result())
	assert.Empty(t, h.results)
}

func TestDetectorIdleInputs(t *testing.T) {
	errAcquire := errors.New("permission denied")

	tests := []struct {
		name  string
		setup func(h *harness)
	}{
		{"disabled track", func(h *harness) { h.track.SetEnabled(false) }},
		{"no tracks", func(h *harness) { h.stream.RemoveTracks() }},
		{"acquire failure", func(h *harness) { h.factory.FailAcquire(errAcquire) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)

			h.detector.Update(h.stream, true)

			assert.False(t, h.detector.Active())
			assert.Equal(t, Result{}, h.detector.Result())
			assert.Equal(t, 0, h.factory.Acquired())
		})
	}

	t.Run("nil stream", func(t *testing.T) {
		h := newHarness(t)
		h.detector.Update(nil, true)
		assert.False(t, h.detector.Active())
	})

	t.Run("nil factory", func(t *testing.T) {
		d := NewDetector(nil, nil)
		d.Update(simulated.NewSimulatedStream("s", simulated.NewSimulatedTrack("a", true)), true)
		assert.False(t, d.Active())
		assert.Equal(t, Result{}, d.Result())
	})
}

func TestDetectorReleaseFailureSwallowed(t *testing.T) {
	h := newHarness(t)
	h.factory.FailRelease(errors.New("already closed"))
	h.start(t)

	h.detector.Stop()

	assert.Equal(t, 1, h.factory.Released())
	assert.False(t, h.detector.Active())
	assert.Equal(t, Result{}, h.detector.Result())
}

func TestDetectorTrackDisabledMidSession(t *testing.T) {
	h := newHarness(t)
	h.factory.SetFrame(simulated.UniformFrame(bins, 90))
	h.start(t)
	require.True(t, h.step(t, 60*time.Millisecond).IsSpeaking)

	h.track.SetEnabled(false)
	r := h.step(t, 60*time.Millisecond)

	assert.Equal(t, Result{}, r)
	require.Eventually(t, func() bool { return !h.detector.Active() }, time.Second, time.Millisecond)
	assert.Equal(t, 1, h.factory.Released())
	assert.Equal(t, 1, h.factory.Samples())
}

func TestDetectorUpdateReplacesSession(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	other := simulated.NewSimulatedStream("screen", simulated.NewSimulatedTrack("mic2", true))
	h.detector.Update(other, true)

	assert.True(t, h.detector.Active())
	assert.Equal(t, 2, h.factory.Acquired())
	assert.Equal(t, 1, h.factory.Released())
}

func TestDetectorPassesAnalyserOptions(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	opts := h.factory.LastOptions()
	assert.Equal(t, 256, opts.FFTSize)
	assert.InDelta(t, 0.7, opts.SmoothingTimeConstant, 1e-9)
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := (&Config{Threshold: 0.2}).withDefaults()
	assert.Equal(t, 0.2, cfg.Threshold)
	assert.Equal(t, 256, cfg.FFTSize)
	assert.Equal(t, 60*time.Millisecond, cfg.SampleInterval)
	assert.Equal(t, 350*time.Millisecond, cfg.DecayWindow)
	assert.InDelta(t, 0.7, cfg.SmoothingTimeConstant, 1e-9)

	explicit := (&Config{SmoothingTimeConstant: 0.3}).withDefaults()
	assert.InDelta(t, 0.3, explicit.SmoothingTimeConstant, 1e-9)
	assert.Equal(t, DefaultConfig(), (*Config)(nil).withDefaults())
}
