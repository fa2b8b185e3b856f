package speaking

import (
	"context"
	"sync"
	"time"

	"github.com/opd-ai/callquality/interfaces"
	"github.com/opd-ai/callquality/sampler"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

// Result is the published speaking state.
type Result struct {
	Level      float64 `json:"level"`
	IsSpeaking bool    `json:"isSpeaking"`
}

// Level converts byte frequency bins into a normalised level: the mean bin
// value divided by normalizer, capped at 1.
func Level(bins []byte, normalizer float64) float64 {
	if len(bins) == 0 || normalizer <= 0 {
		return 0
	}
	var sum float64
	for _, b := range bins {
		sum += float64(b)
	}
	return min(sum/float64(len(bins))/normalizer, 1.0)
}

// stopReason records why a sampling session ended.
type stopReason int

const (
	stopCancelled stopReason = iota
	stopTrackLost
)

// Detector turns a live audio track into a debounced speaking signal.
//
// Update mirrors a reactive hook: every call synchronously tears down the
// previous session before arming a new one. Failures are logged and never
// returned; on any failure the detector reports the default Result.
type Detector struct {
	config  *Config
	factory interfaces.AnalyserFactory
	loop    *sampler.Loop

	// updateMu serialises Update and Stop
	updateMu sync.Mutex

	mu            sync.RWMutex
	clock         clock.WithTicker
	result        Result
	callback      func(Result)
	speakingSince time.Time
	speakingTotal time.Duration
}

// NewDetector creates an inactive detector. Zero fields of cfg take their
// defaults; a nil cfg uses DefaultConfig.
func NewDetector(factory interfaces.AnalyserFactory, cfg *Config) *Detector {
	cfg = cfg.withDefaults()

	logrus.WithFields(logrus.Fields{
		"function":        "NewDetector",
		"fft_size":        cfg.FFTSize,
		"sample_interval": cfg.SampleInterval,
		"threshold":       cfg.Threshold,
		"decay_window":    cfg.DecayWindow,
	}).Debug("Creating speaking detector")

	return &Detector{
		config:  cfg,
		factory: factory,
		loop:    sampler.NewLoop("speaking"),
		clock:   clock.RealClock{},
	}
}

// SetClock replaces the clock driving ticks and the decay timer. It takes
// effect on the next Update.
func (d *Detector) SetClock(clk clock.WithTicker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clock = sampler.OrRealClock(clk)
}

// OnResult registers a callback invoked with every published Result.
// Pass nil to disable.
func (d *Detector) OnResult(callback func(Result)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callback = callback
}

// Result returns the most recently published state.
func (d *Detector) Result() Result {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.result
}

// Active reports whether the detector is currently sampling.
func (d *Detector) Active() bool {
	return d.loop.Running()
}

// SpeakingTime returns the time spent speaking during the current session,
// including the current speaking run. After teardown it reports the most
// recent session until a new one is armed.
func (d *Detector) SpeakingTime() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	total := d.speakingTotal
	if d.result.IsSpeaking {
		total += d.clock.Since(d.speakingSince)
	}
	return total
}

// Update applies new inputs. With active set and a stream carrying an
// enabled audio track it acquires an analyser and starts sampling;
// otherwise the detector stays reset.
func (d *Detector) Update(stream interfaces.MediaStream, active bool) {
	d.updateMu.Lock()
	defer d.updateMu.Unlock()

	d.loop.Stop()
	d.reset()

	if !active {
		return
	}

	if _, ok := interfaces.FirstEnabledAudioTrack(stream); !ok {
		logrus.WithFields(logrus.Fields{
			"function": "Detector.Update",
		}).Debug("No enabled audio track, speaking detection idle")
		return
	}

	if d.factory == nil {
		logrus.WithFields(logrus.Fields{
			"function": "Detector.Update",
		}).Warn("No analyser factory configured, speaking detection idle")
		return
	}

	an, err := d.factory.NewAnalyser(stream, d.config.AnalyserOptions())
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "Detector.Update",
			"stream_id": stream.ID(),
			"error":     err.Error(),
		}).Warn("Failed to acquire audio analyser")
		return
	}

	d.mu.Lock()
	clk := d.clock
	d.speakingTotal = 0
	d.mu.Unlock()

	if err := d.loop.Start(func(ctx context.Context) {
		d.run(ctx, clk, stream, an)
	}); err != nil {
		// unreachable while updateMu is held and the loop was stopped above
		d.release(an)
		return
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Detector.Update",
		"stream_id": stream.ID(),
	}).Info("Speaking detection started")
}

// Stop deactivates the detector. It is idempotent.
func (d *Detector) Stop() {
	d.Update(nil, false)
}

// run owns the analyser for the lifetime of one sampling session.
func (d *Detector) run(ctx context.Context, clk clock.WithTicker, stream interfaces.MediaStream, an interfaces.Analyser) {
	reason := d.sample(ctx, clk, stream, an)
	d.release(an)

	if reason == stopTrackLost {
		logrus.WithFields(logrus.Fields{
			"function":  "Detector.run",
			"stream_id": stream.ID(),
		}).Info("Audio track disabled or removed, speaking detection stopped")
		d.reset()
	}
}

// sample runs the tick and decay state machine until cancelled or the
// stream loses its enabled audio track.
func (d *Detector) sample(ctx context.Context, clk clock.WithTicker, stream interfaces.MediaStream, an interfaces.Analyser) stopReason {
	ticker := clk.NewTicker(d.config.SampleInterval)
	defer ticker.Stop()

	var decay clock.Timer
	var decayC <-chan time.Time
	defer func() {
		if decay != nil {
			decay.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return stopCancelled

		case now := <-ticker.C():
			if ctx.Err() != nil {
				return stopCancelled
			}
			if _, ok := interfaces.FirstEnabledAudioTrack(stream); !ok {
				return stopTrackLost
			}

			level := Level(an.ByteFrequencyData(), d.config.Normalizer)
			speaking := d.Result().IsSpeaking
			if level > d.config.Threshold {
				speaking = true
				if decay != nil {
					decay.Stop()
				}
				decay = clk.NewTimer(d.config.DecayWindow)
				decayC = decay.C()
			}

			logrus.WithFields(logrus.Fields{
				"function":    "Detector.sample",
				"level":       level,
				"is_speaking": speaking,
			}).Trace("Audio level sampled")

			d.publish(Result{Level: level, IsSpeaking: speaking}, now)

		case now := <-decayC:
			decay = nil
			decayC = nil
			d.publish(Result{Level: d.Result().Level, IsSpeaking: false}, now)
		}
	}
}

// publish stores r and invokes the callback outside the lock.
func (d *Detector) publish(r Result, now time.Time) {
	d.mu.Lock()
	switch {
	case r.IsSpeaking && !d.result.IsSpeaking:
		d.speakingSince = now
	case !r.IsSpeaking && d.result.IsSpeaking:
		d.speakingTotal += now.Sub(d.speakingSince)
	}
	d.result = r
	callback := d.callback
	d.mu.Unlock()

	if callback != nil {
		callback(r)
	}
}

// reset publishes the default Result unless it is already current.
func (d *Detector) reset() {
	d.mu.RLock()
	current := d.result
	now := d.clock.Now()
	d.mu.RUnlock()

	if current == (Result{}) {
		return
	}
	d.publish(Result{}, now)
}

// release closes the analyser. Errors are logged and swallowed.
func (d *Detector) release(an interfaces.Analyser) {
	if err := an.Close(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Detector.release",
			"error":    err.Error(),
		}).Debug("Ignoring analyser release failure")
	}
}
