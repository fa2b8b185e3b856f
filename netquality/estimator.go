package netquality

import (
	"context"
	"sync"
	"time"

	"github.com/opd-ai/callquality/interfaces"
	"github.com/opd-ai/callquality/sampler"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

// Estimator grades a peer connection on a fixed cadence.
//
// Update mirrors a reactive hook: every call synchronously tears down the
// previous polling session before arming a new one. Each fetch runs on the
// polling goroutine, so at most one fetch is outstanding and ticks missed
// while a fetch is slow are dropped.
type Estimator struct {
	config *Config
	loop   *sampler.Loop

	// updateMu serialises Update and Stop
	updateMu sync.Mutex

	mu       sync.RWMutex
	clock    clock.WithTicker
	stats    Stats
	baseline Counters
	callback func(Stats)
}

// NewEstimator creates an inactive estimator. A nil cfg uses DefaultConfig.
func NewEstimator(cfg *Config) *Estimator {
	cfg = cfg.withDefaults()

	logrus.WithFields(logrus.Fields{
		"function":                    "NewEstimator",
		"interval":                    cfg.Interval,
		"degrade_on_loss_without_rtt": cfg.DegradeOnLossWithoutRTT,
	}).Debug("Creating network quality estimator")

	return &Estimator{
		config: cfg,
		loop:   sampler.NewLoop("netquality"),
		clock:  clock.RealClock{},
	}
}

// SetClock replaces the clock driving ticks. It takes effect on the next Update.
func (e *Estimator) SetClock(clk clock.WithTicker) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock = sampler.OrRealClock(clk)
}

// OnStats registers a callback invoked with every published Stats.
// Pass nil to disable.
func (e *Estimator) OnStats(callback func(Stats)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callback = callback
}

// Stats returns the most recently published state.
func (e *Estimator) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// Active reports whether the estimator is polling.
func (e *Estimator) Active() bool {
	return e.loop.Running()
}

// Update applies new inputs. With active set the estimator polls conn every
// interval; a nil or closed conn makes each tick a no-op until it changes.
func (e *Estimator) Update(conn interfaces.StatsReporter, active bool) {
	e.updateMu.Lock()
	defer e.updateMu.Unlock()

	e.loop.Stop()
	e.reset()

	if !active {
		return
	}

	e.mu.RLock()
	clk := e.clock
	e.mu.RUnlock()

	if err := e.loop.Start(func(ctx context.Context) {
		sampler.Every(ctx, clk, e.config.Interval, func(time.Time) {
			e.tick(ctx, conn)
		})
	}); err != nil {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function":       "Estimator.Update",
		"has_connection": conn != nil,
	}).Info("Network quality estimation started")
}

// Stop deactivates the estimator. It is idempotent.
func (e *Estimator) Stop() {
	e.Update(nil, false)
}

// tick fetches and grades one statistics report. Failures skip the tick.
func (e *Estimator) tick(ctx context.Context, conn interfaces.StatsReporter) {
	if conn == nil || conn.Closed() {
		logrus.WithFields(logrus.Fields{
			"function": "Estimator.tick",
		}).Trace("No open connection, skipping tick")
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.config.Interval)
	defer cancel()

	report, err := conn.GetStats(fetchCtx)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Estimator.tick",
			"error":    err.Error(),
		}).Debug("Statistics fetch failed, skipping tick")
		return
	}
	if ctx.Err() != nil {
		return
	}

	sample := ParseReport(report)
	current := Counters{PacketsReceived: sample.PacketsReceived, PacketsLost: sample.PacketsLost}

	e.mu.Lock()
	loss := IncrementalLoss(e.baseline, current)
	e.baseline = current
	e.mu.Unlock()

	rounded := roundTenth(loss)
	stats := Stats{
		Quality:    Classify(sample.RTT, loss, e.config.Thresholds, e.config.DegradeOnLossWithoutRTT),
		RTT:        sample.RTT,
		PacketLoss: &rounded,
		Jitter:     sample.Jitter,
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Estimator.tick",
		"quality":     stats.Quality.String(),
		"rtt":         deref(sample.RTT),
		"packet_loss": rounded,
		"jitter":      deref(sample.Jitter),
	}).Trace("Network quality sampled")

	e.publish(stats)
}

func (e *Estimator) publish(s Stats) {
	e.mu.Lock()
	e.stats = s
	callback := e.callback
	e.mu.Unlock()

	if callback != nil {
		callback(s)
	}
}

// reset clears the counter baseline and publishes the default Stats unless
// it is already current.
func (e *Estimator) reset() {
	e.mu.Lock()
	e.baseline = Counters{}
	current := e.stats
	e.mu.Unlock()

	if current.Equal(Stats{}) {
		return
	}
	e.publish(Stats{})
}

// deref keeps log output readable for optional metrics.
func deref(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
