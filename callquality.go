package callquality

import (
	"sync"
	"time"

	"github.com/opd-ai/callquality/interfaces"
	"github.com/opd-ai/callquality/metrics"
	"github.com/opd-ai/callquality/netquality"
	"github.com/opd-ai/callquality/sampler"
	"github.com/opd-ai/callquality/speaking"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

// Snapshot is the combined state of both estimators for one call.
type Snapshot struct {
	CallID       string           `json:"callId"`
	Speaking     speaking.Result  `json:"speaking"`
	Network      netquality.Stats `json:"network"`
	SpeakingTime time.Duration    `json:"speakingTimeNs"`
	Timestamp    time.Time        `json:"timestamp"`
}

// Sample converts the snapshot for the metrics aggregator.
func (s Snapshot) Sample() metrics.CallSample {
	return metrics.CallSample{
		CallID:       s.CallID,
		Speaking:     s.Speaking,
		Network:      s.Network,
		SpeakingTime: s.SpeakingTime,
		Timestamp:    s.Timestamp,
	}
}

// Options configures a CallMonitor. Nil fields use defaults.
type Options struct {
	Speaking   *speaking.Config
	Network    *netquality.Config
	Aggregator *metrics.Aggregator
	Clock      clock.WithTicker
}

// CallMonitor binds a speaking detector and a network estimator to one call.
//
// Both estimators run independently; every publication from either produces
// a Snapshot delivered to the OnUpdate callback and, while the call is
// active, recorded by the aggregator.
type CallMonitor struct {
	callID     string
	detector   *speaking.Detector
	estimator  *netquality.Estimator
	aggregator *metrics.Aggregator
	clock      clock.WithTicker

	// lifecycleMu serialises Start, Stop and input changes
	lifecycleMu sync.Mutex

	mu       sync.RWMutex
	active   bool
	stream   interfaces.MediaStream
	conn     interfaces.StatsReporter
	callback func(Snapshot)
}

// NewCallMonitor creates an inactive monitor for callID. analysers provides
// the audio analysis engine.
func NewCallMonitor(callID string, analysers interfaces.AnalyserFactory, opts *Options) *CallMonitor {
	if opts == nil {
		opts = &Options{}
	}
	clk := sampler.OrRealClock(opts.Clock)

	m := &CallMonitor{
		callID:     callID,
		detector:   speaking.NewDetector(analysers, opts.Speaking),
		estimator:  netquality.NewEstimator(opts.Network),
		aggregator: opts.Aggregator,
		clock:      clk,
	}
	m.detector.SetClock(clk)
	m.estimator.SetClock(clk)
	m.detector.OnResult(func(speaking.Result) { m.emit() })
	m.estimator.OnStats(func(netquality.Stats) { m.emit() })

	logrus.WithFields(logrus.Fields{
		"function":        "NewCallMonitor",
		"call_id":         callID,
		"with_aggregator": opts.Aggregator != nil,
	}).Debug("Call monitor created")

	return m
}

// CallID returns the monitored call's identifier.
func (m *CallMonitor) CallID() string { return m.callID }

// OnUpdate registers a callback for every snapshot. Pass nil to disable.
// Callbacks may run concurrently from both estimators.
func (m *CallMonitor) OnUpdate(callback func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callback = callback
}

// Active reports whether the call is being monitored.
func (m *CallMonitor) Active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Start activates monitoring of stream and conn. Either may be nil and be
// provided later with SetStream or SetConnection. Starting an active monitor
// re-arms both estimators with the new inputs.
func (m *CallMonitor) Start(stream interfaces.MediaStream, conn interfaces.StatsReporter) {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.mu.Lock()
	wasActive := m.active
	m.active = true
	m.stream = stream
	m.conn = conn
	m.mu.Unlock()

	if m.aggregator != nil && !wasActive {
		m.aggregator.StartCallTracking(m.callID)
	}

	m.detector.Update(stream, true)
	m.estimator.Update(conn, true)

	logrus.WithFields(logrus.Fields{
		"function":       "CallMonitor.Start",
		"call_id":        m.callID,
		"has_stream":     stream != nil,
		"has_connection": conn != nil,
	}).Info("Call monitoring started")
}

// SetStream replaces the monitored media stream. It is remembered while
// inactive and applied on Start.
func (m *CallMonitor) SetStream(stream interfaces.MediaStream) {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.mu.Lock()
	m.stream = stream
	active := m.active
	m.mu.Unlock()

	if active {
		m.detector.Update(stream, true)
	}
}

// SetConnection replaces the monitored peer connection.
func (m *CallMonitor) SetConnection(conn interfaces.StatsReporter) {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.mu.Lock()
	m.conn = conn
	active := m.active
	m.mu.Unlock()

	if active {
		m.estimator.Update(conn, true)
	}
}

// Stop deactivates both estimators, releasing the audio pipeline, and
// stops aggregator tracking. It is idempotent.
func (m *CallMonitor) Stop() {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.mu.Lock()
	wasActive := m.active
	m.active = false
	m.mu.Unlock()

	m.detector.Stop()
	m.estimator.Stop()

	if !wasActive {
		return
	}
	if m.aggregator != nil {
		m.aggregator.StopCallTracking(m.callID)
	}

	logrus.WithFields(logrus.Fields{
		"function": "CallMonitor.Stop",
		"call_id":  m.callID,
	}).Info("Call monitoring stopped")
}

// Snapshot returns the current combined state.
func (m *CallMonitor) Snapshot() Snapshot {
	return Snapshot{
		CallID:       m.callID,
		Speaking:     m.detector.Result(),
		Network:      m.estimator.Stats(),
		SpeakingTime: m.detector.SpeakingTime(),
		Timestamp:    m.clock.Now(),
	}
}

func (m *CallMonitor) emit() {
	snapshot := m.Snapshot()

	m.mu.RLock()
	callback := m.callback
	active := m.active
	m.mu.RUnlock()

	if active && m.aggregator != nil {
		m.aggregator.RecordSample(snapshot.Sample())
	}
	if callback != nil {
		callback(snapshot)
	}
}
