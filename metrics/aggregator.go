// Package metrics aggregates call quality snapshots across concurrent calls.
//
// The Aggregator keeps a rolling history per call, maintains system-wide
// averages and a quality distribution, and emits periodic reports suitable
// for dashboards.
package metrics

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/opd-ai/callquality/netquality"
	"github.com/opd-ai/callquality/sampler"
	"github.com/opd-ai/callquality/speaking"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

// DefaultHistorySize keeps one minute of history at the 2s polling period.
const DefaultHistorySize = 30

// CallSample is one observation of a call.
type CallSample struct {
	CallID       string           `json:"callId"`
	Speaking     speaking.Result  `json:"speaking"`
	Network      netquality.Stats `json:"network"`
	SpeakingTime time.Duration    `json:"speakingTimeNs"`
	Timestamp    time.Time        `json:"timestamp"`
}

// CallHistory is the rolling window of samples of one call.
type CallHistory struct {
	CallID  string
	Current CallSample
	History []CallSample
	Started time.Time
}

// speakingRatio is the fraction of history samples flagged speaking.
func (h *CallHistory) speakingRatio() float64 {
	if len(h.History) == 0 {
		return 0
	}
	var n int
	for _, s := range h.History {
		if s.Speaking.IsSpeaking {
			n++
		}
	}
	return float64(n) / float64(len(h.History))
}

// SystemMetrics contains system-wide aggregated metrics.
type SystemMetrics struct {
	// Call statistics
	ActiveCalls     int           `json:"activeCalls"`
	TotalCalls      uint64        `json:"totalCalls"`
	AverageDuration time.Duration `json:"averageDurationNs"`

	// Network statistics over calls that reported each metric
	AverageRTT        float64 `json:"averageRtt"`
	AveragePacketLoss float64 `json:"averagePacketLoss"`
	AverageJitter     float64 `json:"averageJitter"`

	// Speaking activity
	SpeakingCalls        int     `json:"speakingCalls"`
	AverageSpeakingRatio float64 `json:"averageSpeakingRatio"`

	// Quality distribution
	ExcellentCalls int `json:"excellentCalls"`
	GoodCalls      int `json:"goodCalls"`
	FairCalls      int `json:"fairCalls"`
	PoorCalls      int `json:"poorCalls"`
	UnknownCalls   int `json:"unknownCalls"`

	LastUpdate time.Time `json:"lastUpdate"`
}

// AggregatedReport contains aggregated metrics for periodic reporting.
type AggregatedReport struct {
	SystemMetrics  SystemMetrics         `json:"system"`
	CallReports    map[string]CallSample `json:"calls"`
	OverallQuality netquality.Quality    `json:"overallQuality"`
	Timestamp      time.Time             `json:"timestamp"`
	ReportDuration time.Duration         `json:"reportDurationNs"`
}

// Aggregator provides aggregated metrics reporting across multiple calls.
//
// Example usage:
//
//	aggregator := metrics.NewAggregator(10*time.Second, metrics.DefaultHistorySize)
//	aggregator.OnReport(func(report metrics.AggregatedReport) {
//	    log.Printf("%d active calls, %s overall", report.SystemMetrics.ActiveCalls, report.OverallQuality)
//	})
//	aggregator.Start()
//	defer aggregator.Stop()
type Aggregator struct {
	reportInterval time.Duration
	historySize    int
	loop           *sampler.Loop

	mu             sync.RWMutex
	clock          clock.WithTicker
	calls          map[string]*CallHistory
	system         SystemMetrics
	reportCallback func(AggregatedReport)
}

// NewAggregator creates a stopped aggregator. A non-positive historySize
// uses DefaultHistorySize.
func NewAggregator(reportInterval time.Duration, historySize int) *Aggregator {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}

	logrus.WithFields(logrus.Fields{
		"function":        "NewAggregator",
		"report_interval": reportInterval,
		"history_size":    historySize,
	}).Info("Creating metrics aggregator")

	return &Aggregator{
		reportInterval: reportInterval,
		historySize:    historySize,
		loop:           sampler.NewLoop("metrics"),
		clock:          clock.RealClock{},
		calls:          make(map[string]*CallHistory),
	}
}

// SetClock replaces the clock used for timestamps and reporting ticks.
func (a *Aggregator) SetClock(clk clock.WithTicker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clock = sampler.OrRealClock(clk)
}

// Start begins periodic reporting. It returns sampler.ErrAlreadyRunning
// when already started.
func (a *Aggregator) Start() error {
	a.mu.RLock()
	clk := a.clock
	a.mu.RUnlock()

	err := a.loop.Start(func(ctx context.Context) {
		sampler.Every(ctx, clk, a.reportInterval, func(now time.Time) {
			a.generateReport(now)
		})
	})
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function": "Aggregator.Start",
		"interval": a.reportInterval,
	}).Info("Metrics aggregator started")
	return nil
}

// Stop halts periodic reporting and waits for an in-flight report.
func (a *Aggregator) Stop() {
	if a.loop.Stop() {
		logrus.WithFields(logrus.Fields{
			"function": "Aggregator.Stop",
		}).Info("Metrics aggregator stopped")
	}
}

// IsRunning returns whether periodic reporting is active.
func (a *Aggregator) IsRunning() bool {
	return a.loop.Running()
}

// OnReport registers a callback for periodic reports. The callback runs on
// the reporting goroutine.
func (a *Aggregator) OnReport(callback func(AggregatedReport)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reportCallback = callback
}

// StartCallTracking begins tracking a call.
func (a *Aggregator) StartCallTracking(callID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Aggregator.StartCallTracking",
		"call_id":  callID,
	}).Info("Starting call tracking")

	if _, exists := a.calls[callID]; !exists {
		a.calls[callID] = a.newHistory(callID)
		a.system.TotalCalls++
	}
	a.updateSystemMetrics()
}

// StopCallTracking stops tracking a call and drops its history.
func (a *Aggregator) StopCallTracking(callID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Aggregator.StopCallTracking",
		"call_id":  callID,
	}).Info("Stopping call tracking")

	delete(a.calls, callID)
	a.updateSystemMetrics()
}

// RecordSample records an observation. Untracked calls start being tracked.
func (a *Aggregator) RecordSample(sample CallSample) {
	a.mu.Lock()
	defer a.mu.Unlock()

	history, exists := a.calls[sample.CallID]
	if !exists {
		history = a.newHistory(sample.CallID)
		a.calls[sample.CallID] = history
		a.system.TotalCalls++
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = a.clock.Now()
	}

	history.Current = sample
	history.History = append(history.History, sample)
	if len(history.History) > a.historySize {
		history.History = history.History[len(history.History)-a.historySize:]
	}

	a.updateSystemMetrics()

	if logrus.IsLevelEnabled(logrus.TraceLevel) {
		logrus.WithFields(logrus.Fields{
			"function":        "Aggregator.RecordSample",
			"call_id":         sample.CallID,
			"quality":         sample.Network.Quality.String(),
			"history_entries": len(history.History),
		}).Trace("Sample recorded")
	}
}

func (a *Aggregator) newHistory(callID string) *CallHistory {
	return &CallHistory{
		CallID:  callID,
		History: make([]CallSample, 0, a.historySize),
		Started: a.clock.Now(),
	}
}

// GetSystemMetrics returns a copy of the system-wide metrics.
func (a *Aggregator) GetSystemMetrics() SystemMetrics {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.system
}

// GetCallHistory returns a copy of a call's history, or nil when untracked.
func (a *Aggregator) GetCallHistory(callID string) []CallSample {
	a.mu.RLock()
	defer a.mu.RUnlock()

	history, exists := a.calls[callID]
	if !exists {
		return nil
	}
	out := make([]CallSample, len(history.History))
	copy(out, history.History)
	return out
}

// ActiveCallIDs returns the tracked call IDs in sorted order.
func (a *Aggregator) ActiveCallIDs() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ids := make([]string, 0, len(a.calls))
	for id := range a.calls {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Report builds an aggregated report from the current state.
func (a *Aggregator) Report() AggregatedReport {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.buildReportLocked(a.clock.Now())
}

func (a *Aggregator) buildReportLocked(now time.Time) AggregatedReport {
	report := AggregatedReport{
		SystemMetrics:  a.system,
		CallReports:    make(map[string]CallSample, len(a.calls)),
		OverallQuality: a.calculateOverallQuality(),
		Timestamp:      now,
		ReportDuration: a.reportInterval,
	}
	for id, history := range a.calls {
		report.CallReports[id] = history.Current
	}
	return report
}

// generateReport dispatches an aggregated report to the callback.
func (a *Aggregator) generateReport(now time.Time) {
	a.mu.RLock()
	callback := a.reportCallback
	if callback == nil {
		a.mu.RUnlock()
		return
	}
	report := a.buildReportLocked(now)
	a.mu.RUnlock()

	logrus.WithFields(logrus.Fields{
		"function":        "Aggregator.generateReport",
		"active_calls":    report.SystemMetrics.ActiveCalls,
		"overall_quality": report.OverallQuality.String(),
	}).Debug("Generated aggregated report")

	callback(report)
}

// updateSystemMetrics recalculates system-wide metrics. Caller holds mu.
func (a *Aggregator) updateSystemMetrics() {
	s := &a.system
	s.ActiveCalls = len(a.calls)
	s.ExcellentCalls, s.GoodCalls, s.FairCalls, s.PoorCalls, s.UnknownCalls = 0, 0, 0, 0, 0
	s.SpeakingCalls = 0
	s.AverageRTT, s.AveragePacketLoss, s.AverageJitter = 0, 0, 0
	s.AverageSpeakingRatio, s.AverageDuration = 0, 0
	now := a.clock.Now()
	s.LastUpdate = now

	if s.ActiveCalls == 0 {
		return
	}

	var rttSum, lossSum, jitterSum, ratioSum float64
	var rttN, lossN, jitterN int
	var durationSum time.Duration

	for _, history := range a.calls {
		current := history.Current
		network := current.Network

		if network.RTT != nil {
			rttSum += *network.RTT
			rttN++
		}
		if network.PacketLoss != nil {
			lossSum += *network.PacketLoss
			lossN++
		}
		if network.Jitter != nil {
			jitterSum += *network.Jitter
			jitterN++
		}
		if current.Speaking.IsSpeaking {
			s.SpeakingCalls++
		}
		ratioSum += history.speakingRatio()
		durationSum += now.Sub(history.Started)

		switch network.Quality {
		case netquality.QualityExcellent:
			s.ExcellentCalls++
		case netquality.QualityGood:
			s.GoodCalls++
		case netquality.QualityFair:
			s.FairCalls++
		case netquality.QualityPoor:
			s.PoorCalls++
		default:
			s.UnknownCalls++
		}
	}

	s.AverageRTT = average(rttSum, rttN)
	s.AveragePacketLoss = average(lossSum, lossN)
	s.AverageJitter = average(jitterSum, jitterN)
	s.AverageSpeakingRatio = ratioSum / float64(s.ActiveCalls)
	s.AverageDuration = durationSum / time.Duration(s.ActiveCalls)
}

func average(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// calculateOverallQuality grades the system from the quality distribution of
// calls with a known quality. Caller holds mu.
func (a *Aggregator) calculateOverallQuality() netquality.Quality {
	s := a.system
	known := s.ActiveCalls - s.UnknownCalls
	if known <= 0 {
		return netquality.QualityUnknown
	}

	// If majority are poor, overall is poor
	if s.PoorCalls > known/2 {
		return netquality.QualityPoor
	}

	// If majority are fair or worse, overall is fair
	if s.FairCalls+s.PoorCalls > known/2 {
		return netquality.QualityFair
	}

	// Most good-or-better calls being excellent makes the system excellent
	if s.ExcellentCalls > s.GoodCalls {
		return netquality.QualityExcellent
	}
	return netquality.QualityGood
}
