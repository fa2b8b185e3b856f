package testing

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/opd-ai/callquality/interfaces"
	"github.com/sirupsen/logrus"
)

// ErrSimulatedStatsFailure is returned by GetStats when failure injection is on
// without a specific error.
var ErrSimulatedStatsFailure = errors.New("simulated stats failure")

// NetworkProfile describes the link a SimulatedStatsReporter pretends to observe.
type NetworkProfile struct {
	// RTT of the succeeded candidate pair; ignored when NoCandidatePair is set
	RTT time.Duration
	// Jitter reported on the inbound video stream
	Jitter time.Duration
	// LossRate is the fraction of packets lost per report, in [0,1]
	LossRate float64
	// PacketsPerReport is how many packets arrive between two reports
	PacketsPerReport uint64
	// NoCandidatePair omits the succeeded candidate pair entirely
	NoCandidatePair bool
}

// Preset network profiles.
var (
	ProfileExcellent = NetworkProfile{RTT: 40 * time.Millisecond, Jitter: 5 * time.Millisecond, PacketsPerReport: 100}
	ProfileGood      = NetworkProfile{RTT: 100 * time.Millisecond, Jitter: 12 * time.Millisecond, LossRate: 0.01, PacketsPerReport: 100}
	ProfileFair      = NetworkProfile{RTT: 200 * time.Millisecond, Jitter: 30 * time.Millisecond, LossRate: 0.03, PacketsPerReport: 100}
	ProfilePoor      = NetworkProfile{RTT: 450 * time.Millisecond, Jitter: 80 * time.Millisecond, LossRate: 0.1, PacketsPerReport: 100}
)

// ProfileByName returns a preset profile by its quality name.
func ProfileByName(name string) (NetworkProfile, bool) {
	switch name {
	case "excellent":
		return ProfileExcellent, true
	case "good":
		return ProfileGood, true
	case "fair":
		return ProfileFair, true
	case "poor":
		return ProfilePoor, true
	}
	return NetworkProfile{}, false
}

// StatsCall records one GetStats invocation.
type StatsCall struct {
	Timestamp time.Time
	Entries   int
	Err       error
}

// SimulatedStatsReporter is an in-memory interfaces.StatsReporter. Scripted
// reports are returned first, then reports are generated from the profile
// with monotonically increasing cumulative packet counters.
type SimulatedStatsReporter struct {
	mu sync.Mutex

	profile  NetworkProfile
	scripted []interfaces.StatsReport

	received uint64
	lost     int64
	carry    float64

	closed bool
	err    error
	delay  time.Duration

	calls []StatsCall
}

// NewSimulatedStatsReporter creates a reporter following profile.
func NewSimulatedStatsReporter(profile NetworkProfile) *SimulatedStatsReporter {
	logrus.WithFields(logrus.Fields{
		"function":  "NewSimulatedStatsReporter",
		"rtt":       profile.RTT,
		"loss_rate": profile.LossRate,
	}).Warn("SIMULATION FUNCTION - NOT A REAL OPERATION")

	return &SimulatedStatsReporter{profile: profile}
}

// SetProfile switches the simulated link characteristics. Cumulative counters
// carry over.
func (s *SimulatedStatsReporter) SetProfile(profile NetworkProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = profile
}

// Enqueue queues reports returned verbatim by the next GetStats calls.
func (s *SimulatedStatsReporter) Enqueue(reports ...interfaces.StatsReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripted = append(s.scripted, reports...)
}

// SetError makes every GetStats call fail with err until cleared with nil.
func (s *SimulatedStatsReporter) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// SetDelay makes GetStats block for d or until its context is done.
func (s *SimulatedStatsReporter) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Close marks the connection closed.
func (s *SimulatedStatsReporter) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Closed implements interfaces.StatsReporter.
func (s *SimulatedStatsReporter) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Calls returns a copy of the GetStats call log.
func (s *SimulatedStatsReporter) Calls() []StatsCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StatsCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// GetStats implements interfaces.StatsReporter.
func (s *SimulatedStatsReporter) GetStats(ctx context.Context) (interfaces.StatsReport, error) {
	s.mu.Lock()
	delay := s.delay
	s.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			s.record(0, ctx.Err())
			return nil, ctx.Err()
		}
	}

	if err := ctx.Err(); err != nil {
		s.record(0, err)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		s.calls = append(s.calls, StatsCall{Timestamp: time.Now(), Err: s.err})
		return nil, s.err
	}

	var report interfaces.StatsReport
	if len(s.scripted) > 0 {
		report = s.scripted[0]
		s.scripted = s.scripted[1:]
	} else {
		report = s.generate()
	}

	s.calls = append(s.calls, StatsCall{Timestamp: time.Now(), Entries: len(report)})

	logrus.WithFields(logrus.Fields{
		"function": "SimulatedStatsReporter.GetStats",
		"entries":  len(report),
	}).Trace("Simulated stats report produced")

	return report, nil
}

func (s *SimulatedStatsReporter) record(entries int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, StatsCall{Timestamp: time.Now(), Entries: entries, Err: err})
}

// generate advances the cumulative counters by one report's worth of traffic.
// Fractional losses accumulate so low loss rates still surface over time.
func (s *SimulatedStatsReporter) generate() interfaces.StatsReport {
	p := s.profile
	rate := math.Min(math.Max(p.LossRate, 0), 1)

	s.carry += float64(p.PacketsPerReport) * rate
	lost := uint64(math.Floor(s.carry))
	s.carry -= float64(lost)
	if lost > p.PacketsPerReport {
		lost = p.PacketsPerReport
	}

	s.received += p.PacketsPerReport - lost
	s.lost += int64(lost)

	now := time.Now()
	report := interfaces.StatsReport{}
	if !p.NoCandidatePair {
		pair := CandidatePair("CP-sim", interfaces.CandidatePairStateSucceeded, p.RTT.Seconds())
		pair.Timestamp = now
		report = append(report, pair)
	}

	video := InboundRTP("IT-video", interfaces.MediaKindVideo, p.Jitter.Seconds(), s.received, s.lost)
	video.Timestamp = now
	audio := InboundRTP("IT-audio", interfaces.MediaKindAudio, p.Jitter.Seconds()/2, s.received, 0)
	audio.Timestamp = now

	return append(report, audio, video)
}

// CandidatePair builds a candidate-pair entry with rttSeconds as current RTT.
func CandidatePair(id, state string, rttSeconds float64) interfaces.StatsEntry {
	return interfaces.StatsEntry{
		ID:                   id,
		Type:                 interfaces.StatsTypeCandidatePair,
		State:                state,
		CurrentRoundTripTime: &rttSeconds,
	}
}

// InboundRTP builds an inbound-rtp entry with cumulative counters.
func InboundRTP(id, kind string, jitterSeconds float64, received uint64, lost int64) interfaces.StatsEntry {
	return interfaces.StatsEntry{
		ID:              id,
		Type:            interfaces.StatsTypeInboundRTP,
		Kind:            kind,
		Jitter:          &jitterSeconds,
		PacketsReceived: received,
		PacketsLost:     lost,
	}
}
