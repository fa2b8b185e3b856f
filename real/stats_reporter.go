package real

import (
	"context"
	"errors"
	"sort"

	"github.com/opd-ai/callquality/interfaces"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

// ErrNoConnection is returned when a reporter has no peer connection.
var ErrNoConnection = errors.New("no peer connection")

// StatsSource is the part of *webrtc.PeerConnection read by StatsReporter.
type StatsSource interface {
	GetStats() webrtc.StatsReport
	ConnectionState() webrtc.PeerConnectionState
}

// StatsReporter adapts a pion peer connection to interfaces.StatsReporter.
// It never mutates the connection.
type StatsReporter struct {
	source StatsSource
}

// NewStatsReporter wraps source, usually a *webrtc.PeerConnection.
func NewStatsReporter(source StatsSource) *StatsReporter {
	return &StatsReporter{source: source}
}

// Closed implements interfaces.StatsReporter.
func (r *StatsReporter) Closed() bool {
	if r == nil || r.source == nil {
		return true
	}
	return r.source.ConnectionState() == webrtc.PeerConnectionStateClosed
}

// GetStats implements interfaces.StatsReporter. The pion report is collected
// on a separate goroutine so ctx bounds how long the caller waits.
func (r *StatsReporter) GetStats(ctx context.Context) (interfaces.StatsReport, error) {
	if r == nil || r.source == nil {
		return nil, ErrNoConnection
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := make(chan webrtc.StatsReport, 1)
	go func() {
		result <- r.source.GetStats()
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case report := <-result:
		converted := ConvertReport(report)

		logrus.WithFields(logrus.Fields{
			"function":  "StatsReporter.GetStats",
			"raw_count": len(report),
			"entries":   len(converted),
		}).Trace("Collected peer connection statistics")

		return converted, nil
	}
}

// ConvertReport keeps the candidate-pair and RTP stream entries of a pion
// report, ordered by stats ID.
func ConvertReport(report webrtc.StatsReport) interfaces.StatsReport {
	ids := make([]string, 0, len(report))
	for id := range report {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make(interfaces.StatsReport, 0, len(ids))
	for _, id := range ids {
		if entry, ok := convertEntry(report[id]); ok {
			out = append(out, entry)
		}
	}
	return out
}

func convertEntry(s webrtc.Stats) (interfaces.StatsEntry, bool) {
	switch v := s.(type) {
	case webrtc.ICECandidatePairStats:
		return candidatePairEntry(v), true
	case *webrtc.ICECandidatePairStats:
		return candidatePairEntry(*v), true
	case webrtc.InboundRTPStreamStats:
		return inboundEntry(v), true
	case *webrtc.InboundRTPStreamStats:
		return inboundEntry(*v), true
	case webrtc.OutboundRTPStreamStats:
		return outboundEntry(v), true
	case *webrtc.OutboundRTPStreamStats:
		return outboundEntry(*v), true
	}
	return interfaces.StatsEntry{}, false
}

func candidatePairEntry(s webrtc.ICECandidatePairStats) interfaces.StatsEntry {
	entry := interfaces.StatsEntry{
		ID:        s.ID,
		Type:      interfaces.StatsTypeCandidatePair,
		Timestamp: s.Timestamp.Time(),
		State:     string(s.State),
	}
	// pion reports 0 until the first STUN round trip completes
	if s.CurrentRoundTripTime > 0 {
		rtt := s.CurrentRoundTripTime
		entry.CurrentRoundTripTime = &rtt
	}
	return entry
}

func inboundEntry(s webrtc.InboundRTPStreamStats) interfaces.StatsEntry {
	jitter := s.Jitter
	return interfaces.StatsEntry{
		ID:              s.ID,
		Type:            interfaces.StatsTypeInboundRTP,
		Timestamp:       s.Timestamp.Time(),
		Kind:            s.Kind,
		Jitter:          &jitter,
		PacketsReceived: uint64(s.PacketsReceived),
		PacketsLost:     int64(s.PacketsLost),
	}
}

func outboundEntry(s webrtc.OutboundRTPStreamStats) interfaces.StatsEntry {
	return interfaces.StatsEntry{
		ID:        s.ID,
		Type:      interfaces.StatsTypeOutboundRTP,
		Timestamp: s.Timestamp.Time(),
		Kind:      s.Kind,
	}
}
