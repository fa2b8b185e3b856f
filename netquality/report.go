package netquality

import (
	"math"

	"github.com/opd-ai/callquality/interfaces"
)

// Sample is the data extracted from one statistics report.
type Sample struct {
	RTT    *float64 // milliseconds, rounded
	Jitter *float64 // milliseconds, rounded

	// Cumulative counters of the inbound video stream
	PacketsReceived uint64
	PacketsLost     int64
}

// ParseReport extracts RTT from the succeeded candidate pair and jitter and
// packet counters from the inbound video stream. When several entries match,
// the last one in report order wins.
func ParseReport(report interfaces.StatsReport) Sample {
	var s Sample
	for _, entry := range report {
		switch entry.Type {
		case interfaces.StatsTypeCandidatePair:
			if entry.State != interfaces.CandidatePairStateSucceeded || entry.CurrentRoundTripTime == nil {
				continue
			}
			s.RTT = secondsToMillis(*entry.CurrentRoundTripTime)

		case interfaces.StatsTypeInboundRTP:
			if entry.Kind != interfaces.MediaKindVideo {
				continue
			}
			s.Jitter = nil
			if entry.Jitter != nil {
				s.Jitter = secondsToMillis(*entry.Jitter)
			}
			s.PacketsReceived = entry.PacketsReceived
			s.PacketsLost = entry.PacketsLost
		}
	}
	return s
}

// Counters is the cumulative packet baseline carried between reports.
type Counters struct {
	PacketsReceived uint64
	PacketsLost     int64
}

// IncrementalLoss returns the percentage of packets lost between prev and
// cur. It is 0 when no packets were accounted for and is clamped to [0,100]
// when counters move backwards.
func IncrementalLoss(prev, cur Counters) float64 {
	deltaReceived := int64(cur.PacketsReceived) - int64(prev.PacketsReceived)
	deltaLost := cur.PacketsLost - prev.PacketsLost

	total := deltaReceived + deltaLost
	if total <= 0 {
		return 0
	}
	loss := float64(deltaLost) / float64(total) * 100
	return math.Min(math.Max(loss, 0), 100)
}

func secondsToMillis(seconds float64) *float64 {
	ms := math.Round(seconds * 1000)
	return &ms
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
