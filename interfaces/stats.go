package interfaces

import (
	"context"
	"time"
)

// StatsType identifies the kind of a statistics entry.
type StatsType string

// Statistics entry types used by the estimators.
const (
	StatsTypeCandidatePair StatsType = "candidate-pair"
	StatsTypeInboundRTP    StatsType = "inbound-rtp"
	StatsTypeOutboundRTP   StatsType = "outbound-rtp"
	StatsTypeTransport     StatsType = "transport"
)

// CandidatePairStateSucceeded is the state of the candidate pair carrying traffic.
const CandidatePairStateSucceeded = "succeeded"

// Media kinds reported on RTP entries.
const (
	MediaKindAudio = "audio"
	MediaKindVideo = "video"
)

// StatsEntry is one typed entry of a statistics report.
//
// Time-valued metrics are in seconds, matching the W3C stats model.
// Pointer fields are nil when the engine did not report them.
type StatsEntry struct {
	ID        string
	Type      StatsType
	Timestamp time.Time

	// State is set on candidate-pair entries
	State string

	// Kind is set on RTP entries
	Kind string

	CurrentRoundTripTime *float64
	Jitter               *float64
	PacketsReceived      uint64
	PacketsLost          int64
}

// StatsReport is an ordered statistics report.
type StatsReport []StatsEntry

// StatsReporter exposes the statistics of one peer connection.
// Implementations only read from the connection.
type StatsReporter interface {
	// GetStats returns the full statistics report of the connection
	GetStats(ctx context.Context) (StatsReport, error)

	// Closed reports whether the connection has been closed
	Closed() bool
}
