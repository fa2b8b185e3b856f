// Package netquality classifies the health of a peer connection from its
// periodic statistics reports.
//
// An Estimator polls a StatsReporter on a fixed cadence, extracts round-trip
// time, jitter and incremental packet loss, and grades the link into one of
// four tiers. Output is published through a callback and a getter; failures
// never propagate to the caller.
package netquality

import (
	"fmt"
	"strings"
)

// Quality is the discrete grade of a connection.
type Quality int

const (
	// QualityUnknown is reported while the estimator is inactive
	QualityUnknown Quality = iota
	// QualityExcellent indicates RTT ≤ 80ms and loss ≤ 0.5%
	QualityExcellent
	// QualityGood indicates RTT ≤ 150ms and loss ≤ 2%
	QualityGood
	// QualityFair indicates RTT ≤ 300ms and loss ≤ 5%
	QualityFair
	// QualityPoor indicates RTT > 300ms or loss > 5%
	QualityPoor
)

// String returns the lowercase quality name.
func (q Quality) String() string {
	switch q {
	case QualityExcellent:
		return "excellent"
	case QualityGood:
		return "good"
	case QualityFair:
		return "fair"
	case QualityPoor:
		return "poor"
	default:
		return "unknown"
	}
}

// ParseQuality converts a quality name back to its value.
func ParseQuality(s string) (Quality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "excellent":
		return QualityExcellent, nil
	case "good":
		return QualityGood, nil
	case "fair":
		return QualityFair, nil
	case "poor":
		return QualityPoor, nil
	case "unknown", "":
		return QualityUnknown, nil
	}
	return QualityUnknown, fmt.Errorf("%w: %q", ErrInvalidQuality, s)
}

// MarshalText encodes the quality as its name.
func (q Quality) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalText decodes a quality name.
func (q *Quality) UnmarshalText(text []byte) error {
	parsed, err := ParseQuality(string(text))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// Stats is the published network state. Nil metrics were not observed.
type Stats struct {
	Quality    Quality  `json:"quality"`
	RTT        *float64 `json:"rtt"`        // milliseconds
	PacketLoss *float64 `json:"packetLoss"` // percent since the previous report
	Jitter     *float64 `json:"jitter"`     // milliseconds
}

// Equal reports whether two snapshots carry the same values.
func (s Stats) Equal(o Stats) bool {
	return s.Quality == o.Quality &&
		floatPtrEqual(s.RTT, o.RTT) &&
		floatPtrEqual(s.PacketLoss, o.PacketLoss) &&
		floatPtrEqual(s.Jitter, o.Jitter)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
