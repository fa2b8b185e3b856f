package netquality

import (
	"fmt"
	"time"
)

// Thresholds defines the limits above which a link drops a tier.
// All comparisons are strict.
type Thresholds struct {
	// Round-trip time thresholds (milliseconds)
	PoorRTT float64 // default: 300
	FairRTT float64 // default: 150
	GoodRTT float64 // default: 80

	// Incremental packet loss thresholds (percent)
	PoorLoss float64 // default: 5
	FairLoss float64 // default: 2
	GoodLoss float64 // default: 0.5
}

// DefaultThresholds returns the tiers shown by the consultation UI.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PoorRTT:  300,
		FairRTT:  150,
		GoodRTT:  80,
		PoorLoss: 5,
		FairLoss: 2,
		GoodLoss: 0.5,
	}
}

// Validate checks that each ladder is strictly increasing.
func (t Thresholds) Validate() error {
	if !(t.GoodRTT < t.FairRTT && t.FairRTT < t.PoorRTT) {
		return fmt.Errorf("%w: rtt %v/%v/%v", ErrInvalidThresholds, t.GoodRTT, t.FairRTT, t.PoorRTT)
	}
	if !(t.GoodLoss < t.FairLoss && t.FairLoss < t.PoorLoss) {
		return fmt.Errorf("%w: loss %v/%v/%v", ErrInvalidThresholds, t.GoodLoss, t.FairLoss, t.PoorLoss)
	}
	return nil
}

// Config defines the polling and classification parameters of an Estimator.
type Config struct {
	Interval   time.Duration // How often statistics are fetched (default: 2s)
	Thresholds Thresholds

	// DegradeOnLossWithoutRTT grades the link on packet loss alone when no
	// succeeded candidate pair reports an RTT. When false such links are
	// reported as excellent.
	DegradeOnLossWithoutRTT bool
}

// DefaultConfig returns the default estimator configuration.
func DefaultConfig() *Config {
	return &Config{
		Interval:   2 * time.Second,
		Thresholds: DefaultThresholds(),
	}
}

func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.Interval <= 0 {
		out.Interval = d.Interval
	}
	if out.Thresholds == (Thresholds{}) {
		out.Thresholds = d.Thresholds
	}
	return &out
}
