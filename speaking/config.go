package speaking

import (
	"time"

	"github.com/opd-ai/callquality/interfaces"
)

// Config defines the sampling and hysteresis parameters of a Detector.
// Zero fields take their defaults, so smoothing cannot be disabled entirely;
// use a small positive SmoothingTimeConstant instead.
type Config struct {
	// Analysis pipeline
	FFTSize               int     // FFT window length (default: 256)
	SmoothingTimeConstant float64 // Analyser smoothing (default: 0.7)

	// Sampling
	SampleInterval time.Duration // How often bins are sampled (default: 60ms)
	Normalizer     float64       // Mean bin value mapped to level 1.0 (default: 100)

	// Speaking state machine
	Threshold   float64       // Level that must be exceeded to trigger speaking (default: 0.08)
	DecayWindow time.Duration // How long speaking is held after the last trigger (default: 350ms)
}

// DefaultConfig returns the parameters used by the consultation UI.
func DefaultConfig() *Config {
	return &Config{
		FFTSize:               256,
		SmoothingTimeConstant: 0.7,
		SampleInterval:        60 * time.Millisecond,
		Normalizer:            100,
		Threshold:             0.08,
		DecayWindow:           350 * time.Millisecond,
	}
}

// AnalyserOptions returns the options used to acquire the pipeline.
func (c *Config) AnalyserOptions() interfaces.AnalyserOptions {
	return interfaces.AnalyserOptions{
		FFTSize:               c.FFTSize,
		SmoothingTimeConstant: c.SmoothingTimeConstant,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.FFTSize == 0 {
		out.FFTSize = d.FFTSize
	}
	if out.SmoothingTimeConstant <= 0 {
		out.SmoothingTimeConstant = d.SmoothingTimeConstant
	}
	if out.SampleInterval <= 0 {
		out.SampleInterval = d.SampleInterval
	}
	if out.Normalizer <= 0 {
		out.Normalizer = d.Normalizer
	}
	if out.Threshold == 0 {
		out.Threshold = d.Threshold
	}
	if out.DecayWindow <= 0 {
		out.DecayWindow = d.DecayWindow
	}
	return &out
}
