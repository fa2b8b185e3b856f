package interfaces

import (
	"errors"
	"fmt"
)

// Validation errors for analyser options.
var (
	// ErrInvalidFFTSize indicates an FFT size that is not a power of two in [MinFFTSize, MaxFFTSize].
	ErrInvalidFFTSize = errors.New("invalid FFT size")

	// ErrInvalidSmoothing indicates a smoothing time constant outside [0, 1).
	ErrInvalidSmoothing = errors.New("invalid smoothing time constant")

	// ErrNoAudioTrack indicates the stream carries no enabled audio track.
	ErrNoAudioTrack = errors.New("stream has no enabled audio track")
)

// FFT size bounds accepted by analysers.
const (
	MinFFTSize = 32
	MaxFFTSize = 32768
)

// AudioTrack is a single audio track of a media stream.
type AudioTrack interface {
	// ID returns the track identifier
	ID() string

	// Enabled reports whether the track currently carries audio
	Enabled() bool
}

// MediaStream is a live media stream supplied by the call layer.
type MediaStream interface {
	// ID returns the stream identifier
	ID() string

	// AudioTracks returns the audio tracks currently attached to the stream
	AudioTracks() []AudioTrack
}

// Analyser is an acquired frequency analysis pipeline routed from a stream's
// audio source. It is owned by exactly one consumer.
type Analyser interface {
	// FrequencyBinCount returns the number of bins produced per sample (FFT size / 2)
	FrequencyBinCount() int

	// ByteFrequencyData returns the current byte-valued magnitude of every bin
	ByteFrequencyData() []byte

	// Close disconnects the pipeline and releases its resources
	Close() error
}

// AnalyserOptions configures an analysis pipeline.
type AnalyserOptions struct {
	// FFTSize is the transform window length in samples
	FFTSize int

	// SmoothingTimeConstant blends each sample with the previous one (0 disables smoothing)
	SmoothingTimeConstant float64
}

// Validate checks the options against the analyser constraints.
func (o AnalyserOptions) Validate() error {
	if o.FFTSize < MinFFTSize || o.FFTSize > MaxFFTSize || o.FFTSize&(o.FFTSize-1) != 0 {
		return fmt.Errorf("%w: %d", ErrInvalidFFTSize, o.FFTSize)
	}
	if o.SmoothingTimeConstant < 0 || o.SmoothingTimeConstant >= 1 {
		return fmt.Errorf("%w: %v", ErrInvalidSmoothing, o.SmoothingTimeConstant)
	}
	return nil
}

// AnalyserFactory acquires analysis pipelines for streams.
type AnalyserFactory interface {
	// NewAnalyser routes the stream's audio into a new analyser
	NewAnalyser(stream MediaStream, opts AnalyserOptions) (Analyser, error)
}

// FirstEnabledAudioTrack returns the first enabled audio track of stream.
// A nil stream has no tracks.
func FirstEnabledAudioTrack(stream MediaStream) (AudioTrack, bool) {
	if stream == nil {
		return nil, false
	}
	for _, track := range stream.AudioTracks() {
		if track != nil && track.Enabled() {
			return track, true
		}
	}
	return nil, false
}
