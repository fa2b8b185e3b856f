// Package analyser implements a frequency-domain audio analyser with the
// output semantics of the Web Audio AnalyserNode.
//
// PCM written to an Analyser fills a rolling window of the most recent
// FFTSize samples. Reading frequency data applies a Blackman window, runs a
// real FFT, smooths magnitudes over time and maps them to decibels or to
// byte values between the configured decibel bounds.
package analyser

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/opd-ai/callquality/interfaces"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Web Audio defaults.
const (
	DefaultFFTSize               = 2048
	DefaultSmoothingTimeConstant = 0.8
	DefaultMinDecibels           = -100.0
	DefaultMaxDecibels           = -30.0
)

// ErrInvalidDecibelRange indicates min >= max decibels.
var ErrInvalidDecibelRange = errors.New("min decibels must be below max decibels")

// Blackman window coefficients (alpha = 0.16).
const (
	blackmanA0 = 0.42
	blackmanA1 = 0.5
	blackmanA2 = 0.08
)

// Analyser computes frequency data over the most recent FFTSize samples.
// It is safe for concurrent use.
type Analyser struct {
	mu sync.Mutex

	fftSize     int
	smoothing   float64
	minDecibels float64
	maxDecibels float64

	// ring buffer of the most recent samples in [-1, 1]
	samples  []float64
	writePos int

	window   []float64
	fft      *fourier.FFT
	frame    []float64
	coeffs   []complex128
	smoothed []float64

	closed  bool
	onClose func() error
}

// New creates an analyser with the given FFT size and smoothing constant.
func New(opts interfaces.AnalyserOptions) (*Analyser, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	n := opts.FFTSize
	window := make([]float64, n)
	for i := range window {
		x := float64(i) / float64(n)
		window[i] = blackmanA0 - blackmanA1*math.Cos(2*math.Pi*x) + blackmanA2*math.Cos(4*math.Pi*x)
	}

	a := &Analyser{
		fftSize:     n,
		smoothing:   opts.SmoothingTimeConstant,
		minDecibels: DefaultMinDecibels,
		maxDecibels: DefaultMaxDecibels,
		samples:     make([]float64, n),
		window:      window,
		fft:         fourier.NewFFT(n),
		frame:       make([]float64, n),
		coeffs:      make([]complex128, n/2+1),
		smoothed:    make([]float64, n/2),
	}

	logrus.WithFields(logrus.Fields{
		"function":  "analyser.New",
		"fft_size":  n,
		"smoothing": opts.SmoothingTimeConstant,
	}).Debug("Analyser created")

	return a, nil
}

// SetDecibelRange sets the range mapped onto byte values 0..255.
func (a *Analyser) SetDecibelRange(minDecibels, maxDecibels float64) error {
	if minDecibels >= maxDecibels {
		return fmt.Errorf("%w: [%v, %v]", ErrInvalidDecibelRange, minDecibels, maxDecibels)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.minDecibels = minDecibels
	a.maxDecibels = maxDecibels
	return nil
}

// SetOnClose registers a release hook run once by Close, typically to
// disconnect the analyser from its source.
func (a *Analyser) SetOnClose(fn func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onClose = fn
}

// FFTSize returns the transform window length.
func (a *Analyser) FFTSize() int {
	return a.fftSize
}

// FrequencyBinCount returns FFTSize / 2.
func (a *Analyser) FrequencyBinCount() int {
	return a.fftSize / 2
}

// WritePCM appends signed 16-bit samples.
func (a *Analyser) WritePCM(pcm []int16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	for _, s := range pcm {
		a.pushLocked(float64(s) / 32768.0)
	}
}

// WriteFloat appends samples in [-1, 1].
func (a *Analyser) WriteFloat(samples []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	for _, s := range samples {
		a.pushLocked(s)
	}
}

func (a *Analyser) pushLocked(s float64) {
	a.samples[a.writePos] = s
	a.writePos = (a.writePos + 1) % a.fftSize
}

// FloatFrequencyData returns the smoothed magnitude of every bin in dB.
// Silent bins are -Inf.
func (a *Analyser) FloatFrequencyData() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]float64, a.fftSize/2)
	if a.closed {
		for i := range out {
			out[i] = math.Inf(-1)
		}
		return out
	}

	a.analyseLocked()
	for i, m := range a.smoothed {
		out[i] = 20 * math.Log10(m)
	}
	return out
}

// ByteFrequencyData returns the smoothed magnitude of every bin scaled
// linearly from [minDecibels, maxDecibels] onto [0, 255].
func (a *Analyser) ByteFrequencyData() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]byte, a.fftSize/2)
	if a.closed {
		return out
	}

	a.analyseLocked()
	scale := 255.0 / (a.maxDecibels - a.minDecibels)
	for i, m := range a.smoothed {
		db := 20 * math.Log10(m)
		v := math.Floor(scale * (db - a.minDecibels))
		switch {
		case math.IsNaN(v) || v < 0:
			out[i] = 0
		case v > 255:
			out[i] = 255
		default:
			out[i] = byte(v)
		}
	}
	return out
}

// analyseLocked windows the current frame, transforms it and folds the
// magnitudes into the smoothed spectrum.
func (a *Analyser) analyseLocked() {
	for i := 0; i < a.fftSize; i++ {
		a.frame[i] = a.samples[(a.writePos+i)%a.fftSize] * a.window[i]
	}

	a.coeffs = a.fft.Coefficients(a.coeffs, a.frame)

	n := float64(a.fftSize)
	tau := a.smoothing
	for k := range a.smoothed {
		re, im := real(a.coeffs[k]), imag(a.coeffs[k])
		mag := math.Sqrt(re*re+im*im) / n
		a.smoothed[k] = tau*a.smoothed[k] + (1-tau)*mag
	}
}

// Close releases the analyser. Later reads return silence. Close is
// idempotent; the release hook runs only on the first call.
func (a *Analyser) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	hook := a.onClose
	a.onClose = nil
	a.mu.Unlock()

	if hook != nil {
		if err := hook(); err != nil {
			return fmt.Errorf("release analyser source: %w", err)
		}
	}
	return nil
}
