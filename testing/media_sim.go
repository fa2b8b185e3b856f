package testing

import (
	"sync"
	"sync/atomic"

	"github.com/opd-ai/callquality/interfaces"
	"github.com/sirupsen/logrus"
)

// UniformFrame returns a frequency frame of bins values all equal to value.
func UniformFrame(bins int, value byte) []byte {
	frame := make([]byte, bins)
	for i := range frame {
		frame[i] = value
	}
	return frame
}

// SimulatedTrack is an audio track whose enabled flag tests can flip.
type SimulatedTrack struct {
	id      string
	enabled atomic.Bool
}

// NewSimulatedTrack creates a track.
func NewSimulatedTrack(id string, enabled bool) *SimulatedTrack {
	t := &SimulatedTrack{id: id}
	t.enabled.Store(enabled)
	return t
}

// ID implements interfaces.AudioTrack.
func (t *SimulatedTrack) ID() string { return t.id }

// Enabled implements interfaces.AudioTrack.
func (t *SimulatedTrack) Enabled() bool { return t.enabled.Load() }

// SetEnabled toggles the track.
func (t *SimulatedTrack) SetEnabled(enabled bool) { t.enabled.Store(enabled) }

// SimulatedStream is an in-memory media stream.
type SimulatedStream struct {
	id string

	mu     sync.RWMutex
	tracks []*SimulatedTrack
}

// NewSimulatedStream creates a stream carrying tracks.
func NewSimulatedStream(id string, tracks ...*SimulatedTrack) *SimulatedStream {
	return &SimulatedStream{id: id, tracks: tracks}
}

// ID implements interfaces.MediaStream.
func (s *SimulatedStream) ID() string { return s.id }

// AudioTracks implements interfaces.MediaStream.
func (s *SimulatedStream) AudioTracks() []interfaces.AudioTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]interfaces.AudioTrack, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

// RemoveTracks detaches every track from the stream.
func (s *SimulatedStream) RemoveTracks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = nil
}

// SimulatedAnalyserFactory hands out analysers that replay scripted
// frequency frames. It records acquisitions and releases for verification.
type SimulatedAnalyserFactory struct {
	mu sync.Mutex

	frame  []byte   // returned once the script is exhausted
	script [][]byte // consumed one frame per sample

	acquireErr error
	releaseErr error

	acquired int
	released int
	samples  int
	lastOpts interfaces.AnalyserOptions
}

// NewSimulatedAnalyserFactory creates a factory whose analysers report silence.
func NewSimulatedAnalyserFactory() *SimulatedAnalyserFactory {
	logrus.WithFields(logrus.Fields{
		"function": "NewSimulatedAnalyserFactory",
	}).Warn("SIMULATION FUNCTION - NOT A REAL OPERATION")

	return &SimulatedAnalyserFactory{}
}

// SetFrame sets the frame returned when no scripted frames remain.
func (f *SimulatedAnalyserFactory) SetFrame(frame []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frame = append([]byte(nil), frame...)
}

// Script queues frames returned, in order, by the next samples.
func (f *SimulatedAnalyserFactory) Script(frames ...[]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, frame := range frames {
		f.script = append(f.script, append([]byte(nil), frame...))
	}
}

// FailAcquire makes NewAnalyser return err (nil restores success).
func (f *SimulatedAnalyserFactory) FailAcquire(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquireErr = err
}

// FailRelease makes Close on analysers return err.
func (f *SimulatedAnalyserFactory) FailRelease(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseErr = err
}

// Acquired returns how many analysers were handed out.
func (f *SimulatedAnalyserFactory) Acquired() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquired
}

// Released returns how many analysers were closed.
func (f *SimulatedAnalyserFactory) Released() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

// Samples returns how many frames were read across all analysers.
func (f *SimulatedAnalyserFactory) Samples() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.samples
}

// LastOptions returns the options of the most recent acquisition.
func (f *SimulatedAnalyserFactory) LastOptions() interfaces.AnalyserOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastOpts
}

// NewAnalyser implements interfaces.AnalyserFactory.
func (f *SimulatedAnalyserFactory) NewAnalyser(stream interfaces.MediaStream, opts interfaces.AnalyserOptions) (interfaces.Analyser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	if _, ok := interfaces.FirstEnabledAudioTrack(stream); !ok {
		return nil, interfaces.ErrNoAudioTrack
	}

	f.acquired++
	f.lastOpts = opts

	logrus.WithFields(logrus.Fields{
		"function":  "SimulatedAnalyserFactory.NewAnalyser",
		"stream_id": stream.ID(),
		"fft_size":  opts.FFTSize,
		"acquired":  f.acquired,
	}).Debug("Simulated analyser acquired")

	return &simulatedAnalyser{factory: f, bins: opts.FFTSize / 2}, nil
}

func (f *SimulatedAnalyserFactory) next(bins int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.samples++
	if len(f.script) > 0 {
		frame := f.script[0]
		f.script = f.script[1:]
		return frame
	}
	if f.frame != nil {
		return append([]byte(nil), f.frame...)
	}
	return make([]byte, bins)
}

func (f *SimulatedAnalyserFactory) release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
	return f.releaseErr
}

type simulatedAnalyser struct {
	factory *SimulatedAnalyserFactory
	bins    int
	closed  atomic.Bool
}

func (a *simulatedAnalyser) FrequencyBinCount() int { return a.bins }

func (a *simulatedAnalyser) ByteFrequencyData() []byte {
	if a.closed.Load() {
		return make([]byte, a.bins)
	}
	return a.factory.next(a.bins)
}

func (a *simulatedAnalyser) Close() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	return a.factory.release()
}
