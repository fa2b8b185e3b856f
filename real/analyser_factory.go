package real

import (
	"errors"
	"fmt"

	"github.com/opd-ai/callquality/analyser"
	"github.com/opd-ai/callquality/interfaces"
	"github.com/sirupsen/logrus"
)

// ErrUnsupportedTrack is returned for audio tracks that cannot feed PCM.
var ErrUnsupportedTrack = errors.New("audio track does not provide PCM")

// PCMSource is an audio track that can feed decoded audio to a sink.
type PCMSource interface {
	Attach(sink PCMSink) (detach func())
}

// AnalyserFactory builds FFT analysers fed by the first enabled track of a
// stream. Closing an analyser detaches it from the track.
type AnalyserFactory struct{}

// NewAnalyserFactory creates a factory.
func NewAnalyserFactory() *AnalyserFactory {
	return &AnalyserFactory{}
}

// NewAnalyser implements interfaces.AnalyserFactory.
func (f *AnalyserFactory) NewAnalyser(stream interfaces.MediaStream, opts interfaces.AnalyserOptions) (interfaces.Analyser, error) {
	track, ok := interfaces.FirstEnabledAudioTrack(stream)
	if !ok {
		return nil, interfaces.ErrNoAudioTrack
	}

	source, ok := track.(PCMSource)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTrack, track.ID())
	}

	an, err := analyser.New(opts)
	if err != nil {
		return nil, err
	}

	detach := source.Attach(an)
	an.SetOnClose(func() error {
		detach()
		return nil
	})

	logrus.WithFields(logrus.Fields{
		"function":  "AnalyserFactory.NewAnalyser",
		"stream_id": stream.ID(),
		"track_id":  track.ID(),
		"fft_size":  an.FFTSize(),
	}).Debug("Analyser attached to remote audio track")

	return an, nil
}
