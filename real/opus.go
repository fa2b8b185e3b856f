package real

import (
	"errors"
	"fmt"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// ErrEmptyPayload is returned when decoding an empty RTP payload.
var ErrEmptyPayload = errors.New("empty audio payload")

// opusFrameSamples is the decoder output for one 20ms frame at 48kHz.
const opusFrameSamples = 960

// PCMDecoder turns one RTP payload into mono PCM samples.
type PCMDecoder interface {
	Decode(payload []byte) ([]int16, error)
}

// OpusDecoder decodes Opus payloads with pion/opus.
type OpusDecoder struct {
	decoder opus.Decoder
	output  []byte
}

// NewOpusDecoder creates a decoder with room for one stereo 20ms frame.
func NewOpusDecoder() *OpusDecoder {
	return &OpusDecoder{
		decoder: opus.NewDecoder(),
		output:  make([]byte, opusFrameSamples*2*2),
	}
}

// Decode implements PCMDecoder. Stereo output keeps the left channel.
func (d *OpusDecoder) Decode(payload []byte) ([]int16, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}

	bandwidth, isStereo, err := d.decoder.Decode(payload, d.output)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}

	// one 20ms frame at the decoded bandwidth
	samples := bandwidth.SampleRate() / 50
	stride := 2
	if isStereo {
		stride = 4
	}
	if samples <= 0 || samples*stride > len(d.output) {
		samples = len(d.output) / stride
	}

	pcm := make([]int16, samples)
	for i := range pcm {
		j := i * stride
		pcm[i] = int16(d.output[j]) | int16(d.output[j+1])<<8
	}

	logrus.WithFields(logrus.Fields{
		"function":    "OpusDecoder.Decode",
		"bandwidth":   bandwidth.String(),
		"is_stereo":   isStereo,
		"pcm_samples": len(pcm),
	}).Trace("Opus payload decoded")

	return pcm, nil
}
