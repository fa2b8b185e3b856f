package real

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/opd-ai/callquality/interfaces"
	"github.com/opd-ai/callquality/limits"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
)

// RTPReader is the part of *webrtc.TrackRemote read by RemoteAudioTrack.
type RTPReader interface {
	Read(b []byte) (int, interceptor.Attributes, error)
}

// PCMSink receives decoded audio.
type PCMSink interface {
	WritePCM(pcm []int16)
}

// RemoteAudioTrack decodes an inbound RTP audio track and fans the PCM out
// to attached sinks. A track that stops delivering reports itself disabled.
type RemoteAudioTrack struct {
	id      string
	reader  RTPReader
	decoder PCMDecoder

	enabled atomic.Bool
	ended   atomic.Bool

	mu       sync.RWMutex
	sinks    map[uint64]PCMSink
	nextSink uint64

	packets      atomic.Uint64
	decodeErrors atomic.Uint64
	done         chan struct{}
}

// NewRemoteAudioTrack wraps reader. The track starts enabled.
func NewRemoteAudioTrack(id string, reader RTPReader, decoder PCMDecoder) *RemoteAudioTrack {
	t := &RemoteAudioTrack{
		id:      id,
		reader:  reader,
		decoder: decoder,
		sinks:   make(map[uint64]PCMSink),
		done:    make(chan struct{}),
	}
	t.enabled.Store(true)
	return t
}

// ID implements interfaces.AudioTrack.
func (t *RemoteAudioTrack) ID() string { return t.id }

// Enabled implements interfaces.AudioTrack. An ended track is never enabled.
func (t *RemoteAudioTrack) Enabled() bool {
	return t.enabled.Load() && !t.ended.Load()
}

// SetEnabled mutes or unmutes the track locally. Muted tracks keep reading
// RTP but do not feed sinks.
func (t *RemoteAudioTrack) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

// Attach registers sink and returns a function that detaches it.
func (t *RemoteAudioTrack) Attach(sink PCMSink) (detach func()) {
	t.mu.Lock()
	id := t.nextSink
	t.nextSink++
	t.sinks[id] = sink
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.sinks, id)
			t.mu.Unlock()
		})
	}
}

// SinkCount returns the number of attached sinks.
func (t *RemoteAudioTrack) SinkCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sinks)
}

// Packets returns how many RTP packets were read.
func (t *RemoteAudioTrack) Packets() uint64 { return t.packets.Load() }

// Done is closed once Run returns.
func (t *RemoteAudioTrack) Done() <-chan struct{} { return t.done }

// Run reads the track until ctx is done or the reader fails. It marks the
// track ended on return. io.EOF is a normal end of track.
func (t *RemoteAudioTrack) Run(ctx context.Context) error {
	defer close(t.done)
	defer t.ended.Store(true)

	buf := make([]byte, limits.MaxRTPPacket)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, _, err := t.reader.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				logrus.WithFields(logrus.Fields{
					"function": "RemoteAudioTrack.Run",
					"track_id": t.id,
					"packets":  t.packets.Load(),
				}).Info("Remote audio track ended")
				return nil
			}
			return err
		}

		t.handlePacket(buf[:n])
	}
}

func (t *RemoteAudioTrack) handlePacket(raw []byte) {
	var packet rtp.Packet
	if err := packet.Unmarshal(raw); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "RemoteAudioTrack.handlePacket",
			"track_id": t.id,
			"error":    err.Error(),
		}).Debug("Dropping malformed RTP packet")
		return
	}
	t.packets.Add(1)

	if len(packet.Payload) == 0 || !t.enabled.Load() {
		return
	}

	pcm, err := t.decoder.Decode(packet.Payload)
	if err != nil {
		if t.decodeErrors.Add(1) == 1 {
			logrus.WithFields(logrus.Fields{
				"function": "RemoteAudioTrack.handlePacket",
				"track_id": t.id,
				"error":    err.Error(),
			}).Warn("Audio decode failed, further failures logged at trace level")
		} else {
			logrus.WithFields(logrus.Fields{
				"function": "RemoteAudioTrack.handlePacket",
				"track_id": t.id,
				"error":    err.Error(),
			}).Trace("Audio decode failed")
		}
		return
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, sink := range t.sinks {
		sink.WritePCM(pcm)
	}
}

// RemoteStream groups the remote audio tracks of one peer.
type RemoteStream struct {
	id string

	mu     sync.RWMutex
	tracks []*RemoteAudioTrack
}

// NewRemoteStream creates an empty stream.
func NewRemoteStream(id string) *RemoteStream {
	return &RemoteStream{id: id}
}

// ID implements interfaces.MediaStream.
func (s *RemoteStream) ID() string { return s.id }

// AddTrack appends a track to the stream.
func (s *RemoteStream) AddTrack(track *RemoteAudioTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = append(s.tracks, track)
}

// Tracks returns the concrete tracks.
func (s *RemoteStream) Tracks() []*RemoteAudioTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*RemoteAudioTrack, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// AudioTracks implements interfaces.MediaStream.
func (s *RemoteStream) AudioTracks() []interfaces.AudioTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]interfaces.AudioTrack, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}
