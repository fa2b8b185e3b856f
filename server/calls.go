package server

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/opd-ai/callquality"
	"github.com/opd-ai/callquality/interfaces"
	"github.com/opd-ai/callquality/limits"
	"github.com/opd-ai/callquality/real"
	"github.com/opd-ai/callquality/testing"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

// simulatedSpeechLevel is the uniform bin value of simulated calls, a level
// of 0.2 that counts as speaking.
const simulatedSpeechLevel = 20

type call struct {
	id      string
	monitor *callquality.CallMonitor
	pc      *webrtc.PeerConnection // nil for simulated calls
	cancel  context.CancelFunc
}

// CreateCall answers offer and starts monitoring the resulting connection.
// It returns the call ID and the local description after ICE gathering.
func (s *Server) CreateCall(ctx context.Context, offer webrtc.SessionDescription) (string, *webrtc.SessionDescription, error) {
	if offer.SDP == "" {
		return "", nil, ErrOfferMissing
	}
	if err := limits.ValidateOffer(offer.SDP); err != nil {
		return "", nil, err
	}

	pc, err := s.api.NewPeerConnection(webrtc.Configuration{ICEServers: s.iceServers})
	if err != nil {
		return "", nil, fmt.Errorf("create peer connection: %w", err)
	}

	id := uuid.NewString()
	stream := real.NewRemoteStream(id)

	reporter, err := s.engines.CreateStatsReporter(pc)
	if err != nil {
		_ = pc.Close()
		return "", nil, err
	}

	trackCtx, cancel := context.WithCancel(context.Background())
	c := &call{id: id, monitor: s.newMonitor(id), pc: pc, cancel: cancel}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.attachTrack(trackCtx, c, stream, track)
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logrus.WithFields(logrus.Fields{
			"function": "CreateCall",
			"call_id":  id,
			"state":    state.String(),
		}).Info("Peer connection state changed")

		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			_ = s.EndCall(id)
		}
	})

	answer, err := negotiate(ctx, pc, offer)
	if err != nil {
		cancel()
		_ = pc.Close()
		return "", nil, err
	}

	if err := s.register(c); err != nil {
		cancel()
		_ = pc.Close()
		return "", nil, err
	}
	c.monitor.Start(stream, reporter)

	return id, answer, nil
}

func negotiate(ctx context.Context, pc *webrtc.PeerConnection, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := pc.SetRemoteDescription(offer); err != nil {
		return nil, fmt.Errorf("set remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return nil, fmt.Errorf("ice gathering: %w", ctx.Err())
	}
	return pc.LocalDescription(), nil
}

// attachTrack decodes an inbound Opus track into the call's stream and
// re-arms the speaking detector.
func (s *Server) attachTrack(ctx context.Context, c *call, stream *real.RemoteStream, track *webrtc.TrackRemote) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "attachTrack",
		"call_id":  c.id,
		"track_id": track.ID(),
		"codec":    track.Codec().MimeType,
	})

	if track.Kind() != webrtc.RTPCodecTypeAudio {
		logger.Debug("Ignoring non-audio track")
		return
	}
	if !strings.EqualFold(track.Codec().MimeType, webrtc.MimeTypeOpus) {
		logger.Warn("Unsupported audio codec, track not analysed")
		return
	}

	remote := real.NewRemoteAudioTrack(track.ID(), track, real.NewOpusDecoder())
	stream.AddTrack(remote)
	go func() {
		if err := remote.Run(ctx); err != nil {
			logger.WithField("error", err.Error()).Debug("Remote track reader stopped")
		}
	}()

	c.monitor.SetStream(stream)
	logger.Info("Audio track attached")
}

// CreateSimulatedCall starts a call backed entirely by simulated engines.
// It requires the engine factory to be in simulation mode.
func (s *Server) CreateSimulatedCall() (string, error) {
	if !s.engines.IsUsingSimulation() {
		return "", ErrOfferMissing
	}

	id := uuid.NewString()
	reporter, err := s.engines.CreateStatsReporter(nil)
	if err != nil {
		return "", err
	}
	stream := testing.NewSimulatedStream(id, testing.NewSimulatedTrack(id+"-audio", true))

	c := &call{id: id, monitor: s.newMonitor(id), cancel: func() {}}
	if err := s.register(c); err != nil {
		return "", err
	}
	c.monitor.Start(stream, reporter)

	logrus.WithFields(logrus.Fields{
		"function": "CreateSimulatedCall",
		"call_id":  id,
	}).Info("Simulated call started")
	return id, nil
}

func (s *Server) newMonitor(id string) *callquality.CallMonitor {
	analysers := s.engines.CreateAnalyserFactory()
	if sim, ok := analysers.(*testing.SimulatedAnalyserFactory); ok {
		speech := s.cfg.SpeakingDetector()
		sim.SetFrame(testing.UniformFrame(speech.FFTSize/2, simulatedSpeechLevel))
	}

	monitor := callquality.NewCallMonitor(id, analysers, &callquality.Options{
		Speaking:   s.cfg.SpeakingDetector(),
		Network:    s.cfg.NetworkEstimator(),
		Aggregator: s.aggregator,
	})
	monitor.OnUpdate(s.hub.PublishSnapshot)
	return monitor
}

func (s *Server) register(c *call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.calls[c.id] = c
	return nil
}

// EndCall stops monitoring and closes the peer connection. Ending an
// unknown call returns ErrCallNotFound.
func (s *Server) EndCall(id string) error {
	s.mu.Lock()
	c, ok := s.calls[id]
	delete(s.calls, id)
	s.mu.Unlock()

	if !ok {
		return ErrCallNotFound
	}

	c.monitor.Stop()
	c.cancel()
	if c.pc != nil {
		if err := c.pc.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "EndCall",
				"call_id":  id,
				"error":    err.Error(),
			}).Warn("Failed to close peer connection")
		}
	}
	s.hub.PublishCallClosed(id)

	logrus.WithFields(logrus.Fields{
		"function": "EndCall",
		"call_id":  id,
	}).Info("Call ended")
	return nil
}

// Snapshot returns the current state of one call.
func (s *Server) Snapshot(id string) (callquality.Snapshot, error) {
	s.mu.RLock()
	c, ok := s.calls[id]
	s.mu.RUnlock()
	if !ok {
		return callquality.Snapshot{}, ErrCallNotFound
	}
	return c.monitor.Snapshot(), nil
}

// Snapshots returns the state of every call ordered by call ID.
func (s *Server) Snapshots() []callquality.Snapshot {
	s.mu.RLock()
	monitors := make([]*callquality.CallMonitor, 0, len(s.calls))
	for _, c := range s.calls {
		monitors = append(monitors, c.monitor)
	}
	s.mu.RUnlock()

	out := make([]callquality.Snapshot, 0, len(monitors))
	for _, m := range monitors {
		out = append(out, m.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CallID < out[j].CallID })
	return out
}

var (
	_ real.StatsSource       = (*webrtc.PeerConnection)(nil)
	_ interfaces.MediaStream = (*real.RemoteStream)(nil)
)
