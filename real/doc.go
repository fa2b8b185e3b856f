// Package real provides the pion/webrtc backed engines consumed by the call
// quality estimators.
//
// # Statistics
//
// StatsReporter adapts a *webrtc.PeerConnection to interfaces.StatsReporter.
// The pion report is converted into typed entries ordered by stats ID:
//
//	reporter := real.NewStatsReporter(peerConnection)
//	estimator.Update(reporter, true)
//
// Only candidate pairs and RTP stream entries are kept. A candidate pair
// without a measured round trip reports no RTT.
//
// # Audio
//
// RemoteAudioTrack reads RTP from a *webrtc.TrackRemote, decodes Opus
// payloads with pion/opus and fans the PCM out to attached sinks:
//
//	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
//	    audio := real.NewRemoteAudioTrack(track.ID(), track, real.NewOpusDecoder())
//	    stream.AddTrack(audio)
//	    go audio.Run(ctx)
//	})
//
// AnalyserFactory attaches an FFT analyser to the first enabled track of a
// RemoteStream. Closing the analyser detaches it. A track whose reader fails
// or reaches EOF reports itself disabled, which ends speaking detection.
//
// # Thread Safety
//
// All types are safe for concurrent use. The peer connection is only read.
package real
