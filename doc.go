// Package callquality estimates speaking activity and network quality for
// live video consultations.
//
// Two independent estimators run per active call:
//
//   - speaking.Detector samples the frequency-domain energy of an audio track
//     every 60ms and reports a normalised level plus a debounced speaking flag.
//   - netquality.Estimator polls the peer connection's statistics every 2s and
//     grades the link as excellent, good, fair or poor from RTT and
//     incremental packet loss.
//
// # Getting Started
//
// A CallMonitor binds both estimators to one call:
//
//	engines := factory.NewEngineFactory()
//
//	monitor := callquality.NewCallMonitor(callID, engines.CreateAnalyserFactory(), &callquality.Options{
//	    Speaking: engines.SpeakingConfig(),
//	    Network:  engines.NetworkConfig(),
//	})
//	monitor.OnUpdate(func(s callquality.Snapshot) {
//	    fmt.Printf("%s speaking=%v quality=%s\n", s.CallID, s.Speaking.IsSpeaking, s.Network.Quality)
//	})
//
//	reporter, _ := engines.CreateStatsReporter(peerConnection)
//	monitor.Start(remoteStream, reporter)
//	defer monitor.Stop()
//
// # Core Types
//
//   - [CallMonitor]: lifecycle of both estimators for one call
//   - [Snapshot]: combined speaking and network state
//   - [Options]: estimator configuration, aggregator and clock injection
//
// # Service
//
// cmd/callmonitor runs the server package, which answers WebRTC offers with
// pion, attaches a CallMonitor to every call and streams snapshots over the
// feed package's WebSocket hub. Configuration is loaded by the config
// package from callmonitor.yaml and CALLQUALITY_* environment variables.
//
// # Failure Model
//
// Estimators never return errors to the caller. Missing inputs reset them to
// their defaults, transient statistics failures skip a tick, and release
// failures during teardown are logged and ignored. Callers should treat an
// "unknown" quality as "do not show a confident indicator".
//
// # Testing
//
// The testing package provides simulated analysers, streams and statistics
// reporters together with an observable fake clock, so both estimators can be
// driven deterministically:
//
//	clk := simulated.NewObservedClock(time.Now())
//	monitor := callquality.NewCallMonitor("c1", analysers, &callquality.Options{Clock: clk})
package callquality
