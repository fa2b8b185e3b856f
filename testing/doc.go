// Package testing provides simulated media and statistics engines for
// deterministic testing of the call quality estimators.
//
// # Overview
//
// The estimators only consume capability interfaces: an AnalyserFactory that
// turns a media stream into frequency frames, and a StatsReporter that
// returns a peer connection's statistics report. This package implements both
// entirely in memory so tests and the simulate command can drive the
// estimators without a browser, a microphone or a network.
//
// # Simulation vs Real Implementation
//
//   - Simulation (this package): frequency frames and statistics reports are
//     scripted or generated from a NetworkProfile. Every acquisition, release
//     and report is recorded for verification.
//
//   - Real (real package): statistics come from a pion/webrtc peer connection
//     and frequency frames from Opus audio decoded off remote RTP tracks.
//
// Both implementations conform to the interfaces package contracts, so the
// factory package can switch between them.
//
// # Usage
//
// Drive the speaking detector with a scripted stream:
//
//	factory := testing.NewSimulatedAnalyserFactory()
//	factory.SetFrame(testing.UniformFrame(128, 50))
//
//	track := testing.NewSimulatedTrack("mic", true)
//	stream := testing.NewSimulatedStream("local", track)
//
//	detector := speaking.NewDetector(factory, nil)
//	detector.Update(stream, true)
//
// Drive the network estimator with a profile:
//
//	reporter := testing.NewSimulatedStatsReporter(testing.ProfileFair)
//	estimator := netquality.NewEstimator(nil)
//	estimator.Update(reporter, true)
//
// Scripted reports take priority over generated ones:
//
//	reporter.Enqueue(interfaces.StatsReport{
//	    testing.CandidatePair("CP1", interfaces.CandidatePairStateSucceeded, 0.1),
//	})
//
// # Thread Safety
//
// All simulated engines are safe for concurrent use.
//
// # Package Name
//
// The package is named "testing" to keep simulation code apart from
// production code. Import it with an alias when the standard testing package
// is also needed:
//
//	import simulated "github.com/opd-ai/callquality/testing"
package testing
