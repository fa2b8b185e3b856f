// Package interfaces defines the capability contracts between the call-quality
// estimators and the engines that feed them.
//
// The estimators never talk to WebRTC or audio hardware directly. They consume
// two host capabilities:
//
//   - [AnalyserFactory]: given a [MediaStream], acquires an [Analyser] that
//     returns byte-valued frequency bins on demand.
//   - [StatsReporter]: given a peer connection, returns a [StatsReport]
//     enumerable into typed [StatsEntry] values.
//
// Production implementations live in the real package (pion/webrtc and
// pion/opus). Simulated implementations for deterministic tests live in the
// testing package. The factory package selects between them:
//
//	f := factory.NewEngineFactory()
//	reporter := f.CreateStatsReporter(pc)
//	analysers := f.CreateAnalyserFactory()
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. An [Analyser] is owned by
// a single consumer but Close may race with an in-flight ByteFrequencyData.
package interfaces
