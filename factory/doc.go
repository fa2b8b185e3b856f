// Package factory creates the engines behind the call quality estimators.
//
// The factory abstracts the choice between pion-backed engines (real package)
// and in-memory simulations (testing package), so the call monitor and the
// server never depend on a concrete implementation.
//
// # Configuration
//
// The factory supports configuration via environment variables:
//   - CALLQUALITY_USE_SIMULATION: "true" or "false" to enable simulation mode
//   - CALLQUALITY_NETWORK_INTERVAL_MS: statistics polling period (250-60000)
//   - CALLQUALITY_SPEAKING_INTERVAL_MS: audio sampling period (10-1000)
//   - CALLQUALITY_SIMULATION_PROFILE: excellent, good, fair or poor
//
// Invalid values are logged and the defaults kept. The config package binds
// the same variables, so the callmonitor service honours them as well.
//
// # Usage
//
//	factory := factory.NewEngineFactory()
//
//	detector := speaking.NewDetector(factory.CreateAnalyserFactory(), factory.SpeakingConfig())
//	estimator := netquality.NewEstimator(factory.NetworkConfig())
//
//	reporter, err := factory.CreateStatsReporter(peerConnection)
//	if err != nil {
//	    return err
//	}
//	estimator.Update(reporter, true)
//
// # Mode Switching
//
//	factory.SwitchToSimulation()
//	factory.SwitchToReal()
package factory
