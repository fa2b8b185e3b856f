package interfaces

// EngineConfig selects and tunes the engines behind the estimators.
type EngineConfig struct {
	// UseSimulation selects in-memory engines instead of pion-backed ones
	UseSimulation bool
	// NetworkIntervalMs is the statistics polling period in milliseconds
	NetworkIntervalMs int
	// SpeakingIntervalMs is the audio sampling period in milliseconds
	SpeakingIntervalMs int
	// SimulationProfile names the simulated link: excellent, good, fair or poor
	SimulationProfile string
}
