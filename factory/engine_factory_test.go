package factory

import (
	"testing"
	"time"

	"github.com/opd-ai/callquality/interfaces"
	"github.com/opd-ai/callquality/real"
	simulated "github.com/opd-ai/callquality/testing"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range []string{EnvUseSimulation, EnvNetworkInterval, EnvSpeakingInterval, EnvSimulationProfile} {
		t.Setenv(v, "")
	}
}

func TestNewEngineFactoryDefaults(t *testing.T) {
	clearEnv(t)
	f := NewEngineFactory()

	config := f.GetCurrentConfig()
	assert.False(t, config.UseSimulation)
	assert.Equal(t, 2000, config.NetworkIntervalMs)
	assert.Equal(t, 60, config.SpeakingIntervalMs)
	assert.Equal(t, "good", config.SimulationProfile)
}

func TestEnvironmentVariableParsing(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		expect interfaces.EngineConfig
	}{
		{
			name: "valid overrides",
			env: map[string]string{
				EnvUseSimulation:     "true",
				EnvNetworkInterval:   "1000",
				EnvSpeakingInterval:  "30",
				EnvSimulationProfile: "poor",
			},
			expect: interfaces.EngineConfig{UseSimulation: true, NetworkIntervalMs: 1000, SpeakingIntervalMs: 30, SimulationProfile: "poor"},
		},
		{
			name: "unparseable values keep defaults",
			env: map[string]string{
				EnvUseSimulation:    "maybe",
				EnvNetworkInterval:  "fast",
				EnvSpeakingInterval: "1e3",
			},
			expect: interfaces.EngineConfig{NetworkIntervalMs: 2000, SpeakingIntervalMs: 60, SimulationProfile: "good"},
		},
		{
			name: "out of bounds keep defaults",
			env: map[string]string{
				EnvNetworkInterval:   "100",
				EnvSpeakingInterval:  "5000",
				EnvSimulationProfile: "awful",
			},
			expect: interfaces.EngineConfig{NetworkIntervalMs: 2000, SpeakingIntervalMs: 60, SimulationProfile: "good"},
		},
		{
			name: "bounds are inclusive",
			env: map[string]string{
				EnvNetworkInterval:  "250",
				EnvSpeakingInterval: "1000",
			},
			expect: interfaces.EngineConfig{NetworkIntervalMs: 250, SpeakingIntervalMs: 1000, SimulationProfile: "good"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			assert.Equal(t, tt.expect, *NewEngineFactory().GetCurrentConfig())
		})
	}
}

func TestCreateEngines(t *testing.T) {
	clearEnv(t)
	f := NewEngineFactory()

	assert.IsType(t, &real.AnalyserFactory{}, f.CreateAnalyserFactory())

	_, err := f.CreateStatsReporter(nil)
	assert.ErrorIs(t, err, ErrConnectionRequired)

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer pc.Close()
	reporter, err := f.CreateStatsReporter(pc)
	require.NoError(t, err)
	assert.IsType(t, &real.StatsReporter{}, reporter)

	f.SwitchToSimulation()
	assert.True(t, f.IsUsingSimulation())
	assert.IsType(t, &simulated.SimulatedAnalyserFactory{}, f.CreateAnalyserFactory())
	reporter, err = f.CreateStatsReporter(nil)
	require.NoError(t, err)
	assert.IsType(t, &simulated.SimulatedStatsReporter{}, reporter)

	f.SwitchToReal()
	assert.False(t, f.IsUsingSimulation())
}

func TestEstimatorConfigs(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvNetworkInterval, "500")
	t.Setenv(EnvSpeakingInterval, "20")
	f := NewEngineFactory()

	assert.Equal(t, 500*time.Millisecond, f.NetworkConfig().Interval)
	assert.Equal(t, 20*time.Millisecond, f.SpeakingConfig().SampleInterval)
	assert.Equal(t, 0.08, f.SpeakingConfig().Threshold)
}

func TestUpdateConfig(t *testing.T) {
	clearEnv(t)
	f := NewEngineFactory()

	assert.ErrorIs(t, f.UpdateConfig(nil), ErrNilConfig)
	assert.ErrorIs(t, f.UpdateConfig(&interfaces.EngineConfig{NetworkIntervalMs: 10, SpeakingIntervalMs: 60, SimulationProfile: "good"}), ErrInvalidConfig)
	assert.ErrorIs(t, f.UpdateConfig(&interfaces.EngineConfig{NetworkIntervalMs: 2000, SpeakingIntervalMs: 0, SimulationProfile: "good"}), ErrInvalidConfig)
	assert.ErrorIs(t, f.UpdateConfig(&interfaces.EngineConfig{NetworkIntervalMs: 2000, SpeakingIntervalMs: 60, SimulationProfile: "x"}), ErrInvalidConfig)

	update := &interfaces.EngineConfig{UseSimulation: true, NetworkIntervalMs: 3000, SpeakingIntervalMs: 50, SimulationProfile: "fair"}
	require.NoError(t, f.UpdateConfig(update))

	update.NetworkIntervalMs = 9999
	got := f.GetCurrentConfig()
	assert.Equal(t, 3000, got.NetworkIntervalMs, "config is copied")
	got.SpeakingIntervalMs = 1
	assert.Equal(t, 50, f.GetCurrentConfig().SpeakingIntervalMs)
}
