package factory

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/opd-ai/callquality/interfaces"
	"github.com/opd-ai/callquality/netquality"
	"github.com/opd-ai/callquality/real"
	"github.com/opd-ai/callquality/speaking"
	"github.com/opd-ai/callquality/testing"
	"github.com/sirupsen/logrus"
)

// Validation constants for configuration bounds checking.
const (
	// MinNetworkInterval is the minimum statistics polling period in milliseconds.
	MinNetworkInterval = 250
	// MaxNetworkInterval is the maximum statistics polling period in milliseconds.
	MaxNetworkInterval = 60000
	// MinSpeakingInterval is the minimum audio sampling period in milliseconds.
	MinSpeakingInterval = 10
	// MaxSpeakingInterval is the maximum audio sampling period in milliseconds.
	MaxSpeakingInterval = 1000
)

// Environment variables read by NewEngineFactory.
const (
	EnvUseSimulation     = "CALLQUALITY_USE_SIMULATION"
	EnvNetworkInterval   = "CALLQUALITY_NETWORK_INTERVAL_MS"
	EnvSpeakingInterval  = "CALLQUALITY_SPEAKING_INTERVAL_MS"
	EnvSimulationProfile = "CALLQUALITY_SIMULATION_PROFILE"
)

var (
	// ErrNilConfig is returned when updating with a nil configuration
	ErrNilConfig = errors.New("config cannot be nil")
	// ErrInvalidConfig is returned when a configuration value is out of bounds
	ErrInvalidConfig = errors.New("invalid engine configuration")
	// ErrConnectionRequired is returned when real statistics lack a peer connection
	ErrConnectionRequired = errors.New("peer connection is required for real statistics")
)

// EngineFactory creates real or simulated engines based on configuration.
// It is safe for concurrent use; all methods are protected by an internal mutex.
type EngineFactory struct {
	mu            sync.RWMutex
	defaultConfig *interfaces.EngineConfig
}

// NewEngineFactory creates a factory with default configuration and
// environment overrides applied.
func NewEngineFactory() *EngineFactory {
	config := createDefaultConfig()
	applyEnvironmentOverrides(config)
	logConfigurationInfo(config)

	return &EngineFactory{defaultConfig: config}
}

// createDefaultConfig returns the production defaults: pion engines,
// 2s statistics polling and 60ms audio sampling.
func createDefaultConfig() *interfaces.EngineConfig {
	return &interfaces.EngineConfig{
		UseSimulation:      false,
		NetworkIntervalMs:  2000,
		SpeakingIntervalMs: 60,
		SimulationProfile:  "good",
	}
}

// applyEnvironmentOverrides updates configuration from CALLQUALITY_* variables.
// Invalid values are logged and ignored.
func applyEnvironmentOverrides(config *interfaces.EngineConfig) {
	parseSimulationSetting(config)
	parseIntervalSetting(EnvNetworkInterval, MinNetworkInterval, MaxNetworkInterval, &config.NetworkIntervalMs)
	parseIntervalSetting(EnvSpeakingInterval, MinSpeakingInterval, MaxSpeakingInterval, &config.SpeakingIntervalMs)
	parseProfileSetting(config)
}

func parseSimulationSetting(config *interfaces.EngineConfig) {
	useSimStr := os.Getenv(EnvUseSimulation)
	if useSimStr == "" {
		return
	}
	useSim, err := strconv.ParseBool(useSimStr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseSimulationSetting",
			"env_var":     EnvUseSimulation,
			"value":       useSimStr,
			"error":       err.Error(),
			"using_value": config.UseSimulation,
		}).Warn("Failed to parse CALLQUALITY_USE_SIMULATION environment variable, using default")
		return
	}
	config.UseSimulation = useSim
}

// parseIntervalSetting reads a millisecond interval from envVar into target
// when it parses and lies within [min, max].
func parseIntervalSetting(envVar string, min, max int, target *int) {
	str := os.Getenv(envVar)
	if str == "" {
		return
	}
	value, err := strconv.Atoi(str)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseIntervalSetting",
			"env_var":     envVar,
			"value":       str,
			"error":       err.Error(),
			"using_value": *target,
		}).Warn("Failed to parse interval environment variable, using default")
		return
	}
	if value < min || value > max {
		logrus.WithFields(logrus.Fields{
			"function":    "parseIntervalSetting",
			"env_var":     envVar,
			"value":       value,
			"min":         min,
			"max":         max,
			"using_value": *target,
		}).Warn("Interval environment variable out of bounds, using default")
		return
	}
	*target = value
}

func parseProfileSetting(config *interfaces.EngineConfig) {
	profile := os.Getenv(EnvSimulationProfile)
	if profile == "" {
		return
	}
	if _, ok := testing.ProfileByName(profile); !ok {
		logrus.WithFields(logrus.Fields{
			"function":    "parseProfileSetting",
			"env_var":     EnvSimulationProfile,
			"value":       profile,
			"using_value": config.SimulationProfile,
		}).Warn("Unknown simulation profile, using default")
		return
	}
	config.SimulationProfile = profile
}

func logConfigurationInfo(config *interfaces.EngineConfig) {
	logrus.WithFields(logrus.Fields{
		"function":             "NewEngineFactory",
		"use_simulation":       config.UseSimulation,
		"network_interval_ms":  config.NetworkIntervalMs,
		"speaking_interval_ms": config.SpeakingIntervalMs,
		"simulation_profile":   config.SimulationProfile,
	}).Info("Created engine factory with configuration")
}

// ValidateConfig checks bounds and the simulation profile name.
func ValidateConfig(config *interfaces.EngineConfig) error {
	if config == nil {
		return ErrNilConfig
	}
	if config.NetworkIntervalMs < MinNetworkInterval || config.NetworkIntervalMs > MaxNetworkInterval {
		return fmt.Errorf("%w: network interval %dms outside [%d, %d]",
			ErrInvalidConfig, config.NetworkIntervalMs, MinNetworkInterval, MaxNetworkInterval)
	}
	if config.SpeakingIntervalMs < MinSpeakingInterval || config.SpeakingIntervalMs > MaxSpeakingInterval {
		return fmt.Errorf("%w: speaking interval %dms outside [%d, %d]",
			ErrInvalidConfig, config.SpeakingIntervalMs, MinSpeakingInterval, MaxSpeakingInterval)
	}
	if _, ok := testing.ProfileByName(config.SimulationProfile); !ok {
		return fmt.Errorf("%w: unknown simulation profile %q", ErrInvalidConfig, config.SimulationProfile)
	}
	return nil
}

// CreateAnalyserFactory returns the audio analysis engine.
func (f *EngineFactory) CreateAnalyserFactory() interfaces.AnalyserFactory {
	if f.IsUsingSimulation() {
		logrus.WithFields(logrus.Fields{
			"function": "CreateAnalyserFactory",
			"type":     "simulation",
		}).Info("Creating simulation analyser factory")
		return testing.NewSimulatedAnalyserFactory()
	}
	return real.NewAnalyserFactory()
}

// CreateStatsReporter returns the statistics engine for one connection.
// In simulation mode source is ignored.
func (f *EngineFactory) CreateStatsReporter(source real.StatsSource) (interfaces.StatsReporter, error) {
	config := f.GetCurrentConfig()

	if config.UseSimulation {
		profile, _ := testing.ProfileByName(config.SimulationProfile)
		logrus.WithFields(logrus.Fields{
			"function": "CreateStatsReporter",
			"type":     "simulation",
			"profile":  config.SimulationProfile,
		}).Info("Creating simulation stats reporter")
		return testing.NewSimulatedStatsReporter(profile), nil
	}

	if source == nil {
		return nil, ErrConnectionRequired
	}
	return real.NewStatsReporter(source), nil
}

// SpeakingConfig returns detector parameters using the configured interval.
func (f *EngineFactory) SpeakingConfig() *speaking.Config {
	cfg := speaking.DefaultConfig()
	cfg.SampleInterval = time.Duration(f.GetCurrentConfig().SpeakingIntervalMs) * time.Millisecond
	return cfg
}

// NetworkConfig returns estimator parameters using the configured interval.
func (f *EngineFactory) NetworkConfig() *netquality.Config {
	cfg := netquality.DefaultConfig()
	cfg.Interval = time.Duration(f.GetCurrentConfig().NetworkIntervalMs) * time.Millisecond
	return cfg
}

// SwitchToSimulation switches the configuration to use simulation
func (f *EngineFactory) SwitchToSimulation() {
	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "SwitchToSimulation",
		"previous": f.defaultConfig.UseSimulation,
	}).Info("Switching factory to simulation mode")

	f.defaultConfig.UseSimulation = true
}

// SwitchToReal switches the configuration to use pion-backed engines
func (f *EngineFactory) SwitchToReal() {
	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "SwitchToReal",
		"previous": f.defaultConfig.UseSimulation,
	}).Info("Switching factory to real mode")

	f.defaultConfig.UseSimulation = false
}

// GetCurrentConfig returns a copy of the current default configuration
func (f *EngineFactory) GetCurrentConfig() *interfaces.EngineConfig {
	f.mu.RLock()
	defer f.mu.RUnlock()

	config := *f.defaultConfig
	return &config
}

// IsUsingSimulation returns true if the factory is configured for simulation
func (f *EngineFactory) IsUsingSimulation() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.defaultConfig.UseSimulation
}

// UpdateConfig validates and replaces the factory's default configuration
func (f *EngineFactory) UpdateConfig(config *interfaces.EngineConfig) error {
	if err := ValidateConfig(config); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":       "UpdateConfig",
		"old_simulation": f.defaultConfig.UseSimulation,
		"new_simulation": config.UseSimulation,
		"old_interval":   f.defaultConfig.NetworkIntervalMs,
		"new_interval":   config.NetworkIntervalMs,
	}).Info("Updating factory configuration")

	copied := *config
	f.defaultConfig = &copied
	return nil
}
