// Package config loads the callmonitor service configuration from a YAML
// file, CALLQUALITY_* environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/opd-ai/callquality/factory"
	"github.com/opd-ai/callquality/interfaces"
	"github.com/opd-ai/callquality/netquality"
	"github.com/opd-ai/callquality/speaking"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// CALLQUALITY_SERVER_ADDR.
const EnvPrefix = "CALLQUALITY"

// ErrInvalid is returned when the loaded configuration fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete service configuration.
type Config struct {
	LogLevel string         `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	Server   ServerConfig   `mapstructure:"server"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Speaking SpeakingConfig `mapstructure:"speaking"`
	Network  NetworkConfig  `mapstructure:"network"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig configures the HTTP listener and the snapshot feed.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr" validate:"required,hostname_port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	FeedBuffer     int      `mapstructure:"feed_buffer" validate:"gte=0"`
	ICEServers     []string `mapstructure:"ice_servers" validate:"dive,required"`
}

// EngineConfig selects real or simulated engines.
type EngineConfig struct {
	UseSimulation     bool   `mapstructure:"use_simulation"`
	SimulationProfile string `mapstructure:"simulation_profile" validate:"oneof=excellent good fair poor"`
}

// SpeakingConfig tunes the speaking detector.
type SpeakingConfig struct {
	IntervalMs int     `mapstructure:"interval_ms" validate:"min=10,max=1000"`
	FFTSize    int     `mapstructure:"fft_size" validate:"min=32,max=32768"`
	Smoothing  float64 `mapstructure:"smoothing" validate:"gt=0,lt=1"`
	Threshold  float64 `mapstructure:"threshold" validate:"gt=0,lt=1"`
	DecayMs    int     `mapstructure:"decay_ms" validate:"min=1"`
}

// NetworkConfig tunes the network quality estimator.
type NetworkConfig struct {
	IntervalMs              int        `mapstructure:"interval_ms" validate:"min=250,max=60000"`
	DegradeOnLossWithoutRTT bool       `mapstructure:"degrade_on_loss_without_rtt"`
	Thresholds              Thresholds `mapstructure:"thresholds"`
}

// Thresholds mirrors netquality.Thresholds for configuration files.
type Thresholds struct {
	PoorRTT  float64 `mapstructure:"poor_rtt" validate:"gt=0"`
	FairRTT  float64 `mapstructure:"fair_rtt" validate:"gt=0"`
	GoodRTT  float64 `mapstructure:"good_rtt" validate:"gt=0"`
	PoorLoss float64 `mapstructure:"poor_loss" validate:"gt=0,lte=100"`
	FairLoss float64 `mapstructure:"fair_loss" validate:"gt=0,lte=100"`
	GoodLoss float64 `mapstructure:"good_loss" validate:"gte=0,lte=100"`
}

// MetricsConfig configures the aggregator.
type MetricsConfig struct {
	ReportIntervalMs int `mapstructure:"report_interval_ms" validate:"min=100"`
	HistorySize      int `mapstructure:"history_size" validate:"min=1,max=10000"`
}

// setDefaults registers every key so that environment overrides apply to
// keys missing from the file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.feed_buffer", 32)
	v.SetDefault("server.ice_servers", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("engine.use_simulation", false)
	v.SetDefault("engine.simulation_profile", "good")

	sd := speaking.DefaultConfig()
	v.SetDefault("speaking.interval_ms", sd.SampleInterval.Milliseconds())
	v.SetDefault("speaking.fft_size", sd.FFTSize)
	v.SetDefault("speaking.smoothing", sd.SmoothingTimeConstant)
	v.SetDefault("speaking.threshold", sd.Threshold)
	v.SetDefault("speaking.decay_ms", sd.DecayWindow.Milliseconds())

	nd := netquality.DefaultConfig()
	v.SetDefault("network.interval_ms", nd.Interval.Milliseconds())
	v.SetDefault("network.degrade_on_loss_without_rtt", nd.DegradeOnLossWithoutRTT)
	v.SetDefault("network.thresholds.poor_rtt", nd.Thresholds.PoorRTT)
	v.SetDefault("network.thresholds.fair_rtt", nd.Thresholds.FairRTT)
	v.SetDefault("network.thresholds.good_rtt", nd.Thresholds.GoodRTT)
	v.SetDefault("network.thresholds.poor_loss", nd.Thresholds.PoorLoss)
	v.SetDefault("network.thresholds.fair_loss", nd.Thresholds.FairLoss)
	v.SetDefault("network.thresholds.good_loss", nd.Thresholds.GoodLoss)

	v.SetDefault("metrics.report_interval_ms", 5000)
	v.SetDefault("metrics.history_size", 30)
}

// New returns a viper instance with defaults, environment binding and the
// config search path set up. An explicit file overrides the search path.
func New(file string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The engine factory's variables name engine keys without the section,
	// so both spellings are bound. The interval variables already match
	// speaking.interval_ms and network.interval_ms.
	_ = v.BindEnv("engine.use_simulation", EnvPrefix+"_ENGINE_USE_SIMULATION", factory.EnvUseSimulation)
	_ = v.BindEnv("engine.simulation_profile", EnvPrefix+"_ENGINE_SIMULATION_PROFILE", factory.EnvSimulationProfile)

	if file != "" {
		v.SetConfigFile(file)
		return v
	}
	v.SetConfigName("callmonitor")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.callmonitor")
	v.AddConfigPath("/etc/callmonitor")
	return v
}

// Load reads, unmarshals and validates the configuration. A missing file on
// the search path is not an error; a missing explicit file is.
func Load(file string) (*Config, error) {
	v := New(file)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		logrus.WithFields(logrus.Fields{
			"function": "Load",
		}).Debug("No config file found, using defaults and environment")
	} else {
		logrus.WithFields(logrus.Fields{
			"function": "Load",
			"file":     v.ConfigFileUsed(),
		}).Info("Loaded configuration file")
	}

	return FromViper(v)
}

// FromViper unmarshals and validates a prepared viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints and the threshold ladders.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := c.NetworkThresholds().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Level parses LogLevel for logrus.SetLevel.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// EngineSettings returns the engine factory configuration.
func (c *Config) EngineSettings() *interfaces.EngineConfig {
	return &interfaces.EngineConfig{
		UseSimulation:      c.Engine.UseSimulation,
		NetworkIntervalMs:  c.Network.IntervalMs,
		SpeakingIntervalMs: c.Speaking.IntervalMs,
		SimulationProfile:  c.Engine.SimulationProfile,
	}
}

// SpeakingDetector returns the detector configuration.
func (c *Config) SpeakingDetector() *speaking.Config {
	cfg := speaking.DefaultConfig()
	cfg.SampleInterval = time.Duration(c.Speaking.IntervalMs) * time.Millisecond
	cfg.FFTSize = c.Speaking.FFTSize
	cfg.SmoothingTimeConstant = c.Speaking.Smoothing
	cfg.Threshold = c.Speaking.Threshold
	cfg.DecayWindow = time.Duration(c.Speaking.DecayMs) * time.Millisecond
	return cfg
}

// NetworkThresholds returns the classification ladder.
func (c *Config) NetworkThresholds() netquality.Thresholds {
	t := c.Network.Thresholds
	return netquality.Thresholds{
		PoorRTT:  t.PoorRTT,
		FairRTT:  t.FairRTT,
		GoodRTT:  t.GoodRTT,
		PoorLoss: t.PoorLoss,
		FairLoss: t.FairLoss,
		GoodLoss: t.GoodLoss,
	}
}

// NetworkEstimator returns the estimator configuration.
func (c *Config) NetworkEstimator() *netquality.Config {
	return &netquality.Config{
		Interval:                time.Duration(c.Network.IntervalMs) * time.Millisecond,
		Thresholds:              c.NetworkThresholds(),
		DegradeOnLossWithoutRTT: c.Network.DegradeOnLossWithoutRTT,
	}
}

// ReportInterval returns the aggregator report period.
func (c *Config) ReportInterval() time.Duration {
	return time.Duration(c.Metrics.ReportIntervalMs) * time.Millisecond
}
