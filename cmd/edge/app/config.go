package app

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	DefaultAddress = "localhost:50051"

	DefaultTelemetryCount = 10
	DefaultTelemetryRate  = 5.0 // Hz

	DefaultDetectionCount = 5
	DefaultDetectionRate  = 2.0 // Hz

	// LogLevelEnv names the environment variable holding the log level
	LogLevelEnv = "LOG_LEVEL"

	// AckTimeoutEnv names the environment variable holding the acknowledgement timeout
	AckTimeoutEnv = "ACK_TIMEOUT"
)

// ConfigError is returned for an invalid configuration
type ConfigError struct {
	msg string
}

func NewConfigError(msg string) *ConfigError {
	return &ConfigError{msg}
}

func (e *ConfigError) Error() string {
	return e.msg
}

// Config represents the edge generator configuration
type Config struct {
	Address    string        // ingest endpoint, host:port
	LogLevel   slog.Level    // from LOG_LEVEL
	AckTimeout time.Duration // zero waits indefinitely

	Telemetry  SessionConfig
	Detections SessionConfig
}

// SessionConfig represents the cadence of one stream
type SessionConfig struct {
	Count int     // number of samples to emit
	Rate  float64 // samples per second
}

// NewConfig returns the default configuration
func NewConfig() *Config {
	return &Config{
		Address:  DefaultAddress,
		LogLevel: slog.LevelInfo,
		Telemetry: SessionConfig{
			Count: DefaultTelemetryCount,
			Rate:  DefaultTelemetryRate,
		},
		Detections: SessionConfig{
			Count: DefaultDetectionCount,
			Rate:  DefaultDetectionRate,
		},
	}
}

// ConfigFromArgs builds the configuration from the positional arguments, which
// hold at most the endpoint address, and the environment.
func ConfigFromArgs(args []string, getenv func(string) string) (*Config, error) {
	config := NewConfig()

	switch len(args) {
	case 0:
	case 1:
		config.Address = strings.TrimSpace(args[0])
	default:
		return nil, NewConfigError(fmt.Sprintf("app.Config: expected at most one address argument: %d given", len(args)))
	}

	if v := getenv(LogLevelEnv); v != "" {
		level, err := ParseLogLevel(v)
		if err != nil {
			return nil, err
		}
		config.LogLevel = level
	}

	if v := getenv(AckTimeoutEnv); v != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return nil, NewConfigError(fmt.Sprintf("app.Config: invalid ack timeout '%s'", v))
		}
		config.AckTimeout = d
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ParseLogLevel parses debug, info, warn or error, case-insensitively
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, NewConfigError(fmt.Sprintf("app.Config: invalid log level '%s'", s))
	}
	return level, nil
}

func (c *Config) Validate() error {
	if c.Address == "" {
		return NewConfigError("app.Config: address is required")
	}
	if c.AckTimeout < 0 {
		return NewConfigError(fmt.Sprintf("app.Config: ack timeout must not be negative: %s given", c.AckTimeout))
	}

	return errors.Join(
		c.Telemetry.validate("telemetry"),
		c.Detections.validate("detections"),
	)
}

func (c SessionConfig) validate(kind string) error {
	if c.Count < 0 {
		return NewConfigError(fmt.Sprintf("app.Config: %s count must not be negative: %d given", kind, c.Count))
	}
	if c.Rate <= 0 {
		return NewConfigError(fmt.Sprintf("app.Config: %s rate must be positive: %v given", kind, c.Rate))
	}
	return nil
}
