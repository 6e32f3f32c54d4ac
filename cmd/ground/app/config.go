package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultAddress         = "127.0.0.1:50051"
	defaultMaxRecvMsgSize  = 20 * 1024 * 1024
	defaultKeepaliveTime   = 20 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultDataDirectory   = "missions"
	defaultDatabaseName    = "ground.sqlite"
	defaultBatchSize       = 32
	defaultLogFileMaxSize  = 10 // MB
)

type TimeDuration time.Duration

func NewTimeDuration(d time.Duration) TimeDuration {
	return TimeDuration(d)
}

func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d TimeDuration) Duration() time.Duration {
	return time.Duration(d)
}

func (d TimeDuration) String() string {
	return time.Duration(d).String()
}

func (d TimeDuration) validate(name string) error {
	if d < 0 {
		return fmt.Errorf("app.Config: %s must not be negative: %s given", name, d)
	}
	return nil
}

// Config represents the ground station configuration
type Config struct {
	Settings Settings      `yaml:"settings"`
	Server   ServerConfig  `yaml:"server"`
	Storage  StorageConfig `yaml:"storage"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string        `yaml:"logLevel"`
	LogFile  LogFileConfig `yaml:"logFile"`
}

// LogFileConfig represents the rotating log file; an empty path logs to stdout only
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// ServerConfig represents the gRPC ingest server settings
type ServerConfig struct {
	Address         string       `yaml:"address"`
	MaxRecvMsgSize  int          `yaml:"maxRecvMsgSize"`
	KeepaliveTime   TimeDuration `yaml:"keepaliveTime"`
	ShutdownTimeout TimeDuration `yaml:"shutdownTimeout"`
}

// StorageConfig represents the recorder settings
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory"`
	Database      string `yaml:"database"`
	MissionID     string `yaml:"missionID"` // generated from the start time when empty
	BatchSize     int    `yaml:"batchSize"` // records buffered per stream before a write
}

// MetricsConfig represents the Prometheus endpoint; an empty address disables it
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// NewConfig returns the default configuration
func NewConfig() *Config {
	return &Config{
		Settings: Settings{
			LogLevel: "info",
			LogFile: LogFileConfig{
				MaxSizeMB: defaultLogFileMaxSize,
			},
		},
		Server: ServerConfig{
			Address:         defaultAddress,
			MaxRecvMsgSize:  defaultMaxRecvMsgSize,
			KeepaliveTime:   NewTimeDuration(defaultKeepaliveTime),
			ShutdownTimeout: NewTimeDuration(defaultShutdownTimeout),
		},
		Storage: StorageConfig{
			DataDirectory: defaultDataDirectory,
			Database:      defaultDatabaseName,
			BatchSize:     defaultBatchSize,
		},
	}
}

// LoadConfig reads the YAML configuration at path on top of the defaults
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}
	return ParseConfig(b)
}

// ParseConfig decodes a YAML configuration on top of the defaults
func ParseConfig(b []byte) (*Config, error) {
	config := NewConfig()
	if err := yaml.Unmarshal(b, config); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Level returns the configured log level
func (s *Settings) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("app.Config: invalid log level '%s'", s.LogLevel)
	}
	return level, nil
}

func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Settings.Level(); err != nil {
		errs = append(errs, err)
	}
	if c.Settings.LogFile.MaxSizeMB < 0 || c.Settings.LogFile.MaxBackups < 0 || c.Settings.LogFile.MaxAgeDays < 0 {
		errs = append(errs, errors.New("app.Config: log file limits must not be negative"))
	}
	if c.Server.Address == "" {
		errs = append(errs, errors.New("app.Config: server address is required"))
	}
	if c.Server.MaxRecvMsgSize <= 0 {
		errs = append(errs, fmt.Errorf("app.Config: max receive message size must be positive: %d given", c.Server.MaxRecvMsgSize))
	}
	if err := c.Server.KeepaliveTime.validate("keepalive time"); err != nil {
		errs = append(errs, err)
	}
	if err := c.Server.ShutdownTimeout.validate("shutdown timeout"); err != nil {
		errs = append(errs, err)
	}
	if c.Storage.DataDirectory == "" {
		errs = append(errs, errors.New("app.Config: data directory is required"))
	}
	if c.Storage.Database == "" {
		errs = append(errs, errors.New("app.Config: database name is required"))
	}
	if c.Storage.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("app.Config: batch size must be positive: %d given", c.Storage.BatchSize))
	}

	return errors.Join(errs...)
}
