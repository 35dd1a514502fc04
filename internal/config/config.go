// Package config provides configuration management for screenrec using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "SCREENREC"

// Default configuration values.
const (
	defaultOutputDir       = "./recordings"
	defaultVideoTimescale  = 90000
	defaultReplayWarnSize  = "32MB"
	defaultMinFreeSpace    = "512MiB"
	defaultMaxOpenConns    = 4
	defaultMaxIdleConns    = 2
	defaultConnMaxLifetime = "1h"
	defaultConnMaxIdleTime = "30m"
)

// Config holds all configuration for the application.
type Config struct {
	Recording RecordingConfig `mapstructure:"recording" yaml:"recording"`
	Catalog   CatalogConfig   `mapstructure:"catalog" yaml:"catalog"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// RecordingConfig controls where and how recordings are produced.
type RecordingConfig struct {
	// OutputDir receives finalized recordings.
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
	// VideoTimescale is the video track timescale in ticks per second.
	VideoTimescale uint32 `mapstructure:"video_timescale" yaml:"video_timescale"`
	// ReplayWarnSize logs a warning when the packets buffered since the last
	// keyframe exceed this size. Zero disables the warning.
	ReplayWarnSize ByteSize `mapstructure:"replay_warn_size" yaml:"replay_warn_size"`
	// MinFreeSpace logs a warning before recording when the output
	// filesystem has less space available. Zero disables the check.
	MinFreeSpace ByteSize `mapstructure:"min_free_space" yaml:"min_free_space"`
	// StartAfter delays the start of recording by this much stream time.
	StartAfter Duration `mapstructure:"start_after" yaml:"start_after"`
	// MaxDuration stops a recording after this much stream time. Zero means
	// no limit.
	MaxDuration Duration `mapstructure:"max_duration" yaml:"max_duration"`
	// Segment starts a new recording each time MaxDuration is reached.
	Segment bool `mapstructure:"segment" yaml:"segment"`
}

// CatalogConfig controls the recording catalog.
type CatalogConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string   `mapstructure:"driver" yaml:"driver"` // sqlite, postgres, mysql
	DSN             string   `mapstructure:"dsn" yaml:"dsn"`
	MaxOpenConns    int      `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int      `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime Duration `mapstructure:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	LogLevel        string   `mapstructure:"log_level" yaml:"log_level"` // silent, error, warn, info
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format     string `mapstructure:"format" yaml:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source" yaml:"add_source"`
	TimeFormat string `mapstructure:"time_format" yaml:"time_format"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with SCREENREC_ and use underscores for
// nesting. Example: SCREENREC_RECORDING_OUTPUT_DIR=/srv/recordings.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/screenrec")
		v.AddConfigPath("$HOME/.screenrec")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("recording.output_dir", defaultOutputDir)
	v.SetDefault("recording.video_timescale", defaultVideoTimescale)
	v.SetDefault("recording.replay_warn_size", defaultReplayWarnSize)
	v.SetDefault("recording.min_free_space", defaultMinFreeSpace)
	v.SetDefault("recording.start_after", "0s")
	v.SetDefault("recording.max_duration", "0s")
	v.SetDefault("recording.segment", false)

	v.SetDefault("catalog.enabled", false)
	v.SetDefault("catalog.database.driver", "sqlite")
	v.SetDefault("catalog.database.dsn", "screenrec.db")
	v.SetDefault("catalog.database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("catalog.database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("catalog.database.conn_max_lifetime", defaultConnMaxLifetime)
	v.SetDefault("catalog.database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("catalog.database.log_level", "warn")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Recording.OutputDir == "" {
		return fmt.Errorf("recording.output_dir is required")
	}
	if c.Recording.VideoTimescale == 0 {
		return fmt.Errorf("recording.video_timescale must be positive")
	}
	if c.Recording.ReplayWarnSize < 0 {
		return fmt.Errorf("recording.replay_warn_size must not be negative")
	}
	if c.Recording.MinFreeSpace < 0 {
		return fmt.Errorf("recording.min_free_space must not be negative")
	}
	if c.Recording.StartAfter < 0 || c.Recording.MaxDuration < 0 {
		return fmt.Errorf("recording.start_after and recording.max_duration must not be negative")
	}
	if c.Recording.Segment && c.Recording.MaxDuration == 0 {
		return fmt.Errorf("recording.segment requires recording.max_duration")
	}

	if c.Catalog.Enabled {
		if err := c.Catalog.Database.Validate(); err != nil {
			return fmt.Errorf("catalog.%w", err)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Validate checks the database settings.
func (c *DatabaseConfig) Validate() error {
	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	return nil
}
