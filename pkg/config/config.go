// Package config loads the perilinkd daemon configuration. Values not
// present in the file keep their defaults, so a minimal config names
// just the pieces that differ from a stock single-board setup.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the daemon configuration.
type Config struct {
	Board     BoardConfig     `yaml:"board"`
	Session   SessionConfig   `yaml:"session"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Log       LogConfig       `yaml:"log"`
}

// BoardConfig selects the board and how to talk to it.
type BoardConfig struct {
	// ID names the board in logs and captures.
	ID string `yaml:"id"`

	// Device is the serial device path.
	Device string `yaml:"device"`

	// Baud is the serial rate.
	Baud int `yaml:"baud"`

	// Driver is the board driver loaded at boot.
	Driver string `yaml:"driver"`

	// Manifest is an optional TOML driver table overriding the
	// built-in enumerator ID mapping.
	Manifest string `yaml:"manifest"`

	// AutoLoad installs peripheral drivers from the board's
	// enumerator list after the board driver loads.
	AutoLoad bool `yaml:"auto_load"`
}

// SessionConfig configures the UI session listener.
type SessionConfig struct {
	// Listen is the TCP listen address for UI sessions.
	Listen string `yaml:"listen"`
}

// DiscoveryConfig configures mDNS advertisement.
type DiscoveryConfig struct {
	Enabled bool `yaml:"enabled"`

	// Instance is the advertised service instance name. Defaults to
	// the board ID.
	Instance string `yaml:"instance"`
}

// LogConfig configures daemon logging and protocol capture.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Capture is the CBOR protocol capture path. Empty disables
	// capture.
	Capture string `yaml:"capture"`
}

// DefaultConfig returns the stock single-board configuration.
func DefaultConfig() Config {
	return Config{
		Board: BoardConfig{
			ID:       "board0",
			Device:   "/dev/ttyUSB0",
			Baud:     115200,
			Driver:   "cmods7",
			AutoLoad: true,
		},
		Session: SessionConfig{
			Listen: ":8870",
		},
		Discovery: DiscoveryConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file over the defaults and validates the
// result.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.Board.ID == "" {
		return fmt.Errorf("%w: board id must not be empty", ErrInvalidConfig)
	}
	if c.Board.Device == "" {
		return fmt.Errorf("%w: board device must not be empty", ErrInvalidConfig)
	}
	if c.Board.Baud <= 0 {
		return fmt.Errorf("%w: board baud must be positive", ErrInvalidConfig)
	}
	if c.Session.Listen == "" {
		return fmt.Errorf("%w: session listen address must not be empty", ErrInvalidConfig)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel maps the configured level name to a slog level.
func (l *LogConfig) SlogLevel() (slog.Level, error) {
	switch l.Level {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, l.Level)
	}
}
