// Package config holds runtime configuration for ls-ephem. Values come from
// .ls-ephem.yaml, LSEPHEM_* environment variables and CLI flags, in viper's
// usual precedence order.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/litescript/ls-ephem/internal/logging"
	"github.com/litescript/ls-ephem/internal/oem"
)

// Export formats accepted by the export command.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Config is the resolved runtime configuration.
type Config struct {
	LogLevel      string        `mapstructure:"log_level"`
	AllowVersion2 bool          `mapstructure:"allow_version2"`
	StepSeconds   float64       `mapstructure:"step_seconds"`
	ExportFormat  string        `mapstructure:"export_format"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`
	MaxEvents     int           `mapstructure:"max_events"`
}

// Load reads configuration from viper, applying defaults for any value not
// set by a config file, the environment or a bound flag.
func Load() (Config, error) {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("allow_version2", false)
	viper.SetDefault("step_seconds", 60.0)
	viper.SetDefault("export_format", FormatJSON)
	viper.SetDefault("watch_debounce", 250*time.Millisecond)
	viper.SetDefault("max_events", 50)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.ExportFormat = strings.ToLower(cfg.ExportFormat)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.StepSeconds <= 0 {
		return fmt.Errorf("step_seconds must be positive, got %v", c.StepSeconds)
	}
	switch c.ExportFormat {
	case FormatJSON, FormatYAML:
	default:
		return fmt.Errorf("export_format must be %s or %s, got %q", FormatJSON, FormatYAML, c.ExportFormat)
	}
	if c.WatchDebounce < 0 {
		return fmt.Errorf("watch_debounce must not be negative, got %s", c.WatchDebounce)
	}
	return nil
}

// Level returns the configured log level.
func (c Config) Level() logging.Level {
	return logging.ParseLevel(c.LogLevel)
}

// LoadOptions returns the loader options implied by the configuration.
func (c Config) LoadOptions(log *logging.Logger) []oem.Option {
	opts := []oem.Option{oem.WithLogger(log)}
	if c.AllowVersion2 {
		opts = append(opts, oem.WithVersion2())
	}
	return opts
}
