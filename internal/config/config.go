// Package config provides configuration types and defaults for testdeck.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/testdeck/testdeck/internal/log"
	"github.com/testdeck/testdeck/internal/tracing"
)

// Config holds all configuration options for testdeck.
type Config struct {
	// Dir is the test root directory. Default: current directory.
	Dir string `mapstructure:"dir"`

	// Provider selects the session transport ("demo" or a registered
	// provider name). Default: "demo".
	Provider string `mapstructure:"provider"`

	// Endpoint is the transport address for providers that dial a
	// remote test runner. Unused by the demo provider.
	Endpoint string `mapstructure:"endpoint"`

	UI      UIConfig       `mapstructure:"ui"`
	Watch   WatchConfig    `mapstructure:"watch"`
	Prefs   PrefsConfig    `mapstructure:"prefs"`
	Tracing tracing.Config `mapstructure:"tracing"`
}

// UIConfig holds user interface configuration options.
type UIConfig struct {
	ShowCounts    bool `mapstructure:"show_counts"`     // Show status counts in the header
	ShowOutput    bool `mapstructure:"show_output"`     // Show the output pane
	ShowStatusBar bool `mapstructure:"show_status_bar"` // Show status bar at bottom

	// PublishDelay coalesces model snapshot publications during a run.
	// Default: 250ms.
	PublishDelay time.Duration `mapstructure:"publish_delay"`
}

// WatchConfig holds file watching configuration options.
type WatchConfig struct {
	// Enabled controls whether the file watcher starts at all.
	// Watch mode selection still happens in the UI.
	Enabled bool `mapstructure:"enabled"`

	// Debounce is the quiet window before a batch of file changes is
	// published. Default: 500ms.
	Debounce time.Duration `mapstructure:"debounce"`
}

// PrefsConfig holds preference storage configuration.
type PrefsConfig struct {
	// Path is the sqlite database file holding persisted preferences.
	// Default: <dir>/.testdeck/prefs.db
	Path string `mapstructure:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Dir:      ".",
		Provider: "demo",
		UI: UIConfig{
			ShowCounts:    true,
			ShowOutput:    true,
			ShowStatusBar: true,
			PublishDelay:  250 * time.Millisecond,
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: 500 * time.Millisecond,
		},
		Tracing: tracing.DefaultConfig(),
	}
}

// PrefsPath returns the configured preference database path, or the
// default location under the test root.
func (c Config) PrefsPath() string {
	if c.Prefs.Path != "" {
		return c.Prefs.Path
	}
	return filepath.Join(c.Dir, ".testdeck", "prefs.db")
}

// Validate checks the configuration for errors.
// Empty values fall back to defaults and are not errors.
func Validate(cfg Config) error {
	if cfg.UI.PublishDelay < 0 {
		return fmt.Errorf("ui.publish_delay must not be negative, got %v", cfg.UI.PublishDelay)
	}
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative, got %v", cfg.Watch.Debounce)
	}
	if err := ValidateTracing(cfg.Tracing); err != nil {
		return err
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tc tracing.Config) error {
	if tc.SampleRate < 0.0 || tc.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tc.SampleRate)
	}
	if tc.Exporter != "" {
		switch tc.Exporter {
		case "none", "stdout", "otlp":
			// Valid
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"stdout\", or \"otlp\", got %q", tc.Exporter)
		}
	}
	if tc.Enabled && tc.Exporter == "otlp" && tc.OTLPEndpoint == "" {
		return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
	}
	return nil
}

// UserConfigPath returns the per-user config file location.
// Returns ~/.config/testdeck/config.yaml or empty string if home dir unavailable.
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "testdeck", "config.yaml")
}

// FindConfigFile locates the config file for a test root. The
// project-local .testdeck/config.yaml wins over the per-user file.
// Returns empty string when neither exists.
func FindConfigFile(dir string) string {
	local := filepath.Join(dir, ".testdeck", "config.yaml")
	if _, err := os.Stat(local); err == nil {
		return local
	}
	if user := UserConfigPath(); user != "" {
		if _, err := os.Stat(user); err == nil {
			return user
		}
	}
	return ""
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Testdeck Configuration

# Test root directory (default: current directory)
# dir: /path/to/project

# Session provider: "demo" runs a canned in-process suite.
provider: demo

# Transport address for providers that dial a remote runner
# endpoint: localhost:9323

# UI settings
ui:
  show_counts: true      # Show status counts in the header
  show_output: true      # Show the output pane
  show_status_bar: true  # Show status bar at bottom
  # publish_delay: 250ms # Coalescing window for model updates during a run

# File watching
watch:
  enabled: true
  # debounce: 500ms      # Quiet window before a change batch is published

# Preference storage
# prefs:
#   path: /path/to/prefs.db   # default: <dir>/.testdeck/prefs.db

# Distributed tracing
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: none                 # Export backend: none, stdout, otlp
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
