// Package config loads carfw's settings file and layers CLI flag
// overrides on top, the same precedence the teacher's UpdateConfig /
// LoadConfigCSV layering used for job configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/rescale-labs/carfw/internal/constants"
)

// Config holds the settings carfw needs for a download run. Zero values
// mean "unset"; Load fills them with the baked-in defaults and the
// settings file, then the CLI's loadConfig overrides them with anything
// the user passed explicitly.
type Config struct {
	OutputDir   string `toml:"output_dir"`
	Concurrency int    `toml:"concurrency"`
	Retries     int    `toml:"retries"`
	KeepRaw     bool   `toml:"keep_raw"`
	Region      string `toml:"region"`
}

// Default returns a Config with the tool's baked-in defaults.
func Default() Config {
	return Config{
		Concurrency: constants.DefaultConcurrency,
		Retries:     constants.DefaultRetries,
	}
}

// SettingsPath returns the default settings file location,
// `~/.config/carfw/settings.toml`, matching XDG-style tool layout.
func SettingsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", constants.ToolID, "settings.toml"), nil
}

// Load reads the TOML settings file at path, starting from Default().
// A missing file is not an error — it just means no overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("decode settings file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks fields the Orchestrator requires to be sane.
func (c *Config) Validate() error {
	if c.Concurrency < constants.MinConcurrency || c.Concurrency > constants.MaxConcurrency {
		return fmt.Errorf("concurrency %d out of range [%d,%d]", c.Concurrency, constants.MinConcurrency, constants.MaxConcurrency)
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must be non-negative, got %d", c.Retries)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	return nil
}
