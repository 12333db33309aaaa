// Package config provides configuration loading and management for cubealign.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Inputs lists the cube resources (paths or URLs) to align.
	// The first entry is the reference exposure.
	Inputs []string `yaml:"inputs"`

	// Processing parameters
	Processing struct {
		// SliceIndex is the wavelength plane extracted from each cube.
		// A negative value selects the middle of the reference cube.
		SliceIndex int `yaml:"sliceIndex"`

		// Methods names the registration strategies to run, in order.
		Methods []string `yaml:"methods"`

		// MaxShift bounds the chi-squared search window in pixels.
		// Zero selects an automatic window.
		MaxShift int `yaml:"maxShift"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Dir is the directory where rendered panels are written.
		Dir string `yaml:"dir"`

		// RenderPanels toggles writing PNG panels for each stage.
		RenderPanels bool `yaml:"renderPanels"`

		// Colormap selects the panel color ramp (viridis or gray).
		Colormap string `yaml:"colormap"`

		// Scale is the panel magnification per data pixel.
		Scale int `yaml:"scale"`

		// GridStep is the coordinate grid spacing in data pixels.
		GridStep int `yaml:"gridStep"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.SliceIndex = -1
	cfg.Processing.Methods = []string{"crosscorr", "chi2", "subpixel"}
	cfg.Processing.MaxShift = 0

	// Set default output parameters
	cfg.Output.Dir = "panels"
	cfg.Output.RenderPanels = true
	cfg.Output.Colormap = "viridis"
	cfg.Output.Scale = 2
	cfg.Output.GridStep = 16
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
