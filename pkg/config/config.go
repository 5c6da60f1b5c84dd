// Package config handles workspace configuration for apiflow-runner.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the workspace configuration (config.yaml).
type Config struct {
	// Flow selection
	Flows []string `yaml:"flows"` // Glob patterns for flow files

	// Defaults merged under each flow's own config
	BaseURL string            `yaml:"baseUrl"`
	Headers map[string]string `yaml:"headers"`
	Timeout int               `yaml:"timeout"` // Request timeout in ms

	// Initial environment variables
	Env map[string]string `yaml:"env"`

	// Report output directory
	Output string `yaml:"output"`
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromDir looks for config.yaml or config.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	configPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	configPath = filepath.Join(dir, "config.yml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// No config file found, return empty config
	return &Config{}, nil
}
