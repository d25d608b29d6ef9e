package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the optional settings read from ~/.svcfwd/config.yaml.
// Command line flags take precedence over file values.
type Config struct {
	Namespace   string `yaml:"namespace,omitempty"`
	KubeContext string `yaml:"kube_context,omitempty"`
	BindAddress string `yaml:"bind_address,omitempty"`
	Debug       bool   `yaml:"debug,omitempty"`
}

// Dir returns the svcfwd config directory, creating nothing.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".svcfwd"), nil
}

// Load reads the config file at path. An absent file is not an error;
// defaults are returned instead.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Namespace:   "default",
		BindAddress: "127.0.0.1",
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "default"
	}
	if cfg.BindAddress == "" {
		cfg.BindAddress = "127.0.0.1"
	}
	return cfg, nil
}

// DefaultPath returns the standard config file location.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}
