// Package config loads server configuration from a YAML file. The
// environment is consulted only as a fallback, by the store, when the
// file leaves database_url empty.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config holds the server-level settings. The engine itself has no
// configuration beyond the deal it is given.
type Config struct {
	Port        int    `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	DefaultCase string `yaml:"default_case"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Port:        8080,
		DefaultCase: "base_case",
	}
}

// Load reads a YAML config file, layering it over the defaults. A
// missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if cfg.Port == 0 {
		cfg.Port = Default().Port
	}
	if cfg.DefaultCase == "" {
		cfg.DefaultCase = Default().DefaultCase
	}
	return cfg, nil
}
