// Package config loads the symres CLI configuration: defaults, then an
// optional YAML file, then environment overrides, each layer winning over
// the previous one.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Environment variables honored by Load.
const (
	EnvLogLevel       = "SYMRES_LOG_LEVEL"
	EnvSymbolizerPath = "SYMRES_SYMBOLIZER_PATH"
)

// Config is the CLI tool configuration.
type Config struct {
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
	Symbolizer struct {
		// Path points at an external symbolization helper. Empty means
		// search the executable search path for a default tool.
		Path string `yaml:"path"`
	} `yaml:"symbolizer"`
}

// Default returns the built-in configuration.
func Default() Config {
	var cfg Config
	cfg.Log.Level = "info"
	cfg.Log.Pretty = true
	return cfg
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty; the file must then exist), and environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304: operator-supplied config path
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(EnvSymbolizerPath); v != "" {
		cfg.Symbolizer.Path = v
	}

	return cfg, nil
}
