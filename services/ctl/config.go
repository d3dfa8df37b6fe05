package ctl

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the tradectl configuration, read from a YAML file.
type Config struct {
	APIBase string        `yaml:"-"`
	Timeout time.Duration `yaml:"-"`
}

// fileConfig is the on-disk shape. Durations are strings so the file can
// say "10s" rather than nanoseconds.
type fileConfig struct {
	APIBase string `yaml:"api_base"`
	Timeout string `yaml:"timeout"`
}

// DefaultConfigPath is consulted when no --config flag is given.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tradeforge.yaml"
	}
	return filepath.Join(home, ".tradeforge.yaml")
}

// LoadConfig reads a config file and applies defaults. A missing file is
// not an error; the defaults stand alone.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		APIBase: "http://localhost:8080",
		Timeout: 10 * time.Second,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, err
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Config{}, err
	}
	if file.APIBase != "" {
		cfg.APIBase = file.APIBase
	}
	if file.Timeout != "" {
		timeout, err := time.ParseDuration(file.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = timeout
	}
	return cfg, nil
}
