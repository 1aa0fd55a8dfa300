// Package config loads the optional launcher YAML file and watches the
// params file for edits made outside the TUI.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the launcher file is absent or fields are omitted.
const (
	DefaultPollInterval = 250 * time.Millisecond
	DefaultRunsDir      = "runs"
	DefaultLogFile      = "launcher.log"
)

// Config holds the parsed launcher configuration. All fields are optional;
// zero values mean defaults.
type Config struct {
	Service         ServiceConfig `yaml:"service"`
	RawPollInterval string        `yaml:"poll_interval"` // e.g. "250ms", "1s"
	RunsDir         string        `yaml:"runs_dir"`
	LogFile         string        `yaml:"log_file"`
	ParamsFile      string        `yaml:"params_file"`
}

// ServiceConfig controls how the pipeline sidecar is launched.
type ServiceConfig struct {
	Command []string `yaml:"command"` // full invocation; empty uses the bundled Python service
}

// PollInterval returns the configured log polling cadence or the default.
func (c *Config) PollInterval() time.Duration {
	if c.RawPollInterval != "" {
		d, err := time.ParseDuration(c.RawPollInterval)
		if err == nil && d > 0 {
			return d
		}
	}
	return DefaultPollInterval
}

// RunsDirectory returns the run artifact directory or the default.
func (c *Config) RunsDirectory() string {
	if c.RunsDir != "" {
		return c.RunsDir
	}
	return DefaultRunsDir
}

// LogFilePath returns the debug log file path or the default.
func (c *Config) LogFilePath() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	return DefaultLogFile
}

// Load reads the launcher YAML file. A missing file yields a default
// Config; a present but invalid file is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}
