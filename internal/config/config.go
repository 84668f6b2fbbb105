// Package config loads per-project fntrace settings from .fntrace.yaml or
// .fntrace.toml in the project root.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/DeusData/fntrace/internal/instrument"
	"github.com/DeusData/fntrace/internal/sink"
)

// File names Load looks for, in order.
var FileNames = []string{".fntrace.yaml", ".fntrace.yml", ".fntrace.toml"}

// Config holds user-overridable settings. Unset pointer fields fall back to
// defaults through the Effective* accessors.
type Config struct {
	// Binding is the identifier rewritten code calls.
	Binding *string `yaml:"binding" toml:"binding"`
	// Wrapped marks every file as enclosed by a host loader function.
	Wrapped *bool `yaml:"wrapped" toml:"wrapped"`
	// OutDir receives instrumented files, relative to the project root.
	OutDir *string `yaml:"out_dir" toml:"out_dir"`
	// Include and Exclude are globs over project-relative paths.
	Include []string `yaml:"include" toml:"include"`
	Exclude []string `yaml:"exclude" toml:"exclude"`
	// Workers bounds parallel instrumentation. Default: number of CPUs.
	Workers *int `yaml:"workers" toml:"workers"`
	// StorePath is the SQLite database. Default: ~/.cache/fntrace/traces.db.
	StorePath *string `yaml:"store_path" toml:"store_path"`

	Sinks SinksConfig `yaml:"sinks" toml:"sinks"`

	// path is the file the config came from, empty for defaults.
	path string
}

// SinksConfig selects where trace records go when running code.
type SinksConfig struct {
	// Log writes records through slog. Default: true.
	Log *bool `yaml:"log" toml:"log"`
	// Store persists records in the SQLite store. Default: true.
	Store *bool `yaml:"store" toml:"store"`
	// PrometheusAddr serves /metrics on this address when set.
	PrometheusAddr string `yaml:"prometheus_addr" toml:"prometheus_addr"`
	// OTLPEndpoint exports spans over OTLP/gRPC when set.
	OTLPEndpoint string `yaml:"otlp_endpoint" toml:"otlp_endpoint"`
	// QueueSize bounds the asynchronous sink queue.
	QueueSize *int `yaml:"queue_size" toml:"queue_size"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{}
}

// Load reads the first config file found in dir. A missing file yields the
// defaults; an unreadable or invalid one is an error.
func Load(dir string) (*Config, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		cfg, err := parse(name, data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		cfg.path = path
		return cfg, nil
	}
	return DefaultConfig(), nil
}

func parse(name string, data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if filepath.Ext(name) == ".toml" {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the file the config was loaded from, or "".
func (c *Config) Path() string {
	return c.path
}

// EffectiveBinding returns the configured binding or instrument.DefaultBinding.
func (c *Config) EffectiveBinding() string {
	if c.Binding != nil && *c.Binding != "" {
		return *c.Binding
	}
	return instrument.DefaultBinding
}

// EffectiveWrapped returns the wrapped-file flag (default false).
func (c *Config) EffectiveWrapped() bool {
	return c.Wrapped != nil && *c.Wrapped
}

// EffectiveOutDir returns the output directory resolved against root.
// Default: <root>/.fntrace/out.
func (c *Config) EffectiveOutDir(root string) string {
	out := filepath.Join(".fntrace", "out")
	if c.OutDir != nil && *c.OutDir != "" {
		out = *c.OutDir
	}
	if filepath.IsAbs(out) {
		return out
	}
	return filepath.Join(root, out)
}

// EffectiveWorkers returns the configured worker count or runtime.NumCPU().
func (c *Config) EffectiveWorkers() int {
	if c.Workers != nil && *c.Workers > 0 {
		return *c.Workers
	}
	return runtime.NumCPU()
}

// EffectiveStorePath returns the configured store path, or "" for the default.
func (c *Config) EffectiveStorePath() string {
	if c.StorePath != nil {
		return *c.StorePath
	}
	return ""
}

// EffectiveLog reports whether records are logged (default true).
func (s SinksConfig) EffectiveLog() bool {
	return s.Log == nil || *s.Log
}

// EffectiveStore reports whether records are stored (default true).
func (s SinksConfig) EffectiveStore() bool {
	return s.Store == nil || *s.Store
}

// EffectiveQueueSize returns the async queue size or sink.DefaultQueueSize.
func (s SinksConfig) EffectiveQueueSize() int {
	if s.QueueSize != nil && *s.QueueSize > 0 {
		return *s.QueueSize
	}
	return sink.DefaultQueueSize
}

// InstrumentOptions returns injector options for this config.
func (c *Config) InstrumentOptions() instrument.Options {
	return instrument.Options{Binding: c.EffectiveBinding()}
}
