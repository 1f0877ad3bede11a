// Package config loads the YAML configuration holding gitfetch's
// transport, lazy-read and capability defaults. The gitfetch CLI
// applies only the capability list (FetchCapabilities); the transport
// and pack settings are loaded and validated but no package in this
// module reads them.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/lxr-go-scm/gitfetch/protocol"
)

// Config holds every tunable gitfetch reads at startup.
type Config struct {
	Transport TransportConfig `yaml:"transport"`
	Pack      PackConfig      `yaml:"pack"`
	Fetch     FetchConfig     `yaml:"fetch"`
}

// TransportConfig controls how the git:// client dials servers.
type TransportConfig struct {
	// DefaultPort is the port setting for URLs that do not specify one.
	// The transport package dials its own DefaultPort constant and does
	// not read this field.
	DefaultPort int `yaml:"default_port"`
	// DialTimeoutSeconds is the dial timeout setting, in seconds.
	// transport.Client does not read it; its Dialer has no timeout
	// unless the caller sets one.
	DialTimeoutSeconds int `yaml:"dial_timeout_seconds"`
}

// PackConfig controls how packfiles already on disk are read and how
// new ones are indexed.
type PackConfig struct {
	// LazyReadThresholdBytes is the packed object size above which the
	// pack reader reads only the object's header at open time and loads
	// the rest from disk when the object is actually requested. 0
	// means use packfile.DefaultLazyThreshold.
	LazyReadThresholdBytes int64 `yaml:"lazy_read_threshold_bytes"`
	// LoadWorkers caps how many packs are opened and indexed
	// concurrently when a repository is opened. 0 means unbounded.
	LoadWorkers int `yaml:"load_workers"`
}

// FetchConfig controls what a fetch-pack request asks a server for by
// default.
type FetchConfig struct {
	// Capabilities overrides protocol.DefaultFetchCapabilities when
	// non-empty.
	Capabilities []string `yaml:"capabilities"`
}

// Default returns the configuration gitfetch uses when no config file
// is given and no environment variable overrides apply.
func Default() *Config {
	return &Config{
		Transport: TransportConfig{
			DefaultPort:        9418,
			DialTimeoutSeconds: 10,
		},
		Pack: PackConfig{
			LazyReadThresholdBytes: 1 << 20,
			LoadWorkers:            0,
		},
	}
}

// Load reads and parses the YAML file at path, starting from Default
// and overlaying whatever the file sets, then applies GITFETCH_*
// environment variable overrides on top. An empty path returns
// Default with environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("GITFETCH_DEFAULT_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Transport.DefaultPort = p
		}
	}
	if v := os.Getenv("GITFETCH_DIAL_TIMEOUT_SECONDS"); v != "" {
		if s, err := strconv.Atoi(v); err == nil {
			cfg.Transport.DialTimeoutSeconds = s
		}
	}
	if v := os.Getenv("GITFETCH_LAZY_READ_THRESHOLD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Pack.LazyReadThresholdBytes = n
		}
	}
	if v := os.Getenv("GITFETCH_LOAD_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pack.LoadWorkers = n
		}
	}
}

// Validate rejects configurations that would produce nonsensical
// behavior rather than a clear error further down the line.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is required")
	}
	if c.Transport.DefaultPort <= 0 || c.Transport.DefaultPort > 65535 {
		return fmt.Errorf("transport.default_port must be between 1 and 65535, got %d", c.Transport.DefaultPort)
	}
	if c.Pack.LazyReadThresholdBytes < 0 {
		return fmt.Errorf("pack.lazy_read_threshold_bytes must not be negative")
	}
	if c.Pack.LoadWorkers < 0 {
		return fmt.Errorf("pack.load_workers must not be negative")
	}
	return nil
}

// FetchCapabilities returns the capability list a fetch-pack request
// should advertise: Capabilities from the config file if set, or
// protocol.DefaultFetchCapabilities otherwise.
func (c *Config) FetchCapabilities() protocol.CapList {
	if len(c.Fetch.Capabilities) == 0 {
		return protocol.DefaultFetchCapabilities
	}
	caps := make(protocol.CapList, len(c.Fetch.Capabilities))
	for _, name := range c.Fetch.Capabilities {
		caps[name] = true
	}
	return caps
}
