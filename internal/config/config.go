// Package config holds the kernel's aggregate YAML configuration:
// one struct-of-structs per component, each with a Default*Config
// constructor supplying the numeric defaults spec.md §6 names.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/loomcore/loom/internal/bus"
	"github.com/loomcore/loom/internal/broker"
	"github.com/loomcore/loom/internal/cognitive"
	"github.com/loomcore/loom/internal/mcpclient"
	"github.com/loomcore/loom/internal/registry"
)

// Config is the kernel's top-level configuration.
type Config struct {
	Bus       bus.Config            `yaml:"bus"`
	Registry  registry.Config       `yaml:"registry"`
	Broker    broker.Config         `yaml:"broker"`
	MCP       mcpclient.Config      `yaml:"mcp"`
	Cognitive cognitive.Config      `yaml:"cognitive"`
	Logging   LoggingConfig         `yaml:"logging"`
}

// LoggingConfig configures the ambient slog-based logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultLoggingConfig returns sane logging defaults.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{Level: "info", Format: "json"}
}

// Default returns a Config populated entirely from component defaults.
func Default() Config {
	return Config{
		Bus:       bus.DefaultConfig(),
		Registry:  registry.DefaultConfig(),
		Broker:    broker.DefaultConfig(),
		MCP:       mcpclient.DefaultConfig(),
		Cognitive: cognitive.DefaultConfig(),
		Logging:   DefaultLoggingConfig(),
	}
}

// Load reads a YAML config file from path, expanding ${VAR} references
// against the process environment before parsing, and rejecting unknown
// fields (a typo in a config key is a load-time error, not a silent
// no-op).
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))

	decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := decoder.Decode(new(struct{})); err != io.EOF {
		return cfg, fmt.Errorf("config: %s must contain a single YAML document", path)
	}
	return cfg, nil
}
