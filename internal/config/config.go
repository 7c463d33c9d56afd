// Package config loads redlogic.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/coffersTech/redlogic/internal/metric"
)

// Config is the root configuration.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Server     ServerConfig     `yaml:"server"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Rules      RulesConfig      `yaml:"rules"`
	Dictionary DictionaryConfig `yaml:"dictionary"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

type ServerConfig struct {
	Addr            string `yaml:"addr"`
	DataDir         string `yaml:"data_dir"`
	KeysFile        string `yaml:"keys_file"`
	MasterKeyFile   string `yaml:"master_key_file"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// MetricsConfig adds entities to the built-in metric catalog.
type MetricsConfig struct {
	Entities map[string]metric.Source `yaml:"entities,omitempty"`
}

type RulesConfig struct {
	Files []string `yaml:"files,omitempty"`
	Watch bool     `yaml:"watch"`
	// Rule sets not reloaded within this window are dropped. Empty keeps them.
	Retention string `yaml:"retention,omitempty"`
}

type DictionaryConfig struct {
	Snapshot string `yaml:"snapshot,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Server: ServerConfig{
			Addr:            ":8089",
			DataDir:         "data",
			KeysFile:        "data/keys.sealed",
			MasterKeyFile:   "data/master.key",
			ShutdownTimeout: "10s",
		},
		Rules: RulesConfig{Watch: true},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("REDLOGIC_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if level := os.Getenv("REDLOGIC_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	// REDLOGIC_MASTER_KEY is read by the key store.
}

// GetShutdownTimeout returns the server shutdown timeout as a duration.
func (c *Config) GetShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ShutdownTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetRetention returns the rule set retention, zero when unset.
func (c *Config) GetRetention() time.Duration {
	if c.Rules.Retention == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Rules.Retention)
	if err != nil {
		return 0
	}
	return d
}

// Catalog returns the built-in metric catalog extended with configured
// entities.
func (c *Config) Catalog() (*metric.Catalog, error) {
	cat := metric.DefaultCatalog().Clone()
	for name, src := range c.Metrics.Entities {
		if err := cat.Add(name, src); err != nil {
			return nil, fmt.Errorf("metrics.entities.%s: %w", name, err)
		}
	}
	return cat, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level %q", c.Logging.Level)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must be set")
	}
	if _, err := time.ParseDuration(c.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid server.shutdown_timeout %q: %w", c.Server.ShutdownTimeout, err)
	}
	if c.Rules.Retention != "" {
		if d, err := time.ParseDuration(c.Rules.Retention); err != nil || d < 0 {
			return fmt.Errorf("invalid rules.retention %q", c.Rules.Retention)
		}
	}
	if _, err := c.Catalog(); err != nil {
		return err
	}
	return nil
}
