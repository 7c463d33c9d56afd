package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coffersTech/redlogic/internal/metric"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, ":8089", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.GetShutdownTimeout())
	assert.Zero(t, cfg.GetRetention())
	assert.NoError(t, cfg.Validate())
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("REDLOGIC_ADDR", "")
	t.Setenv("REDLOGIC_LOG_LEVEL", "")

	path := filepath.Join(t.TempDir(), "nested", "redlogic.yaml")

	cfg := DefaultConfig()
	cfg.Logging.JSON = true
	cfg.Rules.Files = []string{"rules/cleanup.yaml"}
	cfg.Rules.Retention = "24h"
	cfg.Metrics.Entities = map[string]metric.Source{
		"visits": {Table: "visits", Column: "visit_id"},
	}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
	assert.Equal(t, 24*time.Hour, loaded.GetRetention())

	cat, err := loaded.Catalog()
	require.NoError(t, err)
	assert.Equal(t, []string{"patients", "studies", "visits"}, cat.Entities())
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("REDLOGIC_ADDR", "")
	t.Setenv("REDLOGIC_LOG_LEVEL", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging: [\n"), 0644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("REDLOGIC_ADDR", "127.0.0.1:9999")
	t.Setenv("REDLOGIC_LOG_LEVEL", "debug")

	path := filepath.Join(t.TempDir(), "redlogic.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":1\"\nlogging:\n  level: warn\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
		{"no addr", func(c *Config) { c.Server.Addr = "" }},
		{"bad timeout", func(c *Config) { c.Server.ShutdownTimeout = "soon" }},
		{"bad retention", func(c *Config) { c.Rules.Retention = "-1h" }},
		{"bad entity", func(c *Config) {
			c.Metrics.Entities = map[string]metric.Source{"x": {Table: "a b", Column: "c"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
