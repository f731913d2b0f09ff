package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, uint16(8080), cfg.Port)
	assert.False(t, cfg.DatabaseEnabled)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, 16, cfg.ChallengeDifficulty)
	assert.Equal(t, 5*time.Minute, cfg.LivenessThreshold)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("NEUROSWARM_PORT", "9090")
	t.Setenv("NEUROSWARM_LOG_LEVEL", "debug")
	t.Setenv("NEUROSWARM_SWEEP_INTERVAL", "30s")
	t.Setenv("NEUROSWARM_DB_ENABLED", "true")
	t.Setenv("NEUROSWARM_DB_HOST", "db.internal")
	t.Setenv("NEUROSWARM_SWARM_ID", "swarm-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, uint16(9090), cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.True(t, cfg.DatabaseEnabled)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "swarm-test", cfg.SwarmID)
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
}

func TestLoadAppliesConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9999\nlog_level: warn\npool_floor: 3\ncold_start_batch: 6\n"), 0o600))
	t.Setenv("NEUROSWARM_CONFIG_FILE", path)
	// Environment still wins over the file.
	t.Setenv("NEUROSWARM_LOG_LEVEL", "error")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, uint16(9999), cfg.Port)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, 3, cfg.PoolFloor)
	assert.Equal(t, 6, cfg.ColdStartBatch)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("NEUROSWARM_PORT", "80")
	_, err := Load()
	assert.Error(t, err, "privileged ports are rejected")

	t.Setenv("NEUROSWARM_PORT", "not-a-port")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("NEUROSWARM_PORT", "8080")
	t.Setenv("NEUROSWARM_SWEEP_INTERVAL", "soon")
	_, err = Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero pool floor", func(c *Config) { c.PoolFloor = 0 }},
		{"cold start below floor", func(c *Config) { c.ColdStartBatch = c.PoolFloor - 1 }},
		{"zero retry budget", func(c *Config) { c.RetryBudget = 0 }},
		{"difficulty too high", func(c *Config) { c.ChallengeDifficulty = 65 }},
		{"zero eviction age", func(c *Config) { c.EvictionAge = 0 }},
		{"zero leader duty timeout", func(c *Config) { c.LeaderDutyTimeout = 0 }},
		{"missing version", func(c *Config) { c.Version = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEnvLoader(t *testing.T) {
	t.Setenv("NEUROSWARM_SAMPLE_STRING", "hello")
	t.Setenv("NEUROSWARM_SAMPLE_INT", "42")
	t.Setenv("NEUROSWARM_SAMPLE_BOOL", "1")

	loader := NewEnvLoader(DefaultEnvPrefix)
	loader.LoadAll()

	assert.True(t, loader.Has("SAMPLE_STRING"))
	assert.False(t, loader.Has("SAMPLE_MISSING"))
	assert.Equal(t, "hello", loader.GetString("SAMPLE_STRING", "fallback"))
	assert.Equal(t, "fallback", loader.GetString("SAMPLE_MISSING", "fallback"))

	n, err := loader.GetInt("SAMPLE_INT", 0)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	assert.True(t, loader.GetBool("SAMPLE_BOOL", false))

	_, err = loader.Required("SAMPLE_MISSING")
	assert.Error(t, err)
}
