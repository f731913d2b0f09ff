// Package config loads the process configuration from an optional YAML file
// overlaid by prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix is the default prefix for environment variables
const (
	DefaultEnvPrefix = "NEUROSWARM_"
	MinPort          = 1024
	MaxPort          = 65535
)

// Config represents the process configuration
type Config struct {
	// Network configuration
	Host       string `yaml:"host"`
	Port       uint16 `yaml:"port"`
	ListenAddr string `yaml:"-"`
	Version    string `yaml:"version"`

	// Storage: disabled selects the in-memory store
	DatabaseEnabled bool           `yaml:"database_enabled"`
	Database        DatabaseConfig `yaml:"database"`

	// Events: empty NATSURL disables publishing
	NATSURL string `yaml:"nats_url"`

	// Logging
	LogLevel string `yaml:"log_level"`

	// Registry
	LivenessThreshold time.Duration `yaml:"liveness_threshold"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`

	// Task pool
	PoolFloor         int           `yaml:"pool_floor"`
	ColdStartBatch    int           `yaml:"cold_start_batch"`
	ReplenishInterval time.Duration `yaml:"replenish_interval"`
	RetryBudget       int           `yaml:"retry_budget"`

	// Swarm
	SwarmID             string        `yaml:"swarm_id"`
	ChallengeDifficulty int           `yaml:"challenge_difficulty"`
	ChallengeTTL        time.Duration `yaml:"challenge_ttl"`
	EvictionAge         time.Duration `yaml:"eviction_age"`
	LeaderDutyTimeout   time.Duration `yaml:"leader_duty_timeout"`
	SwarmTickInterval   time.Duration `yaml:"swarm_tick_interval"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	User        string        `yaml:"user"`
	Password    string        `yaml:"password"`
	Name        string        `yaml:"name"`
	MaxConns    int           `yaml:"max_conns"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
	HealthCheck time.Duration `yaml:"health_check"`
	SSLMode     string        `yaml:"ssl_mode"`
}

// DefaultDatabaseConfig returns the default database configuration
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:        "localhost",
		Port:        5432,
		User:        "postgres",
		Password:    "postgres",
		Name:        "neuroswarm",
		MaxConns:    10,
		MaxIdleTime: time.Minute * 3,
		HealthCheck: time.Second * 5,
		SSLMode:     "disable",
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Host:                "0.0.0.0",
		Port:                8080,
		Version:             "1.0.0",
		Database:            DefaultDatabaseConfig(),
		LogLevel:            "info",
		LivenessThreshold:   5 * time.Minute,
		SweepInterval:       60 * time.Second,
		PoolFloor:           5,
		ColdStartBatch:      10,
		ReplenishInterval:   10 * time.Second,
		RetryBudget:         3,
		ChallengeDifficulty: 16,
		ChallengeTTL:        2 * time.Minute,
		EvictionAge:         90 * time.Second,
		LeaderDutyTimeout:   15 * time.Second,
		SwarmTickInterval:   5 * time.Second,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port < MinPort {
		return fmt.Errorf("port must be between %d and %d", MinPort, MaxPort)
	}
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if c.LivenessThreshold <= 0 {
		return fmt.Errorf("liveness threshold must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	if c.PoolFloor <= 0 {
		return fmt.Errorf("pool floor must be positive")
	}
	if c.ColdStartBatch < c.PoolFloor {
		return fmt.Errorf("cold start batch (%d) must be at least the pool floor (%d)",
			c.ColdStartBatch, c.PoolFloor)
	}
	if c.ReplenishInterval <= 0 {
		return fmt.Errorf("replenish interval must be positive")
	}
	if c.RetryBudget <= 0 {
		return fmt.Errorf("retry budget must be positive")
	}
	if c.ChallengeDifficulty <= 0 || c.ChallengeDifficulty > 64 {
		return fmt.Errorf("challenge difficulty must be between 1 and 64")
	}
	if c.EvictionAge <= 0 {
		return fmt.Errorf("eviction age must be positive")
	}
	if c.LeaderDutyTimeout <= 0 {
		return fmt.Errorf("leader duty timeout must be positive")
	}
	if c.SwarmTickInterval <= 0 {
		return fmt.Errorf("swarm tick interval must be positive")
	}
	return nil
}

// Load loads configuration: defaults, then the YAML file named by
// NEUROSWARM_CONFIG_FILE if set, then environment variable overrides.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	loader := NewEnvLoader(DefaultEnvPrefix)
	loader.LoadAll()

	cfg := Default()

	if path := loader.GetString("CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(loader); err != nil {
		return nil, err
	}

	cfg.ListenAddr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(loader *EnvLoader) error {
	var err error

	c.Host = loader.GetString("HOST", c.Host)
	if c.Port, err = loader.GetUint16("PORT", c.Port); err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	c.Version = loader.GetString("VERSION", c.Version)
	c.NATSURL = loader.GetString("NATS_URL", c.NATSURL)
	c.LogLevel = loader.GetString("LOG_LEVEL", c.LogLevel)

	if c.LivenessThreshold, err = loader.GetDuration("LIVENESS_THRESHOLD", c.LivenessThreshold); err != nil {
		return fmt.Errorf("invalid liveness threshold: %w", err)
	}
	if c.SweepInterval, err = loader.GetDuration("SWEEP_INTERVAL", c.SweepInterval); err != nil {
		return fmt.Errorf("invalid sweep interval: %w", err)
	}
	if c.PoolFloor, err = loader.GetInt("POOL_FLOOR", c.PoolFloor); err != nil {
		return fmt.Errorf("invalid pool floor: %w", err)
	}
	if c.ColdStartBatch, err = loader.GetInt("COLD_START_BATCH", c.ColdStartBatch); err != nil {
		return fmt.Errorf("invalid cold start batch: %w", err)
	}
	if c.ReplenishInterval, err = loader.GetDuration("REPLENISH_INTERVAL", c.ReplenishInterval); err != nil {
		return fmt.Errorf("invalid replenish interval: %w", err)
	}
	if c.RetryBudget, err = loader.GetInt("RETRY_BUDGET", c.RetryBudget); err != nil {
		return fmt.Errorf("invalid retry budget: %w", err)
	}

	c.DatabaseEnabled = loader.GetBool("DB_ENABLED", c.DatabaseEnabled)
	c.Database.Host = loader.GetString("DB_HOST", c.Database.Host)
	if c.Database.Port, err = loader.GetInt("DB_PORT", c.Database.Port); err != nil {
		return fmt.Errorf("invalid database port: %w", err)
	}
	c.Database.User = loader.GetString("DB_USER", c.Database.User)
	c.Database.Password = loader.GetString("DB_PASSWORD", c.Database.Password)
	c.Database.Name = loader.GetString("DB_NAME", c.Database.Name)
	c.Database.SSLMode = loader.GetString("DB_SSLMODE", c.Database.SSLMode)

	c.SwarmID = loader.GetString("SWARM_ID", c.SwarmID)
	if c.ChallengeDifficulty, err = loader.GetInt("CHALLENGE_DIFFICULTY", c.ChallengeDifficulty); err != nil {
		return fmt.Errorf("invalid challenge difficulty: %w", err)
	}
	if c.ChallengeTTL, err = loader.GetDuration("CHALLENGE_TTL", c.ChallengeTTL); err != nil {
		return fmt.Errorf("invalid challenge ttl: %w", err)
	}
	if c.EvictionAge, err = loader.GetDuration("EVICTION_AGE", c.EvictionAge); err != nil {
		return fmt.Errorf("invalid eviction age: %w", err)
	}
	if c.LeaderDutyTimeout, err = loader.GetDuration("LEADER_DUTY_TIMEOUT", c.LeaderDutyTimeout); err != nil {
		return fmt.Errorf("invalid leader duty timeout: %w", err)
	}
	if c.SwarmTickInterval, err = loader.GetDuration("SWARM_TICK_INTERVAL", c.SwarmTickInterval); err != nil {
		return fmt.Errorf("invalid swarm tick interval: %w", err)
	}

	return nil
}
