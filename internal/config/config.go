package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the relay service and the local sync
// tooling. Environment variables are parsed from the BILLSYNC_ prefix.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// KV backends. The relay federates across every backend that is
	// configured; with none configured it runs on the in-memory store.
	RedisAddrs    []string `envconfig:"REDIS_ADDRS" default:""`
	RedisPassword string   `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int      `envconfig:"REDIS_DB" default:"0"`
	PostgresDSN   string   `envconfig:"POSTGRES_DSN" default:""`
	MemoryBackend bool     `envconfig:"MEMORY_BACKEND" default:"false"`

	// Local store (CLI tooling)
	DBPath string `envconfig:"DB_PATH" default:"billsync.db"`

	// Relay endpoint the sync client talks to
	RelayURL string `envconfig:"RELAY_URL" default:"http://localhost:8080"`

	// Poll cadences (sync client)
	PollIntervalSeconds      int `envconfig:"POLL_INTERVAL_SECONDS" default:"30"`
	OwnerPollIntervalSeconds int `envconfig:"OWNER_POLL_INTERVAL_SECONDS" default:"300"`

	// Health probe cadence
	HealthIntervalSeconds int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"15"`
}

// ResolveDefaults normalizes backend settings: empty address entries are
// dropped, and a relay with no external backend falls back to the in-memory
// store so a bare `billsync-relay` still serves.
func (c *Config) ResolveDefaults() error {
	addrs := make([]string, 0, len(c.RedisAddrs))
	for _, a := range c.RedisAddrs {
		if s := strings.TrimSpace(a); s != "" {
			addrs = append(addrs, s)
		}
	}
	c.RedisAddrs = addrs

	if len(c.RedisAddrs) == 0 && c.PostgresDSN == "" {
		c.MemoryBackend = true
	}
	if c.HTTPPort <= 0 {
		return fmt.Errorf("invalid HTTP_PORT: %d", c.HTTPPort)
	}
	if c.PollIntervalSeconds <= 0 || c.OwnerPollIntervalSeconds <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}
	return nil
}

// New creates a new Config by parsing environment variables.
// Example: BILLSYNC_HTTP_PORT, BILLSYNC_REDIS_ADDRS, BILLSYNC_POSTGRES_DSN.
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("BILLSYNC", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Int("port", cfg.HTTPPort).
		Int("redis_backends", len(cfg.RedisAddrs)).
		Bool("postgres_backend", cfg.PostgresDSN != "").
		Bool("memory_backend", cfg.MemoryBackend).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing
func NewForTesting() *Config {
	return &Config{
		Environment:              EnvTesting,
		HTTPPort:                 8080,
		MemoryBackend:            true,
		DBPath:                   "billsync-test.db",
		RelayURL:                 "http://localhost:8080",
		PollIntervalSeconds:      1,
		OwnerPollIntervalSeconds: 1,
		HealthIntervalSeconds:    1,
	}
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
