// Package config loads fixstore configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/fixstore/internal/fixstore"
	"github.com/fyrsmithlabs/fixstore/internal/logging"
	"github.com/fyrsmithlabs/fixstore/internal/secrets"
	"github.com/fyrsmithlabs/fixstore/internal/telemetry"
)

// Config is the complete fixstore configuration.
type Config struct {
	Storage   StorageConfig    `koanf:"storage"`
	Search    SearchConfig     `koanf:"search"`
	Server    ServerConfig     `koanf:"server"`
	Logging   logging.Config   `koanf:"logging"`
	Telemetry telemetry.Config `koanf:"telemetry"`
	Secrets   secrets.Config   `koanf:"secrets"`
}

// StorageConfig selects the fix record backend.
type StorageConfig struct {
	Backend   string       `koanf:"backend"`
	Path      string       `koanf:"path"`
	Dimension int          `koanf:"dimension"`
	Compress  bool         `koanf:"compress"`
	Qdrant    QdrantConfig `koanf:"qdrant"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	UseTLS     bool   `koanf:"use_tls"`
	APIKey     Secret `koanf:"api_key"`
	Collection string `koanf:"collection"`
}

// SearchConfig tunes fix search.
type SearchConfig struct {
	DefaultLimit  int     `koanf:"default_limit"`
	MaxLimit      int     `koanf:"max_limit"`
	MinSimilarity float64 `koanf:"min_similarity"`

	// DefaultSuccessRate is the initial rate of fixes recorded without one.
	DefaultSuccessRate float64 `koanf:"default_success_rate"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	RateLimit       float64  `koanf:"rate_limit"`
	RateBurst       int      `koanf:"rate_burst"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:   fixstore.BackendSQLite,
			Dimension: 384,
		},
		Search: SearchConfig{
			DefaultLimit:       10,
			MaxLimit:           100,
			DefaultSuccessRate: 0.5,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            9191,
			ShutdownTimeout: Duration(10 * time.Second),
			RateLimit:       50,
			RateBurst:       100,
		},
		Logging:   *logging.NewDefaultConfig(),
		Telemetry: *telemetry.NewDefaultConfig(),
		Secrets:   *secrets.DefaultConfig(),
	}
}

// BackendConfig converts the storage section to a fixstore.Config.
func (s StorageConfig) BackendConfig() fixstore.Config {
	return fixstore.Config{
		Backend:   s.Backend,
		Path:      s.Path,
		Dimension: s.Dimension,
		Compress:  s.Compress,
		Qdrant: fixstore.QdrantConfig{
			Host:       s.Qdrant.Host,
			Port:       s.Qdrant.Port,
			UseTLS:     s.Qdrant.UseTLS,
			APIKey:     s.Qdrant.APIKey.Value(),
			Collection: s.Qdrant.Collection,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	backend := c.Storage.BackendConfig()
	backend.ApplyDefaults()
	if err := backend.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	if c.Search.DefaultLimit < 1 {
		return fmt.Errorf("search default_limit must be positive, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("search max_limit (%d) must be >= default_limit (%d)", c.Search.MaxLimit, c.Search.DefaultLimit)
	}
	if c.Search.MinSimilarity < -1 || c.Search.MinSimilarity > 1 {
		return fmt.Errorf("search min_similarity must be in [-1, 1], got %v", c.Search.MinSimilarity)
	}
	if err := fixstore.ValidateSuccessRate(c.Search.DefaultSuccessRate); err != nil {
		return fmt.Errorf("search default_success_rate: %w", err)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return errors.New("server rate_limit and rate_burst must not be negative")
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	if _, err := secrets.New(&c.Secrets); err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	return nil
}
