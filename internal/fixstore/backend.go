package fixstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Backend names accepted by Config.Backend.
const (
	BackendSQLite  = "sqlite"
	BackendChromem = "chromem"
	BackendQdrant  = "qdrant"
)

// Backend is durable keyed storage of fix records.
//
// Implementations must be safe for concurrent use. Insert and
// UpdateSuccessRate are each atomic: a reader never observes a half-written
// record.
type Backend interface {
	// Insert persists rec verbatim. Returns ErrDuplicateKey if rec.ID exists.
	Insert(ctx context.Context, rec *FixRecord) error

	// Get returns a copy of the record with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*FixRecord, error)

	// ScanByTechStack returns every record whose tech stack equals techStack
	// exactly. Order is unspecified.
	ScanByTechStack(ctx context.Context, techStack string) ([]*FixRecord, error)

	// UpdateSuccessRate replaces the success rate of id with fn(current).
	// The read and the write happen as one atomic step. Returns the updated
	// record, or ErrNotFound.
	UpdateSuccessRate(ctx context.Context, id string, fn RateFunc) (*FixRecord, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Dimension returns the embedding dimension fixed at construction.
	Dimension() int

	// Name returns the backend name.
	Name() string

	// Close releases the backend's resources.
	Close() error
}

// Config selects and configures a Backend.
type Config struct {
	// Backend is one of BackendSQLite, BackendChromem, BackendQdrant.
	// Default: sqlite
	Backend string

	// Path is the database file (sqlite) or directory (chromem).
	// Empty chromem path keeps data in memory only.
	// Default for sqlite: "~/.config/fixstore/fixes.db"
	Path string

	// Dimension is the fixed embedding dimension. Required.
	Dimension int

	// Compress enables gzip compression of chromem files.
	Compress bool

	// Qdrant configures the qdrant backend.
	Qdrant QdrantConfig
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = BackendSQLite
	}
	if c.Backend == BackendSQLite && c.Path == "" {
		c.Path = "~/.config/fixstore/fixes.db"
	}
	if c.Backend == BackendQdrant {
		c.Qdrant.ApplyDefaults()
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	switch c.Backend {
	case BackendSQLite:
		if c.Path == "" {
			return fmt.Errorf("%w: sqlite path is required", ErrInvalidConfig)
		}
	case BackendChromem:
	case BackendQdrant:
		return c.Qdrant.Validate()
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	return nil
}

// Open constructs the backend selected by cfg.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case BackendSQLite:
		return NewSQLiteBackend(ctx, cfg.Path, cfg.Dimension, logger)
	case BackendChromem:
		return NewChromemBackend(cfg.Path, cfg.Compress, cfg.Dimension, logger)
	default:
		return NewQdrantBackend(ctx, cfg.Qdrant, cfg.Dimension, logger)
	}
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
