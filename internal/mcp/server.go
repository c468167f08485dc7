package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixstore/internal/errorfix"
	"github.com/fyrsmithlabs/fixstore/internal/fixstore"
)

// Server is an MCP server backed by an errorfix.Service.
type Server struct {
	mcp     *mcp.Server
	svc     errorfix.Service
	metrics *Metrics
	logger  *zap.Logger
	config  *Config

	defaultRate float64
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "fixstore")
	Name string

	// Version is the server version (default: "1.0.0")
	Version string

	// Logger for structured logging
	Logger *zap.Logger

	// DefaultLimit applies to fix_search calls that omit a limit (default: 10)
	DefaultLimit int

	// DefaultSuccessRate applies to fix_record calls that omit a rate.
	// Nil means 0.5.
	DefaultSuccessRate *float64
}

// defaultSuccessRate is the initial rate of a fix recorded without one.
const defaultSuccessRate = 0.5

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:         "fixstore",
		Version:      "1.0.0",
		Logger:       zap.NewNop(),
		DefaultLimit: 10,
	}
}

// NewServer creates an MCP server for svc. The caller keeps ownership of
// svc and closes it after Run returns.
func NewServer(cfg *Config, svc errorfix.Service) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("errorfix service is required")
	}
	defaults := DefaultConfig()
	if cfg == nil {
		cfg = defaults
	}
	if cfg.Name == "" {
		cfg.Name = defaults.Name
	}
	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = defaults.DefaultLimit
	}
	rate := defaultSuccessRate
	if cfg.DefaultSuccessRate != nil {
		rate = *cfg.DefaultSuccessRate
	}
	if err := fixstore.ValidateSuccessRate(rate); err != nil {
		return nil, fmt.Errorf("default success rate: %w", err)
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		svc:     svc,
		metrics: NewMetrics(cfg.Logger),
		logger:  cfg.Logger,
		config:  cfg,

		defaultRate: rate,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	return s, nil
}

// Run serves MCP on the stdio transport until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.RunTransport(ctx, &mcp.StdioTransport{})
}

// RunTransport serves MCP on t.
func (s *Server) RunTransport(ctx context.Context, t mcp.Transport) error {
	s.logger.Info("starting MCP server", zap.String("name", s.config.Name))
	if err := s.mcp.Run(ctx, t); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
