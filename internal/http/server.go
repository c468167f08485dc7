// Package http provides the HTTP API for fixstore.
package http

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/fixstore/internal/errorfix"
	"github.com/fyrsmithlabs/fixstore/internal/fixstore"
	"github.com/fyrsmithlabs/fixstore/internal/logging"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Server provides HTTP endpoints for fixstore.
type Server struct {
	echo    *echo.Echo
	svc     errorfix.Service
	logger  *zap.Logger
	config  *Config
	metrics *HTTPMetrics

	defaultRate float64
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// DefaultLimit applies to searches that omit a limit.
	DefaultLimit int

	// DefaultSuccessRate applies to fixes recorded without a rate.
	// Nil means 0.5.
	DefaultSuccessRate *float64

	// RateLimit is the sustained requests per second allowed per client IP
	// on /api/v1. Zero disables limiting.
	RateLimit float64

	// RateBurst is the burst allowed above RateLimit (default: 2x RateLimit).
	RateBurst int
}

// NewServer creates a new HTTP server. gatherer backs /metrics and may be
// nil to use the default Prometheus registry.
func NewServer(svc errorfix.Service, gatherer prometheus.Gatherer, logger *zap.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9191,
		}
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	successRate := defaultSuccessRate
	if cfg.DefaultSuccessRate != nil {
		successRate = *cfg.DefaultSuccessRate
	}
	if err := fixstore.ValidateSuccessRate(successRate); err != nil {
		return nil, fmt.Errorf("default success rate: %w", err)
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		svc:     svc,
		logger:  logger,
		config:  cfg,
		metrics: NewHTTPMetrics(logger),

		defaultRate: successRate,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.metrics.MetricsMiddleware())
	e.Use(s.requestLogger)

	var apiMiddleware []echo.MiddlewareFunc
	if limiter := s.rateLimiter(); limiter != nil {
		apiMiddleware = append(apiMiddleware, limiter)
	}
	s.registerRoutes(gatherer, apiMiddleware...)

	return s, nil
}

// requestLogger logs each request and puts a request-scoped logger in the
// request context.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		requestID := c.Response().Header().Get(echo.HeaderXRequestID)

		ctx := logging.WithRequestID(c.Request().Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger.With(zap.String("request_id", requestID)))
		c.SetRequest(c.Request().WithContext(ctx))

		err := next(c)
		if err != nil {
			// Let echo write the response so the logged status is final.
			c.Error(err)
		}

		s.logger.Info("http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", requestID),
		)
		return nil
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes(gatherer prometheus.Gatherer, apiMiddleware ...echo.MiddlewareFunc) {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1", apiMiddleware...)
	v1.POST("/fixes", s.handleRecord)
	v1.POST("/fixes/search", s.handleSearch)
	v1.GET("/fixes/:id", s.handleGet)
	v1.POST("/fixes/:id/feedback", s.handleFeedback)
	v1.GET("/stats", s.handleStats)
}

// rateLimiter returns a per-IP token bucket middleware, or nil when
// limiting is disabled.
func (s *Server) rateLimiter() echo.MiddlewareFunc {
	if s.config.RateLimit <= 0 {
		return nil
	}
	burst := s.config.RateBurst
	if burst <= 0 {
		burst = int(math.Ceil(2 * s.config.RateLimit))
	}
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(s.config.RateLimit),
		Burst:     burst,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			logging.FromContext(c.Request().Context()).Warn("rate limit exceeded", zap.String("client", identifier))
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		},
	})
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
