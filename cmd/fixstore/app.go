package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixstore/internal/config"
	"github.com/fyrsmithlabs/fixstore/internal/errorfix"
	"github.com/fyrsmithlabs/fixstore/internal/fixstore"
	"github.com/fyrsmithlabs/fixstore/internal/logging"
	"github.com/fyrsmithlabs/fixstore/internal/secrets"
	"github.com/fyrsmithlabs/fixstore/internal/telemetry"
)

// app holds the components every command needs.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	svc    errorfix.Service
	tel    *telemetry.Telemetry
}

// loadConfig reads configuration from path, or the default location when
// path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	cfg, err := config.LoadWithFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newApp loads config, builds the logger and opens the store. reg may be
// nil to skip Prometheus registration.
func newApp(ctx context.Context, configPath string, reg prometheus.Registerer) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if cfg.Telemetry.ServiceVersion == "dev" {
		cfg.Telemetry.ServiceVersion = version
	}
	tel, err := telemetry.New(ctx, &cfg.Telemetry, logger.Named("telemetry"))
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	scrubber, err := secrets.New(&cfg.Secrets)
	if err != nil {
		_ = tel.Shutdown(context.Background())
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to build secret scrubber: %w", err)
	}

	backend, err := fixstore.Open(ctx, cfg.Storage.BackendConfig(), logger.Named("fixstore"))
	if err != nil {
		_ = tel.Shutdown(context.Background())
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Storage.Backend, err)
	}

	svc, err := errorfix.NewService(&errorfix.Config{
		MaxLimit:      cfg.Search.MaxLimit,
		MinSimilarity: cfg.Search.MinSimilarity,
		Scrubber:      scrubber,
	}, backend, logger.Named("errorfix"), reg)
	if err != nil {
		_ = backend.Close()
		_ = tel.Shutdown(context.Background())
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to create service: %w", err)
	}

	logger.Info("fix store opened",
		zap.String("backend", backend.Name()),
		zap.Int("dimension", backend.Dimension()),
	)
	return &app{cfg: cfg, logger: logger, svc: svc, tel: tel}, nil
}

// Close closes the service, then flushes telemetry and the logger.
func (a *app) Close() error {
	err := a.svc.Close()
	if terr := a.tel.Shutdown(context.Background()); terr != nil {
		a.logger.Warn("telemetry shutdown failed", zap.Error(terr))
	}
	_ = a.logger.Sync()
	return err
}
