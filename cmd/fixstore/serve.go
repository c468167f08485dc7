package main

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixstore/internal/http"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the fix store HTTP API until SIGINT or SIGTERM.

Examples:
  # Serve with the default config
  fixstore serve

  # Serve an in-memory chromem store on another port
  FIXSTORE_STORAGE_BACKEND=chromem FIXSTORE_SERVER_PORT=8080 fixstore serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, *configPath)
		},
	}
}

// runServe serves HTTP until ctx is cancelled, then shuts down within the
// configured timeout.
func runServe(ctx context.Context, configPath string) error {
	a, err := newApp(ctx, configPath, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := http.NewServer(a.svc, prometheus.DefaultGatherer, a.logger.Named("http"), &http.Config{
		Host:         a.cfg.Server.Host,
		Port:         a.cfg.Server.Port,
		DefaultLimit:       a.cfg.Search.DefaultLimit,
		DefaultSuccessRate: &a.cfg.Search.DefaultSuccessRate,
		RateLimit:          a.cfg.Server.RateLimit,
		RateBurst:          a.cfg.Server.RateBurst,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down", zap.Duration("timeout", a.cfg.Server.ShutdownTimeout.Duration()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
