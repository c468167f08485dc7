package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/fixstore/internal/mcp"
)

func newMCPCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP tools on stdio",
		Long: `Serve the fix_record, fix_search, fix_feedback and fix_get tools over the
MCP stdio transport. Logs go to stderr; stdout carries the protocol.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runMCP(ctx, *configPath)
		},
	}
}

func runMCP(ctx context.Context, configPath string) error {
	a, err := newApp(ctx, configPath, nil)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	srv, err := mcp.NewServer(&mcp.Config{
		Logger:             a.logger.Named("mcp"),
		Version:            version,
		DefaultLimit:       a.cfg.Search.DefaultLimit,
		DefaultSuccessRate: &a.cfg.Search.DefaultSuccessRate,
	}, a.svc)
	if err != nil {
		return err
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
