// Package main implements the fixstore command: an error fix knowledge
// store served over HTTP or MCP stdio.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "fixstore",
		Short: "Error fix knowledge store",
		Long: `fixstore remembers which code fixes resolved which errors, per tech stack,
and learns from feedback which fixes work.

Configuration is read from ~/.config/fixstore/config.yaml (or --config) and
FIXSTORE_* environment variables, e.g. FIXSTORE_STORAGE_BACKEND=chromem.`,
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/fixstore/config.yaml)")

	root.AddCommand(
		newServeCmd(&configPath),
		newMCPCmd(&configPath),
		newStatsCmd(&configPath),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "fixstore by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}
