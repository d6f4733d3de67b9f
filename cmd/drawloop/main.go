package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/nvandessel/drawloop/internal/config"
	"github.com/nvandessel/drawloop/internal/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "drawloop",
		Short: "Weighted draws with redistribution, step by step",
		Long: `drawloop draws one item at a time from a pool of weighted items.
The picked item's weight is shared equally among the others, so it can
never be picked twice in a row, and the weights are charted after every
draw.

Runs can be shown in the terminal, recorded to a trace file, streamed to a
browser, shown in a native window, or driven by an agent over MCP.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.drawloop/config.yaml or config.toml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newServeCmd(),
		newReplayCmd(),
		newMCPServerCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

// loadConfig loads and validates the configuration named by --config.
func loadConfig(cmd *cobra.Command) (*config.DrawloopConfig, string, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		if p, found, err := config.DefaultPath(); err == nil && found {
			path = p
		}
	}
	cfg, err := config.LoadPath(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, path, nil
}

// newLogger builds the operational logger and, at debug level or below,
// the decision log. The decision logger may be nil.
func newLogger(cfg *config.DrawloopConfig, w io.Writer) (*slog.Logger, *logging.DecisionLogger) {
	logger := logging.NewLogger(cfg.Logging.Level, w)
	var decisions *logging.DecisionLogger
	if cfg.DecisionsEnabled() {
		decisions = logging.NewDecisionLogger(cfg.LogDir(), cfg.Logging.Level)
	}
	return logger, decisions
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
