package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/drawloop/internal/visualization"
)

// startChartServer starts the live chart server in the background and
// waits for it to bind. The returned channel yields ListenAndServe's result.
func startChartServer(ctx context.Context, cmd *cobra.Command, listen string, openBrowser bool, logger *slog.Logger) (*visualization.Server, <-chan error, error) {
	srv := visualization.NewServer(listen)
	srv.SetLogger(logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	// Wait for server to start
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if srv.Addr() != "" {
			break
		}
		select {
		case err := <-errCh:
			if err == nil {
				err = ctx.Err()
			}
			return nil, nil, fmt.Errorf("chart server failed to start: %w", err)
		case <-time.After(10 * time.Millisecond):
		}
	}

	addr := srv.Addr()
	if addr == "" {
		return nil, nil, fmt.Errorf("chart server failed to start")
	}

	url := visualization.ChartURL(addr)
	fmt.Fprintf(cmd.ErrOrStderr(), "Chart running at %s\n", url)

	if openBrowser {
		if err := visualization.OpenBrowser(url); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, url)
		}
	}
	return srv, errCh, nil
}
