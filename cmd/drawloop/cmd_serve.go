package main

import (
	"github.com/spf13/cobra"

	"github.com/nvandessel/drawloop/internal/config"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a live chart in the browser",
		Long: `Start the chart server, run the draws, and keep serving until Ctrl-C.

The chart opens in a browser unless --no-open is given. With a config
file, edits to pool.size or run.steps restart the run (disable with
--watch=false).

Examples:
  drawloop serve                        # Random port, opens a browser
  drawloop serve --listen localhost:8080 --no-open`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applyServeFlags(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runSession(cmd, cfg, path, sessionOptions{linger: true})
		},
	}

	addRunFlags(cmd)
	return cmd
}

// applyServeFlags sets the serve defaults on cfg, then applies the flags
// the user set.
func applyServeFlags(cmd *cobra.Command, cfg *config.DrawloopConfig) {
	cfg.Render.Mode = config.ModeWeb
	cfg.Render.OpenBrowser = true
	cfg.Run.Watch = true
	applyRunFlags(cmd, cfg)
}
