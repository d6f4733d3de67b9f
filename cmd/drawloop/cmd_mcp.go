package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/drawloop/internal/config"
	"github.com/nvandessel/drawloop/internal/driver"
	"github.com/nvandessel/drawloop/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Run drawloop as an MCP server over stdio",
		Long: `Expose drawloop_configure, drawloop_step and drawloop_status to an MCP
client such as an AI coding agent. The agent decides when each draw
happens; the run status is also readable as drawloop://run/status.

Logs go to stderr because stdout carries the protocol.

Examples:
  drawloop mcp-server
  drawloop mcp-server --chart           # Also stream steps to a browser chart`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			logger, decisions := newLogger(cfg, cmd.ErrOrStderr())
			defer decisions.Close()

			var renderer driver.Renderer
			chart, _ := cmd.Flags().GetBool("chart")
			if chart {
				srv, _, err := startChartServer(ctx, cmd, cfg.Render.Listen, cfg.Render.OpenBrowser, logger)
				if err != nil {
					return err
				}
				renderer = srv
			}

			serverCfg := &mcp.Config{
				Name:      "drawloop",
				Version:   version,
				Seed:      cfg.Pool.Seed,
				Renderer:  renderer,
				Logger:    logger,
				Decisions: decisions,
			}
			if cfg.MCP.Audit {
				dir, err := config.Dir()
				if err != nil {
					return err
				}
				serverCfg.AuditDir = dir
			}

			server, err := mcp.NewServer(serverCfg)
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			return server.Run(ctx)
		},
	}

	cmd.Flags().Bool("chart", false, "Serve a live chart of the agent's draws")
	return cmd
}
