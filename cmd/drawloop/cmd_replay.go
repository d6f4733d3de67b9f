package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/drawloop/internal/driver"
	"github.com/nvandessel/drawloop/internal/pool"
	"github.com/nvandessel/drawloop/internal/render"
	"github.com/nvandessel/drawloop/internal/trace"
)

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <trace>",
		Short: "Play back a recorded trace in the terminal",
		Long: `Read a trace written by "drawloop run --trace" and draw its frames
again. Compressed traces are detected from the header.

Examples:
  drawloop replay run.jsonl                  # Original pace from config
  drawloop replay run.jsonl --interval 0     # As fast as possible
  drawloop replay run.jsonl --json           # Header and final sequence only`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			plain, _ := cmd.Flags().GetBool("plain")
			clearScreen, _ := cmd.Flags().GetBool("clear")

			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			interval := cfg.Run.Interval.Std()
			if cmd.Flags().Changed("interval") {
				interval, _ = cmd.Flags().GetDuration("interval")
			}

			r, err := trace.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open trace: %w", err)
			}
			defer r.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			var term *render.Terminal
			if !jsonOut {
				h := r.Header()
				fmt.Fprintf(cmd.OutOrStdout(), "Trace of %d items, %d steps, seed %d (recorded %s)\n",
					h.PoolSize, h.TotalSteps, h.Seed, h.CreatedAt.Local().Format(time.RFC3339))
				term = render.NewTerminal(cmd.OutOrStdout(), render.TerminalConfig{
					Scale: cfg.Render.BarScale,
					Clear: clearScreen,
					Plain: plain,
				})
			}

			var last driver.StepResult
			frames := 0
			for {
				res, err := r.Next()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return err
				}
				if frames > 0 && interval > 0 {
					select {
					case <-ctx.Done():
						return nil
					case <-time.After(interval):
					}
				}
				if term != nil {
					if err := term.Render(ctx, res); err != nil {
						return err
					}
				}
				last = res
				frames++
			}

			if jsonOut {
				seq := last.Sequence
				if seq == nil {
					seq = []pool.Item{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"header":   r.Header(),
					"frames":   frames,
					"sequence": seq,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Replayed %d frames\n", frames)
			return nil
		},
	}

	cmd.Flags().Duration("interval", 0, "Pause between frames (default run.interval)")
	cmd.Flags().Bool("plain", false, "Disable colour")
	cmd.Flags().Bool("clear", false, "Clear the terminal between frames")
	return cmd
}
