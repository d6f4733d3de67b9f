package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/drawloop/internal/config"
	"github.com/nvandessel/drawloop/internal/driver"
	"github.com/nvandessel/drawloop/internal/loop"
	"github.com/nvandessel/drawloop/internal/pool"
	"github.com/nvandessel/drawloop/internal/render"
	"github.com/nvandessel/drawloop/internal/trace"
	"github.com/nvandessel/drawloop/internal/window"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one sequence of weighted draws",
		Long: `Configure a pool with equal weights and draw from it until the run
completes, rendering a chart after every draw.

Flags override the config file and DRAWLOOP_* environment variables.

Examples:
  drawloop run                                 # 16 items, 64 draws, terminal chart
  drawloop run --size 4 --steps 20 --seed 7    # Reproducible short run
  drawloop run --mode web                      # Live chart in the browser
  drawloop run --mode trace --trace run.jsonl  # Record without drawing
  drawloop run --trace run.jsonl --compress    # Chart and record`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applyRunFlags(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			plain, _ := cmd.Flags().GetBool("plain")
			return runSession(cmd, cfg, path, sessionOptions{plain: plain, linger: cfg.Render.Mode == config.ModeWeb})
		},
	}

	addRunFlags(cmd)
	cmd.Flags().String("mode", "", "Renderer: terminal, trace, web, window or none")
	cmd.Flags().Bool("plain", false, "Disable colour in the terminal chart")
	return cmd
}

// addRunFlags registers the flags shared by run and serve.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Int("size", 0, "Number of items in the pool")
	cmd.Flags().Int("steps", 0, "Number of draws")
	cmd.Flags().Uint64("seed", 0, "Random seed (0 seeds from the clock)")
	cmd.Flags().Duration("interval", 0, "Pause between draws")
	cmd.Flags().Duration("delay", 0, "Pause before the first draw")
	cmd.Flags().String("trace", "", "Also record every step to this trace file")
	cmd.Flags().Bool("compress", false, "zstd-compress the trace body")
	cmd.Flags().String("listen", "", "Chart server address for web mode")
	cmd.Flags().Bool("no-open", false, "Don't open the chart in a browser")
	cmd.Flags().Bool("watch", false, "Restart the run when the config file changes")
	cmd.Flags().Bool("clear", false, "Clear the terminal between frames")
}

// applyRunFlags copies every flag the user set onto cfg.
func applyRunFlags(cmd *cobra.Command, cfg *config.DrawloopConfig) {
	flags := cmd.Flags()
	if flags.Changed("size") {
		cfg.Pool.Size, _ = flags.GetInt("size")
	}
	if flags.Changed("steps") {
		cfg.Run.Steps, _ = flags.GetInt("steps")
	}
	if flags.Changed("seed") {
		cfg.Pool.Seed, _ = flags.GetUint64("seed")
	}
	if flags.Changed("interval") {
		d, _ := flags.GetDuration("interval")
		cfg.Run.Interval = config.Duration(d)
	}
	if flags.Changed("delay") {
		d, _ := flags.GetDuration("delay")
		cfg.Run.InitialDelay = config.Duration(d)
	}
	if flags.Changed("mode") {
		cfg.Render.Mode, _ = flags.GetString("mode")
	}
	if flags.Changed("trace") {
		cfg.Render.TracePath, _ = flags.GetString("trace")
	}
	if flags.Changed("compress") {
		cfg.Render.Compress, _ = flags.GetBool("compress")
	}
	if flags.Changed("listen") {
		cfg.Render.Listen, _ = flags.GetString("listen")
	}
	if flags.Changed("no-open") {
		noOpen, _ := flags.GetBool("no-open")
		cfg.Render.OpenBrowser = !noOpen
	}
	if flags.Changed("watch") {
		cfg.Run.Watch, _ = flags.GetBool("watch")
	}
	if flags.Changed("clear") {
		cfg.Render.Clear, _ = flags.GetBool("clear")
	}
}

type sessionOptions struct {
	// plain disables terminal colour.
	plain bool

	// linger keeps the chart server up after the run until Ctrl-C.
	linger bool
}

// runResult is the --json summary of a session.
type runResult struct {
	Seed       uint64      `json:"seed"`
	Steps      int         `json:"steps"`
	StepsTotal int         `json:"steps_total"`
	Sequence   []pool.Item `json:"sequence"`
	PickCounts []int       `json:"pick_counts"`
	DurationMs int64       `json:"duration_ms"`
	Aborted    bool        `json:"aborted"`
	TracePath  string      `json:"trace_path,omitempty"`
}

// runSession wires a driver to the configured renderers and drives it
// until the run completes or the user interrupts.
func runSession(cmd *cobra.Command, cfg *config.DrawloopConfig, configPath string, opts sessionOptions) (retErr error) {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	logger, decisions := newLogger(cfg, cmd.ErrOrStderr())
	defer decisions.Close()

	// Traces and summaries report the seed actually used.
	seed := cfg.Pool.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	logger.Debug("seeded pool", "seed", seed)

	d := driver.New(pool.New(pool.NewSource(seed)), nil)
	d.SetLogger(logger, decisions)

	var renderers render.Multi
	var chartErr <-chan error

	switch cfg.Render.Mode {
	case config.ModeTerminal:
		renderers = append(renderers, render.NewTerminal(cmd.OutOrStdout(), render.TerminalConfig{
			Scale: cfg.Render.BarScale,
			Clear: cfg.Render.Clear,
			Plain: opts.plain,
		}))
	case config.ModeWeb:
		srv, errCh, err := startChartServer(ctx, cmd, cfg.Render.Listen, cfg.Render.OpenBrowser, logger)
		if err != nil {
			return err
		}
		renderers = append(renderers, srv)
		chartErr = errCh
	}

	if cfg.Render.TracePath != "" {
		tw, err := trace.Create(cfg.Render.TracePath, trace.Header{
			PoolSize:   cfg.Pool.Size,
			TotalSteps: cfg.Run.Steps,
			Seed:       seed,
			Compressed: cfg.Render.Compress,
		})
		if err != nil {
			return fmt.Errorf("failed to create trace: %w", err)
		}
		defer func() {
			if err := tw.Close(); err != nil && retErr == nil {
				retErr = fmt.Errorf("failed to close trace: %w", err)
			}
		}()
		renderers = append(renderers, tw)
	}

	d.SetRenderer(renderers)
	if err := d.Configure(cfg.DriverConfig()); err != nil {
		return err
	}

	var sum loop.Summary
	var err error
	if cfg.Render.Mode == config.ModeWindow {
		if cfg.Run.Watch {
			logger.Warn("watch is not supported in window mode")
		}
		sum, err = window.Run(ctx, d, window.Options{
			Interval:     cfg.Run.Interval.Std(),
			InitialDelay: cfg.Run.InitialDelay.Std(),
			Logger:       logger,
		})
	} else {
		l := &loop.Loop{
			Driver:       d,
			Interval:     cfg.Run.Interval.Std(),
			InitialDelay: cfg.Run.InitialDelay.Std(),
			Reconfigure:  watchConfig(ctx, cfg, configPath, logger),
			Logger:       logger,
		}
		sum, err = l.Run(ctx)
	}

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, window.ErrAborted):
		sum.Aborted = true
	default:
		return err
	}

	if err := printSummary(cmd, d, seed, sum, cfg.Render.TracePath); err != nil {
		return err
	}

	if chartErr == nil {
		return nil
	}
	if opts.linger && !sum.Aborted && ctx.Err() == nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Run complete. Press Ctrl-C to stop.")
		<-ctx.Done()
	}
	cancel()
	if err := <-chartErr; err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// watchConfig returns a channel of driver shapes reloaded from configPath,
// or nil when watching is off.
func watchConfig(ctx context.Context, cfg *config.DrawloopConfig, configPath string, logger *slog.Logger) <-chan driver.Config {
	if !cfg.Run.Watch {
		return nil
	}
	if configPath == "" {
		logger.Warn("watch needs a config file; not watching")
		return nil
	}

	ch := make(chan driver.Config)
	go func() {
		err := config.Watch(ctx, configPath, logger, func(next *config.DrawloopConfig) {
			select {
			case ch <- next.DriverConfig():
			case <-ctx.Done():
			}
		})
		if err != nil {
			logger.Warn("config watch stopped", "error", err)
		}
	}()
	return ch
}

func printSummary(cmd *cobra.Command, d *driver.Driver, seed uint64, sum loop.Summary, tracePath string) error {
	jsonOut, _ := cmd.Flags().GetBool("json")

	res := runResult{
		Seed:       seed,
		Steps:      d.StepsCompleted(),
		StepsTotal: d.StepsTotal(),
		Sequence:   d.Sequence(),
		PickCounts: d.PickCounts(),
		DurationMs: sum.Duration.Milliseconds(),
		Aborted:    sum.Aborted,
		TracePath:  tracePath,
	}
	if res.Sequence == nil {
		res.Sequence = []pool.Item{}
	}

	if jsonOut {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(res)
	}

	out := cmd.OutOrStdout()
	verb := "Completed"
	if res.Aborted {
		verb = "Aborted after"
	}
	fmt.Fprintf(out, "%s %d/%d draws in %s\n", verb, res.Steps, res.StepsTotal, sum.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "Sequence: %s\n", render.FormatSequence(res.Sequence, 0))
	fmt.Fprintf(out, "Seed: %d\n", res.Seed)
	if res.TracePath != "" {
		fmt.Fprintf(out, "Trace: %s\n", res.TracePath)
	}
	return nil
}
