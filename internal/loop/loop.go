// Package loop drives a step driver on a timer until the run completes or
// the caller cancels.
package loop

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nvandessel/drawloop/internal/driver"
	"github.com/nvandessel/drawloop/internal/logging"
	"github.com/nvandessel/drawloop/internal/pool"
)

// Stepper is the part of driver.Driver the loop needs.
type Stepper interface {
	Configure(cfg driver.Config) error
	Step(ctx context.Context) (driver.StepResult, error)
	IsComplete() bool
}

// Loop ticks a Stepper at a fixed interval. The goroutine calling Run is
// the only one that touches the Stepper, including reconfiguration.
type Loop struct {
	Driver Stepper

	// Interval is the pause between steps. Zero steps as fast as possible.
	Interval time.Duration

	// InitialDelay is waited once before the first step of every run.
	InitialDelay time.Duration

	// Reconfigure, when non-nil, restarts the run with a new shape. Values
	// that fail validation are logged and ignored.
	Reconfigure <-chan driver.Config

	// Logger receives progress output. Nil disables logging.
	Logger *slog.Logger
}

// Summary describes how a Run ended.
type Summary struct {
	Steps    int
	Sequence []pool.Item
	Duration time.Duration
	Aborted  bool
}

// Run steps the driver until it completes or ctx is cancelled. On
// cancellation it returns the partial summary and ctx.Err().
func (l *Loop) Run(ctx context.Context) (Summary, error) {
	logger := l.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	start := time.Now()
	var sum Summary
	finish := func(err error) (Summary, error) {
		sum.Duration = time.Since(start)
		return sum, err
	}

	delay := l.InitialDelay
	for {
		if l.Driver.IsComplete() && l.Reconfigure == nil {
			return finish(nil)
		}

		wait := l.Interval
		if sum.Steps == 0 && delay > 0 {
			wait = delay
		}

		if l.Driver.IsComplete() {
			// Finished but still listening for a new shape.
			select {
			case <-ctx.Done():
				return finish(nil)
			case cfg, ok := <-l.Reconfigure:
				if !ok {
					return finish(nil)
				}
				l.reconfigure(cfg, &sum, logger)
			}
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			sum.Aborted = true
			logger.Info("abort", "steps", sum.Steps)
			return finish(ctx.Err())
		case cfg, ok := <-l.Reconfigure:
			timer.Stop()
			if !ok {
				l.Reconfigure = nil
				continue
			}
			l.reconfigure(cfg, &sum, logger)
			continue
		case <-timer.C:
		}

		res, err := l.Driver.Step(ctx)
		if err != nil {
			return finish(fmt.Errorf("step %d: %w", sum.Steps+1, err))
		}
		sum.Steps = res.StepsCompleted
		sum.Sequence = res.Sequence
		logger.Debug("loop", "step", res.StepsCompleted, "total", res.StepsTotal, "picked", res.Picked.String())
	}
}

func (l *Loop) reconfigure(cfg driver.Config, sum *Summary, logger *slog.Logger) {
	if err := l.Driver.Configure(cfg); err != nil {
		logger.Warn("reconfigure rejected", "error", err)
		return
	}
	sum.Steps = 0
	sum.Sequence = nil
	logger.Info("run restarted", "pool_size", cfg.PoolSize, "total_steps", cfg.TotalSteps)
}
