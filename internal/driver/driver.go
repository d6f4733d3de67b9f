// Package driver runs a sampling pool for a fixed number of discrete steps.
//
// A Driver is the unit of work a timer, event loop, or MCP client calls once
// per tick. Each Step draws one item, appends it to the run sequence, and
// hands an immutable snapshot to the configured Renderer. The driver does no
// blocking work of its own and has no cancellation state: a caller that wants
// to abort simply stops calling Step.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nvandessel/drawloop/internal/logging"
	"github.com/nvandessel/drawloop/internal/pool"
)

var (
	// ErrInvalidConfig is returned by Configure for a non-positive step count
	// or a pool that is too small.
	ErrInvalidConfig = errors.New("invalid run configuration")

	// ErrRunComplete is returned by Step once every configured step has run.
	ErrRunComplete = errors.New("run is complete")

	// ErrNotConfigured is returned by Step before the first Configure.
	ErrNotConfigured = errors.New("driver has not been configured")
)

// Config is the shape of a run.
type Config struct {
	PoolSize   int `json:"pool_size"`
	TotalSteps int `json:"total_steps"`
}

// Validate checks the run shape without touching any state.
// A pool size error matches both ErrInvalidConfig and pool.ErrInvalidSize.
func (c Config) Validate() error {
	if err := pool.ValidateSize(c.PoolSize); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.TotalSteps <= 0 {
		return fmt.Errorf("%w: total steps must be positive, got %d", ErrInvalidConfig, c.TotalSteps)
	}
	return nil
}

// Driver orchestrates one run at a time over a single pool.
// It is not safe for concurrent use; exactly one goroutine may call
// Configure and Step.
type Driver struct {
	pool     *pool.Pool
	renderer Renderer

	cfg       Config
	sequence  []pool.Item
	completed int
	state     State

	logger    *slog.Logger
	decisions *logging.DecisionLogger
}

// New creates an idle driver over p. A nil renderer renders nothing.
func New(p *pool.Pool, r Renderer) *Driver {
	if r == nil {
		r = NopRenderer{}
	}
	return &Driver{
		pool:     p,
		renderer: r,
		state:    StateIdle,
		logger:   logging.Discard(),
	}
}

// SetLogger sets the structured logger and decision logger for observability.
func (d *Driver) SetLogger(logger *slog.Logger, decisions *logging.DecisionLogger) {
	if logger == nil {
		logger = logging.Discard()
	}
	d.logger = logger
	d.decisions = decisions
}

// SetRenderer replaces the renderer used for subsequent steps.
func (d *Driver) SetRenderer(r Renderer) {
	if r == nil {
		r = NopRenderer{}
	}
	d.renderer = r
}

// Configure validates cfg, resets the pool, and discards any previous run.
// On error nothing changes.
func (d *Driver) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := d.pool.Reset(cfg.PoolSize); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	d.cfg = cfg
	d.sequence = make([]pool.Item, 0, cfg.TotalSteps)
	d.completed = 0
	d.state = StateConfigured

	d.logger.Debug("run configured", "pool_size", cfg.PoolSize, "total_steps", cfg.TotalSteps)
	d.decisions.Configure(cfg.PoolSize, cfg.TotalSteps)
	return nil
}

// Step performs one draw and renders the outcome.
//
// A renderer failure is logged and does not fail the step: the draw has
// already happened and the run state stays consistent.
func (d *Driver) Step(ctx context.Context) (StepResult, error) {
	if d.state == StateIdle {
		return StepResult{}, ErrNotConfigured
	}
	if d.IsComplete() {
		return StepResult{}, fmt.Errorf("%w: %d of %d steps done", ErrRunComplete, d.completed, d.cfg.TotalSteps)
	}

	prior := d.pool.Weights()
	picked, err := d.pool.DrawOne()
	if err != nil {
		return StepResult{}, fmt.Errorf("draw: %w", err)
	}

	d.sequence = append(d.sequence, picked)
	d.completed++
	if d.completed >= d.cfg.TotalSteps {
		d.state = StateComplete
	} else {
		d.state = StateRunning
	}

	res := StepResult{
		Step:           d.completed,
		Picked:         picked,
		PickedWeight:   prior[picked],
		PriorWeights:   prior,
		Weights:        d.pool.Weights(),
		PickCounts:     d.pool.PickCounts(),
		Sequence:       d.Sequence(),
		StepsCompleted: d.completed,
		StepsTotal:     d.cfg.TotalSteps,
	}

	d.logger.Debug("step drawn", "step", res.Step, "picked", picked.String(), "weight", res.PickedWeight)
	d.logger.Log(ctx, logging.LevelTrace, "weights", "step", res.Step, "weights", res.Weights)
	d.decisions.Draw(res.Step, int(picked), res.PickedWeight, d.pool.Sum())

	if err := d.renderer.Render(ctx, res); err != nil {
		d.logger.Warn("render failed", "step", res.Step, "error", err)
	}

	if d.state == StateComplete {
		d.logger.Info("run complete", "steps", d.completed, "pool_size", d.cfg.PoolSize)
	}

	return res, nil
}

// IsComplete reports whether every configured step has run.
// An idle driver has nothing left to do and reports true.
func (d *Driver) IsComplete() bool {
	return d.completed >= d.cfg.TotalSteps
}

// State returns the run lifecycle state.
func (d *Driver) State() State {
	return d.state
}

// Config returns the active run shape.
func (d *Driver) Config() Config {
	return d.cfg
}

// StepsCompleted returns the number of successful steps in the current run.
func (d *Driver) StepsCompleted() int {
	return d.completed
}

// StepsTotal returns the configured run length.
func (d *Driver) StepsTotal() int {
	return d.cfg.TotalSteps
}

// Sequence returns a copy of the picks so far, in order.
func (d *Driver) Sequence() []pool.Item {
	return append([]pool.Item(nil), d.sequence...)
}

// Weights returns a copy of the pool's current weights.
func (d *Driver) Weights() []float64 {
	return d.pool.Weights()
}

// PickCounts returns a copy of the pool's current pick counts.
func (d *Driver) PickCounts() []int {
	return d.pool.PickCounts()
}
