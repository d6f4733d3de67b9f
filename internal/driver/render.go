package driver

import (
	"context"

	"github.com/nvandessel/drawloop/internal/pool"
)

// StepResult is the snapshot of one completed step. Every slice is a fresh
// copy, so a result may be handed to another goroutine without sharing
// state with the driver.
type StepResult struct {
	// Step is the 1-based index of this step within the run.
	Step int `json:"step"`

	// Picked is the item drawn on this step.
	Picked pool.Item `json:"picked"`

	// PickedWeight is the picked item's weight just before the draw.
	PickedWeight float64 `json:"picked_weight"`

	// PriorWeights are the weights the draw was made from.
	PriorWeights []float64 `json:"prior_weights"`

	// Weights are the weights after redistribution.
	Weights []float64 `json:"weights"`

	// PickCounts are the redistribution counts after this step.
	PickCounts []int `json:"pick_counts"`

	// Sequence is every pick of the run so far, including this one.
	Sequence []pool.Item `json:"sequence"`

	StepsCompleted int `json:"steps_completed"`
	StepsTotal     int `json:"steps_total"`
}

// Done reports whether this was the final step of the run.
func (r StepResult) Done() bool {
	return r.StepsCompleted >= r.StepsTotal
}

// Renderer presents step snapshots. It is called once per completed step,
// on the goroutine that called Step.
type Renderer interface {
	Render(ctx context.Context, res StepResult) error
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(ctx context.Context, res StepResult) error

// Render calls f.
func (f RendererFunc) Render(ctx context.Context, res StepResult) error {
	return f(ctx, res)
}

// NopRenderer discards every snapshot.
type NopRenderer struct{}

// Render does nothing.
func (NopRenderer) Render(context.Context, StepResult) error { return nil }
