package mcp

import (
	"github.com/nvandessel/drawloop/internal/driver"
	"github.com/nvandessel/drawloop/internal/pool"
)

// ConfigureInput defines the input for the drawloop_configure tool.
type ConfigureInput struct {
	PoolSize   int    `json:"pool_size,omitempty" jsonschema:"Number of items in the pool, at least 2 (default: 16)"`
	TotalSteps int    `json:"total_steps,omitempty" jsonschema:"Number of draws in the run, at least 1 (default: 64)"`
	Seed       uint64 `json:"seed,omitempty" jsonschema:"Random seed for the draws; 0 keeps the server seed"`
}

// StepInput defines the input for the drawloop_step tool.
type StepInput struct{}

// StatusInput defines the input for the drawloop_status tool.
type StatusInput struct{}

// StatusOutput describes the current run. It is returned by
// drawloop_configure and drawloop_status.
type StatusOutput struct {
	State          string      `json:"state" jsonschema:"Run state: idle, configured, running or complete"`
	PoolSize       int         `json:"pool_size" jsonschema:"Number of items in the pool"`
	TotalSteps     int         `json:"total_steps" jsonschema:"Number of draws in the run"`
	StepsCompleted int         `json:"steps_completed" jsonschema:"Draws made so far"`
	Complete       bool        `json:"complete" jsonschema:"Whether no more draws are allowed"`
	Weights        []float64   `json:"weights" jsonschema:"Current weight of each item, indexed by item"`
	PickCounts     []int       `json:"pick_counts" jsonschema:"How many redistribution shares each item has received"`
	Sequence       []pool.Item `json:"sequence" jsonschema:"Items picked so far, in order"`
	Message        string      `json:"message,omitempty" jsonschema:"Human-readable result message"`
}

// StepOutput defines the output for the drawloop_step tool.
type StepOutput struct {
	Step           int         `json:"step" jsonschema:"1-based index of this draw"`
	Picked         pool.Item   `json:"picked" jsonschema:"Item chosen by this draw"`
	PickedWeight   float64     `json:"picked_weight" jsonschema:"Weight the picked item had before the draw"`
	PriorWeights   []float64   `json:"prior_weights" jsonschema:"Weights before the draw"`
	Weights        []float64   `json:"weights" jsonschema:"Weights after the draw"`
	PickCounts     []int       `json:"pick_counts" jsonschema:"How many redistribution shares each item has received"`
	Sequence       []pool.Item `json:"sequence" jsonschema:"Items picked so far, in order"`
	StepsCompleted int         `json:"steps_completed" jsonschema:"Draws made so far"`
	StepsTotal     int         `json:"steps_total" jsonschema:"Number of draws in the run"`
	Done           bool        `json:"done" jsonschema:"Whether this was the final draw"`
}

func stepOutput(res driver.StepResult) StepOutput {
	return StepOutput{
		Step:           res.Step,
		Picked:         res.Picked,
		PickedWeight:   res.PickedWeight,
		PriorWeights:   res.PriorWeights,
		Weights:        res.Weights,
		PickCounts:     res.PickCounts,
		Sequence:       res.Sequence,
		StepsCompleted: res.StepsCompleted,
		StepsTotal:     res.StepsTotal,
		Done:           res.Done(),
	}
}
