// Package constants provides named constants used throughout the drawloop codebase.
// This centralizes magic numbers for better maintainability and documentation.
package constants

import "time"

// Run shape defaults
const (
	// DefaultPoolSize is the number of items in a freshly configured pool.
	DefaultPoolSize = 16

	// DefaultTotalSteps is the number of draws in a run.
	DefaultTotalSteps = 64

	// MaxPoolSize bounds pool size accepted from config files and MCP clients.
	MaxPoolSize = 1024

	// MaxTotalSteps bounds run length accepted from config files and MCP clients.
	MaxTotalSteps = 100000
)

// Numeric tolerances
const (
	// WeightSumTolerance is the maximum drift allowed in the sum of pool
	// weights after any number of draws.
	WeightSumTolerance = 1e-9
)

// Loop timing defaults
const (
	// DefaultInterval is the delay between two steps of the driving loop.
	DefaultInterval = 10 * time.Millisecond

	// DefaultInitialDelay is how long the first frame stays on screen before
	// the first draw happens.
	DefaultInitialDelay = time.Second
)

// Rendering defaults
const (
	// DefaultBarScale converts a weight into bar length (terminal columns or
	// window pixels per unit of weight, before clamping).
	DefaultBarScale = 100.0

	// DefaultBarMaxWidth caps a terminal bar in columns.
	DefaultBarMaxWidth = 60

	// SequenceWrapWidth is the number of characters of the pick sequence
	// printed per line under the chart.
	SequenceWrapWidth = 70

	// DefaultListenAddr lets the OS pick a free loopback port.
	DefaultListenAddr = "localhost:0"
)
