package pool

import (
	"math/rand/v2"
	"time"
)

// Source supplies uniform random numbers in [0, 1).
// *rand.Rand satisfies it, as do fixed sequences in tests.
type Source interface {
	Float64() float64
}

// NewSource returns a PCG-backed source. A zero seed seeds from the clock,
// so runs differ unless a seed is configured.
func NewSource(seed uint64) Source {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// SequenceSource replays a fixed list of values, wrapping around at the end.
// It makes draws deterministic for tests and for replaying known outcomes.
type SequenceSource struct {
	values []float64
	next   int
}

// NewSequenceSource creates a source that yields values in order.
func NewSequenceSource(values ...float64) *SequenceSource {
	return &SequenceSource{values: values}
}

// Float64 returns the next value in the sequence.
func (s *SequenceSource) Float64() float64 {
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}
