// Package pool implements the shrinking-weight sampling pool.
//
// A Pool holds one weight per item. Each draw picks an item with probability
// proportional to its weight, zeroes that weight, and spreads it evenly over
// every other item. The total weight is therefore conserved across draws,
// while a freshly picked item cannot be picked again on the next draw
// (for pools of three or more items).
package pool

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	// ErrInvalidSize is returned when a pool would have fewer than two items.
	// Redistribution divides the picked weight by N-1.
	ErrInvalidSize = errors.New("pool size must be at least 2")

	// ErrNotInitialized is returned by DrawOne before a successful reset.
	ErrNotInitialized = errors.New("pool has not been reset")

	// ErrInvalidWeights is returned by ResetWeights for negative, non-finite,
	// or all-zero weights.
	ErrInvalidWeights = errors.New("pool weights must be finite, non-negative and not all zero")
)

// Item identifies one member of the pool. Items are the indices 0..N-1.
type Item int

// String returns the decimal index, which is also the item's label.
func (i Item) String() string {
	return strconv.Itoa(int(i))
}

// Pool is a weighted distribution over a fixed set of items.
// It is not safe for concurrent use; a single owner drives it.
type Pool struct {
	src     Source
	weights []float64
	picks   []int
}

// New creates an empty pool drawing randomness from src.
// A nil src uses a clock-seeded source. Call Reset before drawing.
func New(src Source) *Pool {
	if src == nil {
		src = NewSource(0)
	}
	return &Pool{src: src}
}

// ValidateSize reports whether n items can form a pool.
func ValidateSize(n int) error {
	if n <= 1 {
		return fmt.Errorf("%w, got %d", ErrInvalidSize, n)
	}
	return nil
}

// Reset reinitializes the pool to n items of weight 1/n with zero pick counts.
// On error the pool is left untouched.
func (p *Pool) Reset(n int) error {
	if err := ValidateSize(n); err != nil {
		return err
	}

	weights := make([]float64, n)
	share := 1 / float64(n)
	for i := range weights {
		weights[i] = share
	}
	p.weights = weights
	p.picks = make([]int, n)
	return nil
}

// ResetWeights reinitializes the pool from relative weights. The weights need
// not sum to one; their original sum is what later draws conserve.
// On error the pool is left untouched.
func (p *Pool) ResetWeights(w []float64) error {
	if err := ValidateSize(len(w)); err != nil {
		return err
	}

	positive := false
	sum := 0.0
	for i, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: item %d has weight %v", ErrInvalidWeights, i, v)
		}
		if v > 0 {
			positive = true
		}
		sum += v
	}
	if !positive {
		return ErrInvalidWeights
	}
	if math.IsInf(sum, 0) {
		return fmt.Errorf("%w: weights sum to %v", ErrInvalidWeights, sum)
	}

	p.weights = append([]float64(nil), w...)
	p.picks = make([]int, len(w))
	return nil
}

// DrawOne picks one item with probability proportional to its current weight,
// then moves that item's whole weight onto the other items in equal shares.
//
// Every item other than the picked one has its pick count incremented. The
// picked item's own count is left as is, so PickCounts records how often an
// item benefited from another item being drawn.
func (p *Pool) DrawOne() (Item, error) {
	if len(p.weights) == 0 {
		return 0, ErrNotInitialized
	}

	picked := p.choose()
	v := p.weights[picked]
	p.weights[picked] = 0

	share := v / float64(len(p.weights)-1)
	for k := range p.weights {
		if k == picked {
			continue
		}
		p.weights[k] += share
		p.picks[k]++
	}

	return Item(picked), nil
}

// choose scans the cumulative distribution of positive weights. Items with
// zero weight never advance the running total, so they can never satisfy
// u < cum and are never chosen.
func (p *Pool) choose() int {
	total := 0.0
	last := -1
	for i, w := range p.weights {
		if w > 0 {
			total += w
			last = i
		}
	}

	u := p.src.Float64() * total
	cum := 0.0
	for i, w := range p.weights {
		if w <= 0 {
			continue
		}
		cum += w
		if u < cum {
			return i
		}
	}

	// Rounding left u at or past the final boundary.
	return last
}

// Size returns the number of items, or 0 before the first reset.
func (p *Pool) Size() int {
	return len(p.weights)
}

// Weight returns the current weight of item i.
func (p *Pool) Weight(i Item) float64 {
	return p.weights[i]
}

// Weights returns a copy of the current weights, indexed by Item.
func (p *Pool) Weights() []float64 {
	return append([]float64(nil), p.weights...)
}

// PickCounts returns a copy of the pick counts, indexed by Item.
func (p *Pool) PickCounts() []int {
	return append([]int(nil), p.picks...)
}

// Sum returns the total weight of the pool.
func (p *Pool) Sum() float64 {
	sum := 0.0
	for _, w := range p.weights {
		sum += w
	}
	return sum
}
