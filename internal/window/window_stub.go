//go:build !ebiten

package window

import (
	"context"

	"github.com/nvandessel/drawloop/internal/loop"
)

// Run reports ErrUnavailable; the window needs the ebiten build tag.
func Run(_ context.Context, _ loop.Stepper, _ Options) (loop.Summary, error) {
	return loop.Summary{}, ErrUnavailable
}
