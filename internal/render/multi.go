package render

import (
	"context"
	"errors"

	"github.com/nvandessel/drawloop/internal/driver"
)

// Multi fans one snapshot out to several renderers. Every renderer is
// called even if an earlier one fails; the failures are joined.
type Multi []driver.Renderer

// Render implements driver.Renderer.
func (m Multi) Render(ctx context.Context, res driver.StepResult) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Render(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
