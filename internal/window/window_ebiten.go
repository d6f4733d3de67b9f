//go:build ebiten

package window

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/nvandessel/drawloop/internal/driver"
	"github.com/nvandessel/drawloop/internal/logging"
	"github.com/nvandessel/drawloop/internal/loop"
	"github.com/nvandessel/drawloop/internal/render"
)

var colorBackground = color.RGBA{0x11, 0x11, 0x11, 0xff}

// game steps the driver from Update, which ebiten calls on one goroutine,
// so the driver keeps a single caller.
type game struct {
	ctx    context.Context
	driver loop.Stepper
	opts   Options
	layout Layout

	started  time.Time
	nextStep time.Time
	last     *driver.StepResult
	summary  loop.Summary
	aborted  bool
	err      error
}

// Run opens a window and steps d every opts.Interval after opts.InitialDelay
// until the run completes. The final chart stays up until the window is
// closed. ESC or the right mouse button aborts with ErrAborted.
func Run(ctx context.Context, d loop.Stepper, opts Options) (loop.Summary, error) {
	opts = opts.withDefaults()
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	now := time.Now()
	g := &game{
		ctx:      ctx,
		driver:   d,
		opts:     opts,
		layout:   NewLayout(opts.Width, opts.Height),
		started:  now,
		nextStep: now.Add(opts.InitialDelay),
	}

	ebiten.SetWindowSize(opts.Width, opts.Height)
	ebiten.SetWindowTitle(opts.Title)
	if err := ebiten.RunGame(g); err != nil {
		return g.finish(), err
	}

	sum := g.finish()
	switch {
	case g.err != nil:
		return sum, g.err
	case g.aborted:
		return sum, ErrAborted
	case ctx.Err() != nil:
		return sum, ctx.Err()
	}
	return sum, nil
}

func (g *game) finish() loop.Summary {
	g.summary.Duration = time.Since(g.started)
	g.summary.Aborted = g.aborted || g.ctx.Err() != nil
	return g.summary
}

func (g *game) Update() error {
	if g.ctx.Err() != nil {
		return ebiten.Termination
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) ||
		inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonRight) {
		g.aborted = true
		g.opts.Logger.Info("abort", "steps", g.summary.Steps)
		return ebiten.Termination
	}

	if g.driver.IsComplete() || time.Now().Before(g.nextStep) {
		return nil
	}

	res, err := g.driver.Step(g.ctx)
	if err != nil {
		if errors.Is(err, driver.ErrRunComplete) {
			return nil
		}
		g.err = fmt.Errorf("step %d: %w", g.summary.Steps+1, err)
		return ebiten.Termination
	}
	g.last = &res
	g.summary.Steps = res.StepsCompleted
	g.summary.Sequence = res.Sequence
	g.nextStep = time.Now().Add(g.opts.Interval)
	g.opts.Logger.Debug("window", "step", res.StepsCompleted, "total", res.StepsTotal, "picked", res.Picked.String())
	return nil
}

func (g *game) Draw(screen *ebiten.Image) {
	screen.Fill(colorBackground)
	if g.last == nil {
		ebitenutil.DebugPrintAt(screen, "waiting for the first draw...", 16, 16)
		return
	}

	res := *g.last
	for _, b := range g.layout.Bars(res) {
		vector.DrawFilledRect(screen, float32(b.X), float32(b.Y), float32(b.W), float32(b.H), b.Color(), false)
		base := int(g.layout.Baseline())
		ebitenutil.DebugPrintAt(screen, b.Label, int(b.X), base+2)
		ebitenutil.DebugPrintAt(screen, b.Value, int(b.X), base+18)
	}

	header := fmt.Sprintf("step %d/%d  picked %s", res.StepsCompleted, res.StepsTotal, res.Picked)
	if g.driver.IsComplete() {
		header += "  (done, close the window to exit)"
	}
	ebitenutil.DebugPrintAt(screen, header, 16, 4)
	ebitenutil.DebugPrintAt(screen, sequenceTail(res, 120), 16, 20)
}

// sequenceTail keeps the most recent picks that fit on one line.
func sequenceTail(res driver.StepResult, width int) string {
	text := render.FormatSequence(res.Sequence, 0)
	if len(text) <= width {
		return text
	}
	return "..." + text[len(text)-width+3:]
}

func (g *game) Layout(_, _ int) (int, int) {
	return g.opts.Width, g.opts.Height
}
