// Package window shows the run in a native window. The window itself needs
// the ebiten build tag; the bar geometry here is always available.
package window

import (
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"time"

	"github.com/nvandessel/drawloop/internal/driver"
	"github.com/nvandessel/drawloop/internal/pool"
)

var (
	// ErrUnavailable is returned by Run when the binary was built without
	// the ebiten tag.
	ErrUnavailable = errors.New("window renderer not built in (rebuild with -tags ebiten)")

	// ErrAborted is returned by Run when the user closes the run with ESC
	// or the right mouse button.
	ErrAborted = errors.New("aborted")
)

// Bar colours: survivors are cyan, the picked item is red.
var (
	ColorBar    = color.RGBA{0x33, 0xcc, 0xcc, 0xff}
	ColorPicked = color.RGBA{0xee, 0x33, 0x33, 0xff}
)

// Options configures Run.
type Options struct {
	Title        string
	Width        int
	Height       int
	Interval     time.Duration
	InitialDelay time.Duration
	Logger       *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Title == "" {
		o.Title = "drawloop"
	}
	if o.Width <= 0 {
		o.Width = 960
	}
	if o.Height <= 0 {
		o.Height = 480
	}
	return o
}

// Bar is one rectangle in window coordinates, origin top-left.
type Bar struct {
	Item   pool.Item
	X, Y   float64
	W, H   float64
	Picked bool
	Label  string
	Value  string
}

// Layout maps a snapshot onto a Width x Height canvas. Bars share the
// width evenly and are scaled so the tallest fills the plot area.
type Layout struct {
	Width  int
	Height int

	// Margin surrounds the plot. HeaderBand is reserved above the bars for
	// the status text, LabelBand under them for the item and weight labels.
	Margin     float64
	HeaderBand float64
	LabelBand  float64
}

// NewLayout returns a layout with the default margins.
func NewLayout(width, height int) Layout {
	return Layout{Width: width, Height: height, Margin: 16, HeaderBand: 40, LabelBand: 36}
}

// Baseline is the y coordinate the bars stand on.
func (l Layout) Baseline() float64 {
	return float64(l.Height) - l.Margin - l.LabelBand
}

// Bars lays out res.PriorWeights, the weights the draw was made from.
func (l Layout) Bars(res driver.StepResult) []Bar {
	n := len(res.PriorWeights)
	if n == 0 {
		return nil
	}

	plotW := float64(l.Width) - 2*l.Margin
	plotH := l.Baseline() - l.Margin - l.HeaderBand
	if plotW <= 0 || plotH <= 0 {
		return nil
	}

	maxWeight := 0.0
	for _, w := range res.PriorWeights {
		maxWeight = max(maxWeight, w)
	}

	slot := plotW / float64(n)
	barW := max(1, slot*0.7)
	bars := make([]Bar, n)
	for i, w := range res.PriorWeights {
		h := 0.0
		if maxWeight > 0 && w > 0 {
			h = w / maxWeight * plotH
		}
		bars[i] = Bar{
			Item:   pool.Item(i),
			X:      l.Margin + float64(i)*slot + (slot-barW)/2,
			Y:      l.Baseline() - h,
			W:      barW,
			H:      h,
			Picked: pool.Item(i) == res.Picked,
			Label:  pool.Item(i).String(),
			Value:  fmt.Sprintf("%.3f", w),
		}
	}
	return bars
}

// Color returns the fill colour for b.
func (b Bar) Color() color.Color {
	if b.Picked {
		return ColorPicked
	}
	return ColorBar
}
