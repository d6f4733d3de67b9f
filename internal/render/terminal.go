// Package render presents step snapshots as text bar charts.
package render

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/muesli/termenv"

	"github.com/nvandessel/drawloop/internal/constants"
	"github.com/nvandessel/drawloop/internal/driver"
	"github.com/nvandessel/drawloop/internal/pool"
)

// Bar colours: survivors are cyan, the picked item is red.
const (
	colorBar    = "6"
	colorPicked = "1"
)

const barRune = "█"

// TerminalConfig controls the text chart.
type TerminalConfig struct {
	// Scale converts a weight into columns. Defaults to constants.DefaultBarScale.
	Scale float64

	// MaxWidth caps a bar. Defaults to constants.DefaultBarMaxWidth.
	MaxWidth int

	// Clear erases the screen before each frame.
	Clear bool

	// Plain disables colour regardless of the terminal.
	Plain bool
}

// Terminal draws one frame per step: a row per item showing the weight the
// draw was made from, with the picked row highlighted, followed by the
// sequence so far.
type Terminal struct {
	mu  sync.Mutex
	out *termenv.Output
	cfg TerminalConfig
}

// NewTerminal creates a terminal renderer writing to w.
func NewTerminal(w io.Writer, cfg TerminalConfig) *Terminal {
	if cfg.Scale <= 0 {
		cfg.Scale = constants.DefaultBarScale
	}
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = constants.DefaultBarMaxWidth
	}

	var opts []termenv.OutputOption
	if cfg.Plain {
		opts = append(opts, termenv.WithProfile(termenv.Ascii))
	}
	return &Terminal{out: termenv.NewOutput(w, opts...), cfg: cfg}
}

// Render implements driver.Renderer.
func (t *Terminal) Render(_ context.Context, res driver.StepResult) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cfg.Clear {
		t.out.ClearScreen()
	}
	_, err := io.WriteString(t.out, t.Frame(res))
	return err
}

// Frame renders res to a string without writing it.
func (t *Terminal) Frame(res driver.StepResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "step %d/%d  picked %s\n", res.StepsCompleted, res.StepsTotal, res.Picked)

	labelWidth := len(pool.Item(len(res.PriorWeights) - 1).String())
	for i, w := range res.PriorWeights {
		item := pool.Item(i)
		color := colorBar
		if item == res.Picked {
			color = colorPicked
		}
		bar := t.out.String(strings.Repeat(barRune, BarWidth(w, t.cfg.Scale, t.cfg.MaxWidth))).
			Foreground(t.out.Color(color))
		fmt.Fprintf(&b, "%*s %s %.3f\n", labelWidth, item, bar, w)
	}

	b.WriteString(FormatSequence(res.Sequence, constants.SequenceWrapWidth))
	b.WriteString("\n")
	return b.String()
}

// BarWidth converts a weight to a bar length in [0, maxWidth].
func BarWidth(weight, scale float64, maxWidth int) int {
	n := int(math.Round(weight * scale))
	if n < 0 {
		return 0
	}
	if n > maxWidth {
		return maxWidth
	}
	return n
}

// FormatSequence joins picks with commas and breaks the text every width
// characters. A non-positive width disables wrapping.
func FormatSequence(seq []pool.Item, width int) string {
	parts := make([]string, len(seq))
	for i, item := range seq {
		parts[i] = item.String()
	}
	text := strings.Join(parts, ",")
	if width <= 0 || len(text) <= width {
		return text
	}

	var lines []string
	for len(text) > width {
		lines = append(lines, text[:width])
		text = text[width:]
	}
	if text != "" {
		lines = append(lines, text)
	}
	return strings.Join(lines, "\n")
}
