package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/drawloop/internal/driver"
)

func TestLayout_Bars(t *testing.T) {
	l := NewLayout(400, 300)
	res := driver.StepResult{
		Picked:       1,
		PriorWeights: []float64{0.25, 0.5, 0, 0.25},
	}

	bars := l.Bars(res)
	require.Len(t, bars, 4)

	assert.InDelta(t, 248, l.Baseline(), 1e-9)
	assert.InDelta(t, 192, bars[1].H, 1e-9, "tallest bar fills the plot")
	assert.InDelta(t, 56, bars[1].Y, 1e-9)
	assert.InDelta(t, 96, bars[0].H, 1e-9)
	assert.InDelta(t, 0, bars[2].H, 1e-9)
	assert.InDelta(t, l.Baseline(), bars[2].Y, 1e-9)

	assert.InDelta(t, 64.4, bars[0].W, 1e-9)
	assert.InDelta(t, 29.8, bars[0].X, 1e-9)
	assert.InDelta(t, 92, bars[1].X-bars[0].X, 1e-9)

	assert.True(t, bars[1].Picked)
	assert.Equal(t, ColorPicked, bars[1].Color())
	assert.Equal(t, ColorBar, bars[0].Color())
	assert.Equal(t, "3", bars[3].Label)
	assert.Equal(t, "0.500", bars[1].Value)
}

func TestLayout_Degenerate(t *testing.T) {
	assert.Nil(t, NewLayout(400, 300).Bars(driver.StepResult{}))
	assert.Nil(t, NewLayout(10, 10).Bars(driver.StepResult{PriorWeights: []float64{1, 1}}))

	bars := NewLayout(400, 300).Bars(driver.StepResult{PriorWeights: []float64{0, 0}})
	require.Len(t, bars, 2)
	assert.Zero(t, bars[0].H)
}

func TestLayout_NarrowBarsStayVisible(t *testing.T) {
	bars := NewLayout(100, 300).Bars(driver.StepResult{PriorWeights: make([]float64, 500)})
	require.Len(t, bars, 500)
	assert.Equal(t, 1.0, bars[0].W)
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, "drawloop", o.Title)
	assert.Equal(t, 960, o.Width)
	assert.Equal(t, 480, o.Height)

	o = Options{Title: "x", Width: 10, Height: 20}.withDefaults()
	assert.Equal(t, Options{Title: "x", Width: 10, Height: 20}, o)
}
