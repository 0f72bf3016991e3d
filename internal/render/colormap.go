package render

import (
	"image/color"
	"math"

	"gonum.org/v1/plot/palette"
)

// nwsSteps are the National Weather Service reflectivity colours, one per
// 5 dBZ band from 0 to 80 dBZ.
var nwsSteps = []color.NRGBA{
	{0x64, 0x64, 0x64, 0xff},
	{0x04, 0xe9, 0xe7, 0xff},
	{0x01, 0x9f, 0xf4, 0xff},
	{0x03, 0x00, 0xf4, 0xff},
	{0x02, 0xfd, 0x02, 0xff},
	{0x01, 0xc5, 0x01, 0xff},
	{0x00, 0x8e, 0x00, 0xff},
	{0xfd, 0xf8, 0x02, 0xff},
	{0xe5, 0xbc, 0x00, 0xff},
	{0xfd, 0x95, 0x00, 0xff},
	{0xfd, 0x00, 0x00, 0xff},
	{0xd4, 0x00, 0x00, 0xff},
	{0xbc, 0x00, 0x00, 0xff},
	{0xf8, 0x00, 0xfd, 0xff},
	{0x98, 0x54, 0xc6, 0xff},
	{0xfd, 0xfd, 0xfd, 0xff},
}

// StepColorMap is a palette.ColorMap of equal-width colour bands spread over
// [min, max]. Values outside the range report palette.ErrUnderflow or
// palette.ErrOverflow so callers can leave them transparent.
type StepColorMap struct {
	steps    []color.NRGBA
	min, max float64
	alpha    float64
}

// NWSRef returns the NWS reflectivity colour map scaled to [vmin, vmax].
func NWSRef(vmin, vmax float64) *StepColorMap {
	return &StepColorMap{steps: nwsSteps, min: vmin, max: vmax, alpha: 1}
}

func (m *StepColorMap) At(v float64) (color.Color, error) {
	switch {
	case math.IsNaN(v):
		return color.Transparent, palette.ErrNaN
	case v < m.min:
		return color.Transparent, palette.ErrUnderflow
	case v > m.max:
		return color.Transparent, palette.ErrOverflow
	}
	i := int((v - m.min) / (m.max - m.min) * float64(len(m.steps)))
	if i >= len(m.steps) {
		i = len(m.steps) - 1
	}
	c := m.steps[i]
	c.A = uint8(math.Round(float64(c.A) * m.alpha))
	return c, nil
}

func (m *StepColorMap) Max() float64           { return m.max }
func (m *StepColorMap) SetMax(v float64)       { m.max = v }
func (m *StepColorMap) Min() float64           { return m.min }
func (m *StepColorMap) SetMin(v float64)       { m.min = v }
func (m *StepColorMap) Alpha() float64         { return m.alpha }
func (m *StepColorMap) SetAlpha(alpha float64) { m.alpha = alpha }

// Palette samples n colours evenly across the range.
func (m *StepColorMap) Palette(n int) palette.Palette {
	cs := make(stepPalette, n)
	for i := range cs {
		v := m.min
		if n > 1 {
			v = m.min + (m.max-m.min)*float64(i)/float64(n-1)
		}
		cs[i], _ = m.At(v)
	}
	return cs
}

type stepPalette []color.Color

func (p stepPalette) Colors() []color.Color { return p }
