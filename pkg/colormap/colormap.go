// Package colormap provides color schemes for rendering spatial maps.
package colormap

import (
	"image/color"
)

// Colormap maps normalized values [0, 1] to colors.
type Colormap interface {
	At(t float64) color.Color
}

// LinearColormap is a linear interpolation colormap.
type LinearColormap struct {
	colors []color.RGBA
}

// At returns the color at position t (0-1).
func (c LinearColormap) At(t float64) color.Color {
	if t <= 0 {
		return c.colors[0]
	}
	if t >= 1 {
		return c.colors[len(c.colors)-1]
	}

	idx := t * float64(len(c.colors)-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= len(c.colors) {
		upper = len(c.colors) - 1
	}

	frac := idx - float64(lower)
	return interpolate(c.colors[lower], c.colors[upper], frac)
}

func interpolate(c1, c2 color.RGBA, t float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(c1.R) + t*(float64(c2.R)-float64(c1.R))),
		G: uint8(float64(c1.G) + t*(float64(c2.G)-float64(c1.G))),
		B: uint8(float64(c1.B) + t*(float64(c2.B)-float64(c1.B))),
		A: 255,
	}
}

// Viridis colormap (matplotlib viridis), used for density heatmaps.
var Viridis = LinearColormap{
	colors: []color.RGBA{
		{68, 1, 84, 255},
		{72, 35, 116, 255},
		{64, 67, 135, 255},
		{52, 94, 141, 255},
		{41, 120, 142, 255},
		{32, 143, 140, 255},
		{34, 167, 132, 255},
		{66, 190, 113, 255},
		{121, 209, 81, 255},
		{186, 222, 39, 255},
		{253, 231, 36, 255},
	},
}

// palette is a set of saturated, mutually distinguishable colors for
// categorical scatter plots.
var palette = []color.RGBA{
	{230, 25, 75, 255},   // red
	{60, 180, 75, 255},   // green
	{0, 130, 200, 255},   // blue
	{245, 130, 48, 255},  // orange
	{145, 30, 180, 255},  // purple
	{70, 240, 240, 255},  // cyan
	{240, 50, 230, 255},  // magenta
	{210, 245, 60, 255},  // lime
	{250, 190, 212, 255}, // pink
	{0, 128, 128, 255},   // teal
	{170, 110, 40, 255},  // brown
	{128, 128, 0, 255},   // olive
}

// Categorical assigns stable colors to category labels: the i-th distinct
// label in the given order always receives the i-th palette entry,
// wrapping when the palette is exhausted.
type Categorical struct {
	byLabel map[string]color.RGBA
}

// NewCategorical builds a categorical mapping for an ordered label set.
func NewCategorical(labels []string) *Categorical {
	m := make(map[string]color.RGBA, len(labels))
	next := 0
	for _, l := range labels {
		if _, ok := m[l]; ok {
			continue
		}
		m[l] = palette[next%len(palette)]
		next++
	}
	return &Categorical{byLabel: m}
}

// Color returns the color for a label. Unknown labels render gray so a
// mislabeled point is visible rather than invisible.
func (c *Categorical) Color(label string) color.RGBA {
	if col, ok := c.byLabel[label]; ok {
		return col
	}
	return color.RGBA{128, 128, 128, 255}
}
