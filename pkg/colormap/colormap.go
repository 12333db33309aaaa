// Package colormap maps normalized intensities to display colors for the
// rendered panels.
package colormap

import (
	"image/color"
	"math"
)

// Map converts a normalized intensity in [0, 1] to a color. Values
// outside the range clamp to the endpoints.
type Map interface {
	At(t float64) color.Color
}

// Ramp linearly interpolates between a sequence of anchor colors spread
// evenly over [0, 1].
type Ramp []color.NRGBA

// At implements Map.
func (r Ramp) At(t float64) color.Color {
	if math.IsNaN(t) || t <= 0 {
		return r[0]
	}
	if t >= 1 {
		return r[len(r)-1]
	}

	pos := t * float64(len(r)-1)
	i := int(pos)
	f := pos - float64(i)

	a, b := r[i], r[i+1]
	return color.NRGBA{
		R: lerp(a.R, b.R, f),
		G: lerp(a.G, b.G, f),
		B: lerp(a.B, b.B, f),
		A: 255,
	}
}

func lerp(a, b uint8, f float64) uint8 {
	return uint8(float64(a) + f*(float64(b)-float64(a)) + 0.5)
}

// Gray is a plain black-to-white ramp.
var Gray = Ramp{
	{0, 0, 0, 255},
	{255, 255, 255, 255},
}

// Viridis is the perceptually uniform ramp used as the default for
// science images.
var Viridis = Ramp{
	{68, 1, 84, 255},
	{71, 44, 122, 255},
	{59, 81, 139, 255},
	{44, 113, 142, 255},
	{33, 144, 141, 255},
	{39, 173, 129, 255},
	{92, 200, 99, 255},
	{170, 220, 50, 255},
	{253, 231, 37, 255},
}

// ByName resolves a colormap by its configuration name, defaulting to
// Viridis for unknown names.
func ByName(name string) Map {
	switch name {
	case "gray", "grey":
		return Gray
	default:
		return Viridis
	}
}
