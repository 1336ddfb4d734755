// Package render turns iteration grids into pixels on the CPU.
//
// The palettes here are mirrored by the GPU shaders in package gpu; the scheme
// index (position in Schemes) is the value of the colorScheme uniform.
package render

import (
	"errors"
	"fmt"
	"image/color"
	"math"
)

var ErrUnknownScheme = errors.New("unknown color scheme")

// Palette maps t in [0,1] to a colour.
type Palette func(t float64) color.RGBA

// Schemes lists the palette names in GPU uniform order.
var Schemes = []string{"rainbow", "fire", "ocean", "grayscale", "viridis", "hsv"}

// DefaultScheme is used when none is selected.
const DefaultScheme = "rainbow"

var palettes = map[string]Palette{
	"rainbow":   Rainbow,
	"fire":      Fire,
	"ocean":     Ocean,
	"grayscale": Grayscale,
	"viridis":   Viridis,
	"hsv":       HSV,
}

// Lookup returns the palette registered under name.
func Lookup(name string) (Palette, error) {
	p, ok := palettes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, name)
	}
	return p, nil
}

// SchemeIndex returns the GPU uniform value for a scheme name.
func SchemeIndex(name string) (int, error) {
	for i, s := range Schemes {
		if s == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownScheme, name)
}

var (
	// Pending is the colour of cells that have not been computed yet.
	Pending = color.RGBA{40, 40, 40, 255}
	// Interior is the colour of cells that never escaped.
	Interior = color.RGBA{0, 0, 0, 255}
)

// Color maps one cell to a colour:
// NotComputed -> Pending, maxIter -> Interior, otherwise
// p(((iter / maxIter) + offset) mod 1).
func Color(iter int32, maxIter int, p Palette, offset float64) color.RGBA {
	switch {
	case iter < 0:
		return Pending
	case int(iter) >= maxIter:
		return Interior
	}
	return p(Cycle(float64(iter)/float64(maxIter), offset))
}

// Cycle returns (t + offset) mod 1 in [0,1).
func Cycle(t, offset float64) float64 {
	t += offset
	return t - math.Floor(t)
}

func channel(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v)
}

func rgb(r, g, b float64) color.RGBA {
	return color.RGBA{channel(r), channel(g), channel(b), 255}
}

// Rainbow runs blue -> cyan -> green -> yellow -> red as t falls.
func Rainbow(t float64) color.RGBA {
	a := (1 - t) * 4
	x := math.Floor(a)
	y := math.Floor(255 * (a - x))
	switch int(x) {
	case 0:
		return rgb(0, y, 255)
	case 1:
		return rgb(0, 255, 255-y)
	case 2:
		return rgb(y, 255, 0)
	case 3:
		return rgb(255, 255-y, 0)
	default:
		return rgb(255, 0, 0)
	}
}

// Fire runs black -> red -> yellow -> white.
func Fire(t float64) color.RGBA {
	switch {
	case t < 0.33:
		return rgb(math.Floor(255*t*3), 0, 0)
	case t < 0.66:
		return rgb(255, math.Floor(255*(t-0.33)*3), 0)
	default:
		return rgb(255, 255, math.Floor(255*(t-0.66)*3))
	}
}

// Ocean runs deep blue -> cyan -> white.
func Ocean(t float64) color.RGBA {
	if t < 0.5 {
		return rgb(0, math.Floor(255*t*2), math.Floor(128+127*t*2))
	}
	return rgb(math.Floor(255*(t-0.5)*2), 255, 255)
}

func Grayscale(t float64) color.RGBA {
	g := math.Floor(255 * t)
	return rgb(g, g, g)
}

var viridisStops = [...][3]float64{
	{68, 1, 84}, {71, 44, 122}, {59, 81, 139}, {44, 113, 142},
	{33, 144, 141}, {39, 173, 129}, {92, 200, 99}, {170, 220, 50}, {253, 231, 37},
}

// Viridis approximates the viridis colormap with nine stops.
func Viridis(t float64) color.RGBA {
	n := float64(len(viridisStops) - 1)
	idx := int(math.Floor(t * n))
	if idx >= len(viridisStops)-1 {
		s := viridisStops[len(viridisStops)-1]
		return rgb(s[0], s[1], s[2])
	}
	if idx < 0 {
		idx = 0
	}
	frac := t*n - float64(idx)
	c0, c1 := viridisStops[idx], viridisStops[idx+1]
	return rgb(
		math.Floor(c0[0]+(c1[0]-c0[0])*frac),
		math.Floor(c0[1]+(c1[1]-c0[1])*frac),
		math.Floor(c0[2]+(c1[2]-c0[2])*frac),
	)
}

// HSV sweeps the hue circle at full saturation and value.
func HSV(t float64) color.RGBA {
	return hsv(t, 1, 1)
}

// Simple HSV → RGB
func hsv(h, s, v float64) color.RGBA {
	h = math.Mod(h, 1)
	i := int(h * 6)
	f := h*6 - float64(i)
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)

	var r, g, b float64
	switch i % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	case 5:
		r, g, b = v, p, q
	}
	return color.RGBA{uint8(r * 255), uint8(g * 255), uint8(b * 255), 255}
}
