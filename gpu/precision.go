package gpu

import (
	"math"

	fractal "github.com/marben/fractal_explorer"
)

// float32 machine epsilon (2^-23).
const epsilon32 = 1.0 / (1 << 23)

// minPixelULPs is how many float32 steps of the plane coordinate one pixel
// has to span before neighbouring pixels start to collapse onto each other.
const minPixelULPs = 4

// MinScale returns the smallest view scale the float32 shaders resolve for
// view v on a canvas height pixels tall.
func MinScale(v fractal.View, height int) float64 {
	mag := math.Max(1, math.Max(math.Abs(v.CenterX), math.Abs(v.CenterY)))
	return float64(height) * minPixelULPs * epsilon32 * mag
}

// Resolvable reports whether v is within the float32 precision limit.
func Resolvable(v fractal.View, height int) bool {
	return v.Scale >= MinScale(v, height)
}

// Clamp raises v.Scale to MinScale and reports whether it had to.
func Clamp(v fractal.View, height int) (fractal.View, bool) {
	lo := MinScale(v, height)
	if v.Scale >= lo {
		return v, false
	}
	v.Scale = lo
	return v, true
}
