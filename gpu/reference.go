package gpu

import (
	"math"

	fractal "github.com/marben/fractal_explorer"
)

// PixelToPlane32 is fractal.PixelToPlane in shader arithmetic: every operand
// is rounded to float32 and the operation order is the shaders'.
func PixelToPlane32(u fractal.Uniforms, px, py int) (x, y float32) {
	w := float32(u.Width)
	h := float32(u.Height)
	scale := float32(u.Scale)
	aspect := float32(u.Aspect)
	x = float32(u.CenterX) + float32(float32(float32(float32(px)-w/2)*scale)/w)*aspect
	y = float32(u.CenterY) + float32(float32(float32(py)-h/2)*scale)/h
	return x, y
}

// EvaluatePixel32 returns the iteration count the shaders compute for pixel (px, py).
func EvaluatePixel32(u fractal.Uniforms, px, py int) int {
	x, y := PixelToPlane32(u, px, py)
	var zx, zy, cx, cy float32 = 0, 0, x, y
	if u.FractalType == fractal.Julia {
		zx, zy = x, y
		cx, cy = float32(real(u.JuliaC)), float32(imag(u.JuliaC))
	}
	for i := 0; i < u.MaxIter; i++ {
		zx2 := float32(zx * zx)
		zy2 := float32(zy * zy)
		if zx2+zy2 > fractal.Bailout {
			return i
		}
		xy := float32(2 * float32(zx*zy))
		switch u.FractalType {
		case fractal.BurningShip:
			xy = float32(math.Abs(float64(xy)))
		case fractal.Tricorn:
			xy = -xy
		}
		zy = xy + cy
		zx = zx2 - zy2 + cx
	}
	return u.MaxIter
}
