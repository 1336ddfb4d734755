package fractal

// Bailout is the squared escape radius.
const Bailout = 4.0

// PixelToPlane maps a pixel coordinate to the complex plane.
// The operation order is part of the contract: the GPU shaders and the float32
// mirror repeat it verbatim so that both backends land on the same points.
func PixelToPlane(px, py float64, width, height int, v View) (x, y float64) {
	w := float64(width)
	h := float64(height)
	aspect := w / h
	x = v.CenterX + (px-w/2)*v.Scale/w*aspect
	y = v.CenterY + (py-h/2)*v.Scale/h
	return x, y
}

// Escape iterates the recurrence selected by p for the plane point (x, y).
// It returns the iteration at which |z|² exceeded Bailout, or maxIter when the
// orbit stayed bounded.
func Escape(p Params, x, y float64, maxIter int) int {
	switch p.Type {
	case Julia:
		return escapeQuadratic(x, y, real(p.Julia), imag(p.Julia), maxIter)
	case BurningShip:
		return escapeBurningShip(x, y, maxIter)
	case Tricorn:
		return escapeTricorn(x, y, maxIter)
	default:
		return escapeQuadratic(0, 0, x, y, maxIter)
	}
}

// EvaluatePixel is PixelToPlane followed by Escape.
func EvaluatePixel(s Spec, px, py int) int {
	x, y := PixelToPlane(float64(px), float64(py), s.Width, s.Height, s.View)
	return Escape(s.Params, x, y, s.MaxIter)
}

// escapeQuadratic runs z -> z² + c from z0. Mandelbrot starts at 0 with c at
// the pixel; julia starts at the pixel with a fixed c.
func escapeQuadratic(zx, zy, cx, cy float64, maxIter int) int {
	for i := 0; i < maxIter; i++ {
		zx2, zy2 := zx*zx, zy*zy
		if zx2+zy2 > Bailout {
			return i
		}
		zy = 2*zx*zy + cy
		zx = zx2 - zy2 + cx
	}
	return maxIter
}

// escapeBurningShip folds both components to their absolute value before squaring.
func escapeBurningShip(cx, cy float64, maxIter int) int {
	var zx, zy float64
	for i := 0; i < maxIter; i++ {
		zx2, zy2 := zx*zx, zy*zy
		if zx2+zy2 > Bailout {
			return i
		}
		xy := 2 * zx * zy
		if xy < 0 {
			xy = -xy
		}
		zy = xy + cy
		zx = zx2 - zy2 + cx
	}
	return maxIter
}

// escapeTricorn squares the conjugate: the imaginary cross term flips sign.
func escapeTricorn(cx, cy float64, maxIter int) int {
	var zx, zy float64
	for i := 0; i < maxIter; i++ {
		zx2, zy2 := zx*zx, zy*zy
		if zx2+zy2 > Bailout {
			return i
		}
		zy = -2*zx*zy + cy
		zx = zx2 - zy2 + cx
	}
	return maxIter
}
