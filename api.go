package fractal

// Display draws an iteration grid to a pixel surface. Render runs on the
// controller goroutine and must not keep buf after it returns: the next
// refinement pass hands the same buffer back to the worker.
type Display interface {
	Render(buf *ResultBuffer, maxIter int, scheme string, offset float64) error
}

// GPUDisplay re-evaluates the whole field at full resolution on every frame
// from a uniform set. It never talks to the compute worker.
type GPUDisplay interface {
	RenderGPU(u Uniforms) error
}

// Uniforms is the per-frame parameter block of the GPU evaluator.
type Uniforms struct {
	CenterX     float64
	CenterY     float64
	Scale       float64
	Aspect      float64
	Width       int
	Height      int
	MaxIter     int
	ColorScheme int
	ColorOffset float64
	FractalType Type
	JuliaC      complex128
}

// UniformsFor builds the uniform set for spec s.
func UniformsFor(s Spec, scheme int, offset float64) Uniforms {
	cx, cy := s.Params.JuliaC()
	return Uniforms{
		CenterX:     s.View.CenterX,
		CenterY:     s.View.CenterY,
		Scale:       s.View.Scale,
		Aspect:      s.Aspect(),
		Width:       s.Width,
		Height:      s.Height,
		MaxIter:     s.MaxIter,
		ColorScheme: scheme,
		ColorOffset: offset,
		FractalType: s.Params.Type,
		JuliaC:      complex(cx, cy),
	}
}
