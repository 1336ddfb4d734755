package session

import (
	"fmt"
	"strings"

	fractal "github.com/marben/fractal_explorer"
	"github.com/marben/fractal_explorer/gpu"
)

// Backend selects who evaluates the field.
type Backend int

const (
	// CPU refines progressively through the compute worker.
	CPU Backend = iota
	// GPU re-evaluates the whole field in a shader on every frame.
	GPU
)

func (b Backend) String() string {
	if b == GPU {
		return "gpu"
	}
	return "cpu"
}

func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(s) {
	case "cpu":
		return CPU, nil
	case "gpu":
		return GPU, nil
	}
	return CPU, fmt.Errorf("unknown backend %q", s)
}

// Features switches optional parts of the controller on.
type Features struct {
	// ThreeD enables heightmap export.
	ThreeD bool
	// GPU allows switching to the GPU backend.
	GPU bool
	// ColorCycle enables palette animation.
	ColorCycle bool
}

// AllFeatures enables everything.
var AllFeatures = Features{ThreeD: true, GPU: true, ColorCycle: true}

// ZoomPolicy limits views before they are applied. Clamp returns the view to
// use and whether it differs from v.
type ZoomPolicy interface {
	Clamp(v fractal.View, height int, b Backend) (fractal.View, bool)
}

// ZoomPolicyFunc adapts a function to ZoomPolicy.
type ZoomPolicyFunc func(v fractal.View, height int, b Backend) (fractal.View, bool)

func (f ZoomPolicyFunc) Clamp(v fractal.View, height int, b Backend) (fractal.View, bool) {
	return f(v, height, b)
}

// PrecisionPolicy caps the zoom at the float32 limit of the shaders while the
// GPU backend is active. CPU views pass unchanged.
var PrecisionPolicy = ZoomPolicyFunc(func(v fractal.View, height int, b Backend) (fractal.View, bool) {
	if b != GPU {
		return v, false
	}
	return gpu.Clamp(v, height)
})

// Unlimited never clamps.
var Unlimited = ZoomPolicyFunc(func(v fractal.View, _ int, _ Backend) (fractal.View, bool) {
	return v, false
})
