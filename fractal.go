// Package fractal holds the shared model of the progressive fractal explorer:
// views, fractal parameters, jobs, result buffers, the escape-time evaluator
// and the message protocol spoken between the controller and the compute worker.
package fractal

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrInvalidView    = errors.New("invalid view")
	ErrInvalidSpec    = errors.New("invalid fractal spec")
	ErrInvalidJob     = errors.New("invalid job")
	ErrUnknownType    = errors.New("unknown fractal type")
	ErrCellAlreadySet = errors.New("cell already computed")
	ErrUnknownPlace   = errors.New("unknown landmark")
)

// View is the viewport transform: the complex-plane point at the center of the
// viewport and the height of the viewport in plane units.
type View struct {
	CenterX float64 `json:"centerX"`
	CenterY float64 `json:"centerY"`
	Scale   float64 `json:"scale"`
}

// DefaultView frames the whole Mandelbrot set.
var DefaultView = View{CenterX: -0.5, CenterY: 0, Scale: 3}

// Validate rejects views that would turn the pixel mapping into NaN garbage.
func (v View) Validate() error {
	for _, f := range [...]float64{v.CenterX, v.CenterY, v.Scale} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite component in %+v", ErrInvalidView, v)
		}
	}
	if v.Scale <= 0 {
		return fmt.Errorf("%w: scale %g must be positive", ErrInvalidView, v.Scale)
	}
	return nil
}

// Pan moves the view by a pixel delta on a width x height canvas.
// Dragging the image right moves the center left.
func (v View) Pan(dx, dy float64, width, height int) View {
	aspect := float64(width) / float64(height)
	v.CenterX -= dx * v.Scale / float64(width) * aspect
	v.CenterY -= dy * v.Scale / float64(height)
	return v
}

// Zoom multiplies the scale by factor, keeping the plane point under pixel
// (px, py) fixed.
func (v View) Zoom(factor, px, py float64, width, height int) View {
	ax, ay := PixelToPlane(px, py, width, height, v)
	v.Scale *= factor
	bx, by := PixelToPlane(px, py, width, height, v)
	v.CenterX += ax - bx
	v.CenterY += ay - by
	return v
}

// Type selects the iteration rule.
// The numeric order is shared with the GPU shaders.
type Type int

const (
	Mandelbrot Type = iota
	Julia
	BurningShip
	Tricorn
)

var typeNames = [...]string{"mandelbrot", "julia", "burningship", "tricorn"}

// Types lists every supported fractal type.
func Types() []Type {
	return []Type{Mandelbrot, Julia, BurningShip, Tricorn}
}

func (t Type) String() string {
	if !t.Valid() {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return typeNames[t]
}

func (t Type) Valid() bool {
	return t >= Mandelbrot && t <= Tricorn
}

// ParseType accepts the lower-case names used on the wire.
func ParseType(s string) (Type, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range typeNames {
		if n == name {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, int(t))
	}
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// DefaultJuliaC is the julia constant used until the user picks another one.
const DefaultJuliaC = complex(-0.4, 0.6)

// Params selects a fractal. Julia is only read for the julia type.
type Params struct {
	Type  Type       `json:"type"`
	Julia complex128 `json:"-"`
}

// DefaultParams is the plain Mandelbrot set with the default julia constant kept around.
var DefaultParams = Params{Type: Mandelbrot, Julia: DefaultJuliaC}

// JuliaC returns the julia constant as the (cx, cy) pair used by the evaluators.
func (p Params) JuliaC() (float64, float64) {
	if p.Type != Julia {
		return 0, 0
	}
	return real(p.Julia), imag(p.Julia)
}

// MaxCells bounds Width*Height of a Spec.
const MaxCells = 1 << 24

// Spec is one epoch's configuration: everything that, when changed, restarts
// the progressive computation.
type Spec struct {
	Params  Params
	View    View
	MaxIter int
	Width   int
	Height  int
}

func (s Spec) Validate() error {
	if !s.Params.Type.Valid() {
		return fmt.Errorf("%w: %w: %d", ErrInvalidSpec, ErrUnknownType, int(s.Params.Type))
	}
	if err := s.View.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSpec, err)
	}
	if s.MaxIter < 1 {
		return fmt.Errorf("%w: maxIter %d", ErrInvalidSpec, s.MaxIter)
	}
	if s.Width < 1 || s.Height < 1 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidSpec, s.Width, s.Height)
	}
	if s.Width > MaxCells/s.Height {
		return fmt.Errorf("%w: dimensions %dx%d exceed %d cells", ErrInvalidSpec, s.Width, s.Height, MaxCells)
	}
	if s.Params.Type == Julia {
		if cx, cy := real(s.Params.Julia), imag(s.Params.Julia); math.IsNaN(cx) || math.IsNaN(cy) || math.IsInf(cx, 0) || math.IsInf(cy, 0) {
			return fmt.Errorf("%w: julia constant %v", ErrInvalidSpec, s.Params.Julia)
		}
	}
	return nil
}

// Aspect is width / height.
func (s Spec) Aspect() float64 {
	return float64(s.Width) / float64(s.Height)
}
