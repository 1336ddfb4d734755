package fractal

import (
	"fmt"
	"sort"
	"strings"
)

// Region within the complex plane
type Region struct {
	Xmin, Xmax float64
	Ymin, Ymax float64
}

// View centers the region and fits its height into the viewport.
// The horizontal extent then follows from the canvas aspect ratio.
func (r Region) View() View {
	return View{
		CenterX: (r.Xmin + r.Xmax) / 2,
		CenterY: (r.Ymin + r.Ymax) / 2,
		Scale:   r.Ymax - r.Ymin,
	}
}

// RegionOf returns the plane rectangle a view covers on a width x height canvas.
func RegionOf(v View, width, height int) Region {
	x0, y0 := PixelToPlane(0, 0, width, height, v)
	x1, y1 := PixelToPlane(float64(width), float64(height), width, height, v)
	return Region{Xmin: x0, Xmax: x1, Ymin: y0, Ymax: y1}
}

// Classic regions / landmarks in the Mandelbrot set
var (
	// Seahorse Valley: dense filaments and repeating “seahorse” curls
	SeahorseValley = Region{
		Xmin: -0.8,
		Xmax: -0.7,
		Ymin: 0.05,
		Ymax: 0.15,
	}

	// Elephant Valley: large bulb with trunk-like tendrils
	ElephantValley = Region{
		Xmin: -1.85,
		Xmax: -1.75,
		Ymin: -0.10,
		Ymax: -0.02,
	}

	// Spiral Minibrot: small Mandelbrot copy with tight spiral arms
	SpiralMinibrot = Region{
		Xmin: -0.7435,
		Xmax: -0.7420,
		Ymin: 0.1310,
		Ymax: 0.1325,
	}

	// Triple Spiral: threefold symmetric spiral structure
	TripleSpiral = Region{
		Xmin: -0.7480,
		Xmax: -0.7450,
		Ymin: 0.0950,
		Ymax: 0.0980,
	}

	// Valley of the Dragon: deep, highly detailed spiral filaments
	ValleyOfTheDragon = Region{
		Xmin: -0.7400,
		Xmax: -0.7350,
		Ymin: 0.1800,
		Ymax: 0.1850,
	}

	// Minibrot in a Mini-Spiral: self-similar Mandelbrot copy inside a spiral arm
	MinibrotInMiniSpiral = Region{
		Xmin: -1.7390,
		Xmax: -1.7375,
		Ymin: -0.0235,
		Ymax: -0.0220,
	}
)

var landmarks = map[string]Region{
	"seahorse":        SeahorseValley,
	"elephant":        ElephantValley,
	"spiral-minibrot": SpiralMinibrot,
	"triple-spiral":   TripleSpiral,
	"dragon":          ValleyOfTheDragon,
	"mini-spiral":     MinibrotInMiniSpiral,
}

// Landmark looks a named region up. "home" is the default full view.
func Landmark(name string) (View, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "home" || name == "" {
		return DefaultView, nil
	}
	r, ok := landmarks[name]
	if !ok {
		return View{}, fmt.Errorf("%w %q (known: %s)", ErrUnknownPlace, name, strings.Join(LandmarkNames(), ", "))
	}
	return r.View(), nil
}

// LandmarkNames returns the landmark names in sorted order.
func LandmarkNames() []string {
	names := make([]string, 0, len(landmarks)+1)
	names = append(names, "home")
	for n := range landmarks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
