package fractal

import (
	"fmt"
	"math"
)

// DefaultExaggeration scales terrain heights when none is given.
const DefaultExaggeration = 0.07

// HeightmapParams configures a terrain sample of the field.
type HeightmapParams struct {
	Params       Params
	View         View
	MaxIter      int
	Exaggeration float64
}

// Heightmap samples the field on a width x height grid and converts escape
// iterations to heights: log(iter+1)/log(maxIter+1) for escaped points, 0 for
// interior points, both multiplied by the exaggeration. It runs synchronously.
func Heightmap(width, height int, hp HeightmapParams) ([]float32, error) {
	s := Spec{Params: hp.Params, View: hp.View, MaxIter: hp.MaxIter, Width: width, Height: height}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("heightmap: %w", err)
	}
	ex := hp.Exaggeration
	if ex <= 0 {
		ex = DefaultExaggeration
	}

	norm := math.Log(float64(hp.MaxIter) + 1)
	heights := make([]float32, width*height)
	for py := 0; py < height; py++ {
		for px := 0; px < width; px++ {
			heights[py*width+px] = float32(Height(EvaluatePixel(s, px, py), hp.MaxIter, norm) * ex)
		}
	}
	return heights, nil
}

// Height is the unexaggerated terrain height of one iteration count.
// norm must be log(maxIter+1).
func Height(iter, maxIter int, norm float64) float64 {
	if iter >= maxIter || iter < 0 {
		return 0
	}
	return math.Log(float64(iter)+1) / norm
}
