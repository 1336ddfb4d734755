package main

import (
	"net/http"

	fractal "github.com/marben/fractal_explorer"
)

// landmark is one entry of GET /api/landmarks.
type landmark struct {
	Name string       `json:"name"`
	View fractal.View `json:"view"`
}

// landmarks lists the classic regions of the mandelbrot set the clients can
// jump to with the landmark command.
func landmarks() []landmark {
	names := fractal.LandmarkNames()
	out := make([]landmark, 0, len(names))
	for _, n := range names {
		v, err := fractal.Landmark(n)
		if err != nil {
			continue
		}
		out = append(out, landmark{Name: n, View: v})
	}
	return out
}

func landmarksHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, landmarks())
}
