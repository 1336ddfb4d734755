package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	hudBackground = image.NewUniform(color.RGBA{0, 0, 0, 160})
	hudText       = image.NewUniform(color.RGBA{230, 230, 230, 255})
	hudError      = image.NewUniform(color.RGBA{255, 90, 90, 255})
)

const hudPad = 6

// drawHUD writes the caption lines in the top-left corner and the error, if
// any, below them in red.
func drawHUD(img *image.RGBA, caption string, failure error) {
	var lines []string
	if caption != "" {
		lines = append(lines, strings.Split(caption, "\n")...)
	}
	errLine := -1
	if failure != nil {
		errLine = len(lines)
		lines = append(lines, "ERROR: "+failure.Error())
	}
	if len(lines) == 0 {
		return
	}

	face := basicfont.Face7x13
	lineH := face.Metrics().Height.Ceil()
	width := 0
	for _, l := range lines {
		if w := font.MeasureString(face, l).Ceil(); w > width {
			width = w
		}
	}
	box := image.Rect(0, 0, width+2*hudPad, len(lines)*lineH+2*hudPad).Intersect(img.Rect)
	draw.Draw(img, box, hudBackground, image.Point{}, draw.Over)

	d := &font.Drawer{Dst: img, Face: face}
	for i, l := range lines {
		d.Src = hudText
		if i == errLine {
			d.Src = hudError
		}
		d.Dot = fixed.P(hudPad, hudPad+(i+1)*lineH-face.Metrics().Descent.Ceil())
		d.DrawString(l)
	}
}

// Caption formats the info line shown over the fractal.
func Caption(typ string, centerX, centerY, scale float64, maxIter int) string {
	return fmt.Sprintf("%s  Center: (%.5f, %.5f)  Zoom: %.2f  Iter: %d", typ, centerX, centerY, 1/scale, maxIter)
}
