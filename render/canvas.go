package render

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	fractal "github.com/marben/fractal_explorer"
)

// Canvas is the CPU 2D display. It keeps one RGBA surface and repaints it
// from every published buffer.
type Canvas struct {
	preview bool
	hud     bool

	mu      sync.Mutex
	img     *image.RGBA
	lut     []color.RGBA
	caption string
	failure error
	frames  int
}

type CanvasOption func(*Canvas)

// WithPreview fills cells that are not computed yet with the colour of the
// closest computed coarse-grid anchor instead of the pending gray.
func WithPreview(on bool) CanvasOption {
	return func(c *Canvas) { c.preview = on }
}

// WithHUD draws the caption (and error state) on top of every frame.
func WithHUD(on bool) CanvasOption {
	return func(c *Canvas) { c.hud = on }
}

func NewCanvas(opts ...CanvasOption) *Canvas {
	c := &Canvas{}
	for _, o := range opts {
		o(c)
	}
	return c
}

var _ fractal.Display = (*Canvas)(nil)

// Render implements fractal.Display.
func (c *Canvas) Render(buf *fractal.ResultBuffer, maxIter int, scheme string, offset float64) error {
	p, err := Lookup(scheme)
	if err != nil {
		return err
	}
	if err := buf.Validate(); err != nil {
		return fmt.Errorf("render: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.img == nil || c.img.Rect.Dx() != buf.Width || c.img.Rect.Dy() != buf.Height {
		c.img = image.NewRGBA(image.Rect(0, 0, buf.Width, buf.Height))
	}
	c.lut = buildLUT(c.lut, maxIter, p, offset)

	Paint(c.img, buf, c.lut, c.preview)
	if c.hud {
		drawHUD(c.img, c.caption, c.failure)
	}
	c.frames++
	return nil
}

// buildLUT caches one colour per iteration count; index maxIter is the interior.
func buildLUT(lut []color.RGBA, maxIter int, p Palette, offset float64) []color.RGBA {
	if cap(lut) < maxIter+1 {
		lut = make([]color.RGBA, maxIter+1)
	}
	lut = lut[:maxIter+1]
	for i := range lut {
		lut[i] = Color(int32(i), maxIter, p, offset)
	}
	return lut
}

// Paint writes buf into img through the lookup table. img must match the
// buffer dimensions.
func Paint(img *image.RGBA, buf *fractal.ResultBuffer, lut []color.RGBA, preview bool) {
	maxIter := len(lut) - 1
	for y := 0; y < buf.Height; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < buf.Width; x++ {
			v := buf.Cells[y*buf.Width+x]
			if v == fractal.NotComputed && preview {
				v = anchor(buf, x, y)
			}
			var col color.RGBA
			switch {
			case v == fractal.NotComputed:
				col = Pending
			case int(v) >= maxIter:
				col = lut[maxIter]
			default:
				col = lut[v]
			}
			o := x * 4
			row[o+0] = col.R
			row[o+1] = col.G
			row[o+2] = col.B
			row[o+3] = col.A
		}
	}
}

// anchor returns the value of the finest computed lattice point covering (x, y).
func anchor(buf *fractal.ResultBuffer, x, y int) int32 {
	for step := 2; step <= fractal.DefaultCoarseStep*2; step *= 2 {
		v := buf.Cells[(y-y%step)*buf.Width+(x-x%step)]
		if v != fractal.NotComputed {
			return v
		}
	}
	return fractal.NotComputed
}

// SetCaption sets the HUD text drawn on the next frame.
func (c *Canvas) SetCaption(s string) {
	c.mu.Lock()
	c.caption = s
	c.mu.Unlock()
}

// ShowError switches the HUD into the error state; nil clears it.
// The current surface is repainted immediately when the HUD is enabled.
func (c *Canvas) ShowError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failure = err
	if c.hud && c.img != nil {
		drawHUD(c.img, c.caption, c.failure)
	}
}

// Snapshot returns a copy of the current surface, or nil before the first frame.
func (c *Canvas) Snapshot() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.img == nil {
		return nil
	}
	cp := image.NewRGBA(c.img.Rect)
	copy(cp.Pix, c.img.Pix)
	return cp
}

// CopyPixels copies the surface into dst when dst has the right size.
// It reports whether anything was copied; used by displays that blit every frame.
func (c *Canvas) CopyPixels(dst []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.img == nil || len(dst) != len(c.img.Pix) {
		return false
	}
	copy(dst, c.img.Pix)
	return true
}

// Bounds returns the surface size.
func (c *Canvas) Bounds() image.Rectangle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.img == nil {
		return image.Rectangle{}
	}
	return c.img.Rect
}

// Frames counts rendered frames.
func (c *Canvas) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}
