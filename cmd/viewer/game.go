package main

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"math"
	"os"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	fractal "github.com/marben/fractal_explorer"
	"github.com/marben/fractal_explorer/locations"
	"github.com/marben/fractal_explorer/render"
	"github.com/marben/fractal_explorer/session"
)

const help = "drag: pan  wheel: zoom  1-4: type  c: colours  +/-: iterations\n" +
	"g: gpu  p: cycle  s: save  l: last saved  t: heightmap  r: reset  esc: quit"

// wheelZoom is the scale factor of one wheel notch.
const wheelZoom = 0.8

// command is a session call made off the ebiten goroutine.
type command func(ctx context.Context) error

type game struct {
	sess   *session.Session
	canvas *render.Canvas
	shader *kageDisplay
	places *locations.Repository
	cmds   chan command

	// Owned by the ebiten goroutine.
	width    int
	height   int
	scheme   int
	maxIter  int
	cycling  bool
	dragging bool
	lastX    int
	lastY    int
	img      *ebiten.Image
	pix      []byte

	// Set from the session goroutine.
	m       sync.Mutex
	status  string
	gpuMode bool
}

func newGame(cfg session.Config, canvas *render.Canvas, shader *kageDisplay, places *locations.Repository) *game {
	scheme, err := render.SchemeIndex(cfg.Scheme)
	if err != nil {
		scheme = 0
	}
	return &game{
		canvas:  canvas,
		shader:  shader,
		places:  places,
		cmds:    make(chan command, 64),
		width:   cfg.Width,
		height:  cfg.Height,
		scheme:  scheme,
		maxIter: cfg.MaxIter,
	}
}

// queue hands fn to runCommands without blocking the frame.
func (g *game) queue(fn command) {
	select {
	case g.cmds <- fn:
	default:
		log.Printf("input queue full, dropping command")
	}
}

func (g *game) runCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-g.cmds:
			if err := fn(ctx); err != nil {
				log.Printf("%v", err)
				g.setStatus(err.Error())
			}
		}
	}
}

func (g *game) setStatus(s string) {
	g.m.Lock()
	g.status = s
	g.m.Unlock()
}

// onStatus runs on the session goroutine.
func (g *game) onStatus(st session.Status) {
	g.m.Lock()
	defer g.m.Unlock()
	switch st.Code {
	case session.StatusBackend:
		g.gpuMode = st.Message == session.GPU.String()
	case session.StatusGPUUnavailable, session.StatusEpochStarted:
		g.gpuMode = false
	}
	g.status = string(st.Code)
	if st.Message != "" {
		g.status += ": " + st.Message
	}
	if st.GridStep > 0 {
		g.status += fmt.Sprintf(" (step %d)", st.GridStep)
	}
}

func (g *game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	sess := g.sess

	x, y := ebiten.CursorPosition()
	if ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		if g.dragging && (x != g.lastX || y != g.lastY) {
			dx, dy := float64(x-g.lastX), float64(y-g.lastY)
			g.queue(func(ctx context.Context) error { return sess.Pan(ctx, dx, dy) })
		}
		g.dragging, g.lastX, g.lastY = true, x, y
	} else {
		g.dragging = false
	}
	if _, wy := ebiten.Wheel(); wy != 0 {
		factor := math.Pow(wheelZoom, wy)
		px, py := float64(x), float64(y)
		g.queue(func(ctx context.Context) error { return sess.Zoom(ctx, factor, px, py) })
	}

	for i, key := range []ebiten.Key{ebiten.KeyDigit1, ebiten.KeyDigit2, ebiten.KeyDigit3, ebiten.KeyDigit4} {
		if inpututil.IsKeyJustPressed(key) {
			t := fractal.Types()[i]
			g.queue(func(ctx context.Context) error { return sess.SetType(ctx, t) })
			ebiten.SetWindowTitle(fmt.Sprintf("fractal explorer (%s)", t))
		}
	}

	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeyC):
		g.scheme = (g.scheme + 1) % len(render.Schemes)
		name := render.Schemes[g.scheme]
		g.queue(func(ctx context.Context) error { return sess.SetScheme(ctx, name) })
	case inpututil.IsKeyJustPressed(ebiten.KeyEqual):
		g.maxIter *= 2
		n := g.maxIter
		g.queue(func(ctx context.Context) error { return sess.SetMaxIter(ctx, n) })
	case inpututil.IsKeyJustPressed(ebiten.KeyMinus) && g.maxIter > 16:
		g.maxIter /= 2
		n := g.maxIter
		g.queue(func(ctx context.Context) error { return sess.SetMaxIter(ctx, n) })
	case inpututil.IsKeyJustPressed(ebiten.KeyG):
		b := session.GPU
		if g.gpu() {
			b = session.CPU
		}
		g.queue(func(ctx context.Context) error { return sess.SetBackend(ctx, b) })
	case inpututil.IsKeyJustPressed(ebiten.KeyP):
		g.cycling = !g.cycling
		on := g.cycling
		g.queue(func(ctx context.Context) error { return sess.SetColorCycle(ctx, on) })
	case inpututil.IsKeyJustPressed(ebiten.KeyR):
		g.cycling = false
		g.queue(func(ctx context.Context) error { return sess.Reset(ctx) })
	case inpututil.IsKeyJustPressed(ebiten.KeyS):
		g.queue(g.save)
	case inpututil.IsKeyJustPressed(ebiten.KeyL):
		g.queue(g.resumeLast)
	case inpututil.IsKeyJustPressed(ebiten.KeyT):
		g.queue(g.exportHeightmap(g.width, g.height))
	}
	return nil
}

func (g *game) gpu() bool {
	g.m.Lock()
	defer g.m.Unlock()
	return g.gpuMode
}

func (g *game) Draw(screen *ebiten.Image) {
	if !g.gpu() || !g.shader.draw(screen) {
		g.drawCanvas(screen)
	}

	g.m.Lock()
	status := g.status
	g.m.Unlock()
	ebitenutil.DebugPrintAt(screen, fmt.Sprintf("%s\nFPS %.0f  %s", help, ebiten.ActualFPS(), status), 0, g.height-48)
}

// drawCanvas blits the last cpu frame.
func (g *game) drawCanvas(screen *ebiten.Image) {
	b := g.canvas.Bounds()
	if b.Empty() {
		return
	}
	if g.img == nil || g.img.Bounds().Dx() != b.Dx() || g.img.Bounds().Dy() != b.Dy() {
		if g.img != nil {
			g.img.Deallocate()
		}
		g.img = ebiten.NewImage(b.Dx(), b.Dy())
		g.pix = make([]byte, 4*b.Dx()*b.Dy())
	}
	if g.canvas.CopyPixels(g.pix) {
		g.img.WritePixels(g.pix)
	}
	screen.DrawImage(g.img, nil)
}

func (g *game) Layout(outsideWidth, outsideHeight int) (int, int) {
	if outsideWidth != g.width || outsideHeight != g.height {
		g.width, g.height = outsideWidth, outsideHeight
		w, h := outsideWidth, outsideHeight
		g.queue(func(ctx context.Context) error { return g.sess.Resize(ctx, w, h) })
	}
	return outsideWidth, outsideHeight
}

func (g *game) save(ctx context.Context) error {
	l, err := g.sess.Location(ctx, "")
	if err != nil {
		return err
	}
	saved, err := g.places.Save(l)
	if err != nil {
		return err
	}
	g.setStatus(fmt.Sprintf("saved %q", saved.Name))
	return nil
}

func (g *game) resumeLast(ctx context.Context) error {
	ls := g.places.List(locations.ByNewest)
	if len(ls) == 0 {
		return fmt.Errorf("resume: %w", locations.ErrNotFound)
	}
	return g.sess.Resume(ctx, ls[0])
}

// exportHeightmap writes the current view as a 16-bit grayscale terrain with
// the aspect ratio of the window.
func (g *game) exportHeightmap(winWidth, winHeight int) command {
	return func(ctx context.Context) error {
		const width = 512
		height := max(1, width*winHeight/winWidth)
		heights, err := g.sess.Heightmap(ctx, width, height, fractal.DefaultExaggeration)
		if err != nil {
			return err
		}
		img := image.NewGray16(image.Rect(0, 0, width, height))
		for i, h := range heights {
			y := math.Min(1, float64(h)/fractal.DefaultExaggeration)
			img.SetGray16(i%width, i/width, color.Gray16{Y: uint16(y * math.MaxUint16)})
		}

		const filename = "heightmap.png"
		f, err := os.Create(filename)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := png.Encode(f, img); err != nil {
			return fmt.Errorf("encode heightmap: %w", err)
		}
		g.setStatus(fmt.Sprintf("heightmap saved to %q", filename))
		return nil
	}
}
