// viewer is the desktop fractal explorer.
// It runs the session and the compute worker in-process and draws with ebiten:
// progressive cpu frames from the canvas, or the Kage shader in gpu mode.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"

	"github.com/hajimehoshi/ebiten/v2"

	fractal "github.com/marben/fractal_explorer"
	"github.com/marben/fractal_explorer/gpu"
	"github.com/marben/fractal_explorer/locations"
	"github.com/marben/fractal_explorer/render"
	"github.com/marben/fractal_explorer/session"
	"github.com/marben/fractal_explorer/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("run: %+v", err)
	}
}

func run() error {
	// Step 1: configuration
	cfg := session.DefaultConfig()
	var (
		typ      = flag.String("type", cfg.Params.Type.String(), "fractal type")
		landmark = flag.String("landmark", "", "start at a named view")
		useGPU   = flag.Bool("gpu", false, "start with the gpu backend")
		parallel = flag.Int("parallel", 4, "goroutines evaluating cells")
		verbose  = flag.Bool("v", false, "log session and worker events")
	)
	flag.IntVar(&cfg.Width, "w", cfg.Width, "window width")
	flag.IntVar(&cfg.Height, "h", cfg.Height, "window height")
	flag.IntVar(&cfg.MaxIter, "maxiter", cfg.MaxIter, "iteration limit")
	flag.StringVar(&cfg.Scheme, "scheme", cfg.Scheme, "colour scheme")
	flag.Parse()

	if *verbose {
		fractal.SetLogger(slog.Default())
	}
	t, err := fractal.ParseType(*typ)
	if err != nil {
		return err
	}
	cfg.Params.Type = t
	if *landmark != "" {
		if cfg.View, err = fractal.Landmark(*landmark); err != nil {
			return err
		}
	}
	if _, err := render.Lookup(cfg.Scheme); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Step 2: the compute worker
	w := worker.New(worker.WithParallelism(*parallel))
	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("worker: %v", err)
		}
	}()

	// Step 3: displays and the session driving them
	canvas := render.NewCanvas(render.WithPreview(true), render.WithHUD(true))
	shader := newKageDisplay(gpu.Kage())
	g := newGame(cfg, canvas, shader, locations.New())
	sess := session.New(w, cfg,
		session.WithDisplay(canvas),
		session.WithGPUDisplay(shader),
		session.WithStatus(g.onStatus),
		session.WithFeatures(session.AllFeatures),
	)
	g.sess = sess
	go func() {
		if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("session: %v", err)
		}
	}()
	go g.runCommands(ctx)

	if *useGPU {
		g.queue(func(ctx context.Context) error { return sess.SetBackend(ctx, session.GPU) })
	}

	// Step 4: the window
	ebiten.SetWindowTitle(fmt.Sprintf("fractal explorer (%s)", t))
	ebiten.SetWindowSize(cfg.Width, cfg.Height)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	if err := ebiten.RunGame(g); err != nil && !errors.Is(err, ebiten.Termination) {
		return err
	}
	return nil
}
