// cliclient is a command line client for the fractal server.
// It connects over websocket, asks for one view, waits until the server has
// refined it to full resolution and saves the result as a PNG file.

package main

import (
	"context"
	"flag"
	"fmt"
	"image/png"
	"log"
	"os"
	"time"

	fractal "github.com/marben/fractal_explorer"
	"github.com/marben/fractal_explorer/render"
)

// main is the entry point for the CLI client.
// It runs the client logic and logs any fatal errors.
func main() {
	log.Printf("Starting CLI client...")
	if err := run(); err != nil {
		log.Fatalf("FATAL: %v", err)
	}
}

// run parses the flags, fetches the image and saves it as a PNG file.
func run() error {
	// Step 1: Parse the requested view
	var (
		addr     = flag.String("addr", "ws://localhost:8080/ws", "server websocket endpoint")
		out      = flag.String("o", "fractal.png", "output file")
		timeout  = flag.Duration("timeout", time.Minute, "give up after this long")
		typ      = flag.String("type", fractal.Mandelbrot.String(), "fractal type")
		landmark = flag.String("landmark", "", "named view, overrides -cx, -cy and -scale")
		req      = request{View: fractal.DefaultView, Julia: fractal.DefaultJuliaC}
		jr, ji   float64
	)
	flag.IntVar(&req.Width, "w", 1920, "image width")
	flag.IntVar(&req.Height, "h", 1080, "image height")
	flag.IntVar(&req.MaxIter, "maxiter", 512, "iteration limit")
	flag.Float64Var(&req.View.CenterX, "cx", req.View.CenterX, "view center, real part")
	flag.Float64Var(&req.View.CenterY, "cy", req.View.CenterY, "view center, imaginary part")
	flag.Float64Var(&req.View.Scale, "scale", req.View.Scale, "view height in plane units")
	flag.Float64Var(&jr, "jr", real(req.Julia), "julia constant, real part")
	flag.Float64Var(&ji, "ji", imag(req.Julia), "julia constant, imaginary part")
	flag.StringVar(&req.Scheme, "scheme", render.DefaultScheme, "colour scheme")
	flag.Parse()

	t, err := fractal.ParseType(*typ)
	if err != nil {
		return err
	}
	req.Type = t
	req.Julia = complex(jr, ji)
	if *landmark != "" {
		if req.View, err = fractal.Landmark(*landmark); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// Step 2: Connect to the server and wait for the finished image
	log.Printf("Requesting %dx%d %s at %+v from %s...", req.Width, req.Height, req.Type, req.View, *addr)
	img, err := fetch(ctx, *addr, req, func(step int) { log.Printf("pass with grid step %d", step) })
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	// Step 3: Save the rendered image to a PNG file
	log.Printf("Saving rendered image to %q...", *out)
	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("failed to encode PNG: %w", err)
	}

	log.Printf("Fully rendered image saved to %q", *out)
	return nil
}
