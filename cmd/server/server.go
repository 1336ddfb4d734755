package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sync/errgroup"

	fractal "github.com/marben/fractal_explorer"
	"github.com/marben/fractal_explorer/gpu"
	"github.com/marben/fractal_explorer/locations"
	"github.com/marben/fractal_explorer/session"
	"github.com/marben/fractal_explorer/worker"
)

// main is the entry point for the fractal server.
// Every websocket client gets its own session and compute worker; the browser
// and the cli client only draw what they are sent.
func main() {
	if err := run(); err != nil {
		log.Fatalf("run: %+v", err)
	}
}

type config struct {
	port     int
	static   string
	debounce time.Duration
	noGPU    bool
	verbose  bool
	session  session.Config
	workers  []worker.Option
}

func parseFlags(args []string) (config, error) {
	cfg := config{session: session.DefaultConfig()}
	var batch, parallel int

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.IntVar(&cfg.port, "port", 8080, "http port")
	fs.StringVar(&cfg.static, "static", "./static", "directory with index.html and main.wasm")
	fs.DurationVar(&cfg.debounce, "debounce", session.DefaultDebounce, "coalescing window of view changes")
	fs.BoolVar(&cfg.noGPU, "nogpu", false, "disable the gpu backend")
	fs.BoolVar(&cfg.verbose, "v", false, "log sessions and workers")
	fs.IntVar(&cfg.session.MaxIter, "maxiter", cfg.session.MaxIter, "initial iteration limit")
	fs.IntVar(&batch, "batch", worker.DefaultBatchMin, "minimum cells evaluated between abort checks")
	fs.IntVar(&parallel, "parallel", 1, "goroutines per worker")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	cfg.workers = []worker.Option{worker.WithBatchMin(batch), worker.WithParallelism(parallel)}
	return cfg, nil
}

// server holds what the connections share.
type server struct {
	cfg       config
	features  session.Features
	workers   *workerSet
	locations *locations.Repository
}

func newServer(cfg config) *server {
	return &server{
		cfg:       cfg,
		features:  session.AllFeatures,
		workers:   newWorkerSet(cfg.workers...),
		locations: locations.New(),
	}
}

func run() error {
	// Step 1: configuration
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		return err
	}
	if cfg.verbose {
		fractal.SetLogger(slog.Default())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	srv := newServer(cfg)

	// Step 2: the gpu backend is offered only when the shader passes validation
	if cfg.noGPU {
		srv.features.GPU = false
	} else if spv, err := gpu.Compile(); err != nil {
		log.Printf("gpu backend disabled: %v", err)
		srv.features.GPU = false
	} else {
		log.Printf("wgsl shader validated (%d SPIR-V words)", len(gpu.SPIRVWords(spv)))
	}

	// Step 3: http server with the websocket endpoint
	httpServer := srv.webServer(cfg.port)
	httpServer.BaseContext = func(net.Listener) context.Context { return ctx }

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("listening on http://localhost:%d", cfg.port)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("httpServer: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		srv.workers.wait()
		return err
	})
	return g.Wait()
}
