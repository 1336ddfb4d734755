package session

import (
	"context"
	"fmt"

	fractal "github.com/marben/fractal_explorer"
	"github.com/marben/fractal_explorer/locations"
	"github.com/marben/fractal_explorer/render"
	"github.com/marben/fractal_explorer/scheduler"
)

type command struct {
	fn    func() error
	reply chan error
}

// do runs fn on the controller goroutine and returns its error.
func (s *Session) do(ctx context.Context, fn func() error) error {
	c := command{fn: fn, reply: make(chan error, 1)}
	select {
	case s.cmds <- c:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return context.Cause(ctx)
	}
	select {
	case err := <-c.reply:
		return err
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// SetView replaces the view. The epoch starts after the debounce window.
func (s *Session) SetView(ctx context.Context, v fractal.View) error {
	return s.do(ctx, func() error {
		if err := s.applyView(v); err != nil {
			return err
		}
		return s.viewChanged()
	})
}

// Pan moves the view by a pixel delta.
func (s *Session) Pan(ctx context.Context, dx, dy float64) error {
	return s.do(ctx, func() error {
		if err := s.applyView(s.view.Pan(dx, dy, s.width, s.height)); err != nil {
			return err
		}
		return s.viewChanged()
	})
}

// Zoom scales the view by factor around pixel (px, py). Factors below one zoom in.
func (s *Session) Zoom(ctx context.Context, factor, px, py float64) error {
	return s.do(ctx, func() error {
		if factor <= 0 {
			return fmt.Errorf("%w: zoom factor %g", fractal.ErrInvalidView, factor)
		}
		if err := s.applyView(s.view.Zoom(factor, px, py, s.width, s.height)); err != nil {
			return err
		}
		return s.viewChanged()
	})
}

// GoTo jumps to a named landmark.
func (s *Session) GoTo(ctx context.Context, landmark string) error {
	v, err := fractal.Landmark(landmark)
	if err != nil {
		return err
	}
	return s.do(ctx, func() error {
		if err := s.applyView(v); err != nil {
			return err
		}
		return s.startEpoch()
	})
}

// viewChanged redraws immediately on the GPU and debounces CPU epochs.
func (s *Session) viewChanged() error {
	if s.lost != nil {
		return s.lost
	}
	if s.backend == GPU {
		if s.renderGPU() == nil {
			s.abortCPU()
			s.caption()
			return nil
		}
	}
	return s.scheduleEpoch()
}

// SetType switches the fractal. The view is kept.
func (s *Session) SetType(ctx context.Context, t fractal.Type) error {
	return s.do(ctx, func() error {
		if !t.Valid() {
			return fmt.Errorf("%w: %d", fractal.ErrUnknownType, int(t))
		}
		s.params.Type = t
		return s.startEpoch()
	})
}

// SetJulia changes the julia constant.
func (s *Session) SetJulia(ctx context.Context, c complex128) error {
	return s.do(ctx, func() error {
		prev := s.params
		s.params.Julia = c
		if err := s.spec().Validate(); err != nil {
			s.params = prev
			return err
		}
		return s.startEpoch()
	})
}

func (s *Session) SetMaxIter(ctx context.Context, n int) error {
	return s.do(ctx, func() error {
		if n < 1 {
			return fmt.Errorf("%w: maxIter %d", fractal.ErrInvalidSpec, n)
		}
		s.maxIter = n
		return s.startEpoch()
	})
}

// Resize changes the canvas. The buffer is reallocated by the new epoch.
func (s *Session) Resize(ctx context.Context, width, height int) error {
	return s.do(ctx, func() error {
		prevW, prevH := s.width, s.height
		s.width, s.height = width, height
		if err := s.spec().Validate(); err != nil {
			s.width, s.height = prevW, prevH
			return err
		}
		return s.startEpoch()
	})
}

// SetScheme changes the palette. The field is repainted, not recomputed.
func (s *Session) SetScheme(ctx context.Context, name string) error {
	return s.do(ctx, func() error {
		if _, err := render.Lookup(name); err != nil {
			return err
		}
		s.scheme = name
		s.repaint()
		return nil
	})
}

// SetBackend switches between progressive CPU evaluation and the GPU shader.
// When the GPU is not available the session stays on the CPU and reports
// StatusGPUUnavailable once.
func (s *Session) SetBackend(ctx context.Context, b Backend) error {
	return s.do(ctx, func() error {
		if s.lost != nil && b == CPU {
			return s.lost
		}
		if b == s.backend {
			return nil
		}
		if b == CPU {
			s.backend = CPU
			s.status(Status{Code: StatusBackend, Message: CPU.String()})
			return s.startEpoch()
		}

		if !s.features.GPU {
			s.gpuFailed(fmt.Errorf("%w: gpu", ErrFeatureDisabled))
			return nil
		}
		s.backend = GPU
		if err := s.applyView(s.view); err != nil {
			return err
		}
		if err := s.renderGPU(); err != nil {
			// Fell back to the CPU.
			return s.startEpoch()
		}
		s.abortCPU()
		s.caption()
		s.status(Status{Code: StatusBackend, Message: GPU.String()})
		return nil
	})
}

// SetColorCycle starts or stops the palette animation.
func (s *Session) SetColorCycle(ctx context.Context, on bool) error {
	return s.do(ctx, func() error {
		if on && !s.features.ColorCycle {
			return fmt.Errorf("%w: color cycling", ErrFeatureDisabled)
		}
		s.cycling = on
		return nil
	})
}

// Reset returns to the configuration the session was created with and starts
// a new epoch.
func (s *Session) Reset(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.restore()
		s.pending = false
		return s.startEpoch()
	})
}

// Resume applies a saved location. Invalid locations leave the session untouched.
func (s *Session) Resume(ctx context.Context, l locations.Location) error {
	if err := l.Validate(); err != nil {
		return fmt.Errorf("resume %q: %w", l.Name, err)
	}
	return s.do(ctx, func() error {
		if l.ColorScheme != "" {
			if _, err := render.Lookup(l.ColorScheme); err != nil {
				return err
			}
			s.scheme = l.ColorScheme
		}
		s.params = l.Params()
		s.maxIter = l.MaxIter
		if err := s.applyView(l.View); err != nil {
			return err
		}
		return s.startEpoch()
	})
}

// Location captures the current settings for saving.
func (s *Session) Location(ctx context.Context, name string) (locations.Location, error) {
	var l locations.Location
	err := s.do(ctx, func() error {
		l = locations.Location{
			Name:        name,
			View:        s.view,
			Type:        s.params.Type,
			Julia:       [2]float64{real(s.params.Julia), imag(s.params.Julia)},
			MaxIter:     s.maxIter,
			ColorScheme: s.scheme,
		}
		return nil
	})
	return l, err
}

// Heightmap samples the current field as terrain heights, synchronously.
func (s *Session) Heightmap(ctx context.Context, width, height int, exaggeration float64) ([]float32, error) {
	var hm []float32
	err := s.do(ctx, func() error {
		if !s.features.ThreeD {
			return fmt.Errorf("%w: 3d view", ErrFeatureDisabled)
		}
		var err error
		hm, err = fractal.Heightmap(width, height, fractal.HeightmapParams{
			Params: s.params, View: s.view, MaxIter: s.maxIter, Exaggeration: exaggeration,
		})
		return err
	})
	return hm, err
}

// Snapshot describes the controller state.
type Snapshot struct {
	Token    uint64
	State    scheduler.State
	GridStep int
	Progress fractal.Progress
	Backend  Backend
	View     fractal.View
	Params   fractal.Params
	MaxIter  int
	Width    int
	Height   int
	Scheme   string
	Offset   float64
	Cycling  bool
	Err      error
}

func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.do(ctx, func() error {
		snap = Snapshot{
			Token:    s.sched.Current(),
			State:    s.sched.State(),
			GridStep: s.sched.GridStep(),
			Progress: s.progress,
			Backend:  s.backend,
			View:     s.view,
			Params:   s.params,
			MaxIter:  s.maxIter,
			Width:    s.width,
			Height:   s.height,
			Scheme:   s.scheme,
			Offset:   s.offset,
			Cycling:  s.cycling,
			Err:      s.lost,
		}
		return nil
	})
	return snap, err
}
