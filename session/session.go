// Package session is the controller of the explorer.
//
// A Session owns the scheduler, the worker handle and the displays. All of
// them are touched only by the goroutine running Session.Run; the exported
// methods hand closures to that goroutine and wait for the answer. The loop
// never waits for the worker: it posts Submit and Abort and reacts to Done
// messages as they come back.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	fractal "github.com/marben/fractal_explorer"
	"github.com/marben/fractal_explorer/gpu"
	"github.com/marben/fractal_explorer/render"
	"github.com/marben/fractal_explorer/scheduler"
)

var (
	ErrWorkerUnavailable = errors.New("compute worker unavailable")
	ErrFeatureDisabled   = errors.New("feature disabled")
	ErrClosed            = errors.New("session closed")
)

// Worker is the controller's handle on the compute worker.
type Worker interface {
	Post(fractal.Message) error
	// Messages is closed when the worker terminates.
	Messages() <-chan fractal.Message
}

// StatusCode names a status event.
type StatusCode string

const (
	StatusEpochStarted      StatusCode = "epoch-started"
	StatusPass              StatusCode = "pass"
	StatusEpochComplete     StatusCode = "epoch-complete"
	StatusFailed            StatusCode = "failed"
	StatusBackend           StatusCode = "backend"
	StatusGPUUnavailable    StatusCode = "gpu-unavailable"
	StatusZoomCapped        StatusCode = "zoom-capped"
	StatusWorkerUnavailable StatusCode = "worker-unavailable"
)

// Status is published on the controller goroutine; handlers must not block.
type Status struct {
	Code     StatusCode
	Token    uint64
	GridStep int
	Message  string
	Err      error
}

// Config is the initial state of a session and the state Reset returns to.
type Config struct {
	Width   int
	Height  int
	MaxIter int
	Params  fractal.Params
	View    fractal.View
	Scheme  string
}

func DefaultConfig() Config {
	return Config{
		Width:   800,
		Height:  600,
		MaxIter: 256,
		Params:  fractal.DefaultParams,
		View:    fractal.DefaultView,
		Scheme:  render.DefaultScheme,
	}
}

const (
	DefaultDebounce      = 100 * time.Millisecond
	DefaultCycleInterval = 50 * time.Millisecond
	DefaultCycleStep     = 0.01
)

// errorDisplay is implemented by displays that can show the error state.
type errorDisplay interface {
	ShowError(error)
}

type captioner interface {
	SetCaption(string)
}

type Session struct {
	cfg      Config
	worker   Worker
	display  fractal.Display
	gpu      fractal.GPUDisplay
	policy   ZoomPolicy
	features Features
	onStatus func(Status)
	debounce time.Duration
	cycleInt time.Duration
	cycleInc float64
	schedOpt []scheduler.Option

	cmds chan command
	done chan struct{}

	// Owned by the Run goroutine.
	sched       *scheduler.Scheduler
	view        fractal.View
	params      fractal.Params
	maxIter     int
	width       int
	height      int
	scheme      string
	offset      float64
	cycling     bool
	backend     Backend
	gpuReported bool
	lost        error
	pending     bool
	progress    fractal.Progress
	debounceT   *time.Timer
}

type Option func(*Session)

func WithDisplay(d fractal.Display) Option {
	return func(s *Session) { s.display = d }
}

func WithGPUDisplay(d fractal.GPUDisplay) Option {
	return func(s *Session) { s.gpu = d }
}

func WithZoomPolicy(p ZoomPolicy) Option {
	return func(s *Session) { s.policy = p }
}

func WithFeatures(f Features) Option {
	return func(s *Session) { s.features = f }
}

// WithStatus registers the status handler.
func WithStatus(fn func(Status)) Option {
	return func(s *Session) { s.onStatus = fn }
}

// WithDebounce sets the coalescing window of view changes. Zero starts an
// epoch on every change.
func WithDebounce(d time.Duration) Option {
	return func(s *Session) { s.debounce = d }
}

// WithColorCycle sets the palette animation speed: step is added to the colour
// offset every interval.
func WithColorCycle(interval time.Duration, step float64) Option {
	return func(s *Session) {
		s.cycleInt = interval
		s.cycleInc = step
	}
}

// WithScheduler passes options to the progressive scheduler.
func WithScheduler(opts ...scheduler.Option) Option {
	return func(s *Session) { s.schedOpt = append(s.schedOpt, opts...) }
}

// New creates a session on top of w. Nothing happens until Run is called.
func New(w Worker, cfg Config, opts ...Option) *Session {
	s := &Session{
		cfg:      cfg,
		worker:   w,
		policy:   PrecisionPolicy,
		onStatus: func(Status) {},
		debounce: DefaultDebounce,
		cycleInt: DefaultCycleInterval,
		cycleInc: DefaultCycleStep,
		cmds:     make(chan command),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.sched = scheduler.New(s.schedOpt...)
	s.restore()
	return s
}

func (s *Session) restore() {
	s.view = s.cfg.View
	s.params = s.cfg.Params
	s.maxIter = s.cfg.MaxIter
	s.width = s.cfg.Width
	s.height = s.cfg.Height
	s.scheme = s.cfg.Scheme
	if s.scheme == "" {
		s.scheme = render.DefaultScheme
	}
	s.offset = 0
	s.cycling = false
	s.backend = CPU
}

func (s *Session) log() *slog.Logger {
	return fractal.Logger().With("component", "session")
}

// Run is the controller loop. It starts the first epoch and returns when ctx
// is cancelled.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)

	s.debounceT = time.NewTimer(time.Hour)
	s.debounceT.Stop()
	defer s.debounceT.Stop()

	cycle := time.NewTicker(s.cycleInt)
	defer cycle.Stop()

	if err := s.startEpoch(); err != nil {
		s.log().Warn("initial epoch", "err", err)
	}

	msgs := s.worker.Messages()
	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case c := <-s.cmds:
			c.reply <- c.fn()
		case m, ok := <-msgs:
			if !ok {
				msgs = nil
				s.workerLost()
				continue
			}
			s.handle(m)
		case <-s.debounceT.C:
			if s.pending {
				if err := s.startEpoch(); err != nil {
					s.log().Warn("debounced epoch", "err", err)
				}
			}
		case <-cycle.C:
			if s.cycling {
				s.offset = render.Cycle(s.offset, s.cycleInc)
				s.repaint()
			}
		}
	}
}

func (s *Session) status(st Status) {
	s.onStatus(st)
}

func (s *Session) spec() fractal.Spec {
	return fractal.Spec{Params: s.params, View: s.view, MaxIter: s.maxIter, Width: s.width, Height: s.height}
}

// startEpoch restarts the evaluation for the current settings.
func (s *Session) startEpoch() error {
	s.pending = false
	s.debounceT.Stop()
	if s.lost != nil {
		return s.lost
	}
	spec := s.spec()
	if err := spec.Validate(); err != nil {
		return err
	}
	s.caption()

	if s.backend == GPU {
		if err := s.renderGPU(); err == nil {
			s.abortCPU()
			return nil
		}
	}

	// Every job submitted so far is superseded.
	s.sched.Abort()
	if err := s.worker.Post(fractal.Abort{}); err != nil {
		return s.postFailed(err)
	}
	job, err := s.sched.Start(spec)
	if err != nil {
		return err
	}
	s.progress = fractal.Progress{}
	if err := s.worker.Post(fractal.Submit{Job: job}); err != nil {
		return s.postFailed(err)
	}
	s.sched.Dispatched()
	s.log().Info("epoch started", "token", job.Token, "type", spec.Params.Type, "view", spec.View)
	s.status(Status{Code: StatusEpochStarted, Token: job.Token, GridStep: job.GridStep})
	return nil
}

func (s *Session) postFailed(err error) error {
	s.sched.Abort()
	err = fmt.Errorf("%w: %w", ErrWorkerUnavailable, err)
	s.status(Status{Code: StatusFailed, Token: s.sched.Current(), Err: err, Message: err.Error()})
	return err
}

// scheduleEpoch starts an epoch after the debounce window.
func (s *Session) scheduleEpoch() error {
	if s.lost != nil {
		return s.lost
	}
	if s.debounce <= 0 {
		return s.startEpoch()
	}
	s.pending = true
	s.debounceT.Reset(s.debounce)
	return nil
}

func (s *Session) handle(m fractal.Message) {
	switch m := m.(type) {
	case fractal.Progress:
		if m.Token == s.sched.Current() {
			s.progress = m
		}
	case fractal.Done:
		s.deliver(m)
	}
}

func (s *Session) deliver(d fractal.Done) {
	out := s.sched.Deliver(d)
	switch out.Verdict {
	case scheduler.Stale, scheduler.Dropped:
		return
	case scheduler.Failed:
		s.log().Warn("pass failed", "token", d.Token, "err", out.Err)
		s.status(Status{Code: StatusFailed, Token: d.Token, GridStep: d.GridStep, Err: out.Err, Message: out.Err.Error()})
		return
	}

	// The buffer is ours until the next pass is posted.
	if s.display != nil {
		if err := s.display.Render(out.Buffer, s.sched.Spec().MaxIter, s.scheme, s.offset); err != nil {
			s.log().Warn("render failed", "err", err)
		}
	}
	if out.Complete {
		s.log().Info("epoch complete", "token", d.Token)
		s.status(Status{Code: StatusEpochComplete, Token: d.Token, GridStep: d.GridStep})
		return
	}
	s.status(Status{Code: StatusPass, Token: d.Token, GridStep: d.GridStep})
	if err := s.worker.Post(fractal.Submit{Job: *out.Next}); err != nil {
		s.postFailed(err)
		return
	}
	s.sched.Dispatched()
}

// abortCPU cancels the CPU epoch in flight, if any. Its late passes are
// dropped instead of reaching the hidden display.
func (s *Session) abortCPU() {
	if !s.sched.Abort() {
		return
	}
	if err := s.worker.Post(fractal.Abort{}); err != nil {
		s.log().Warn("abort", "err", err)
	}
}

// workerLost switches the session into its terminal error state.
func (s *Session) workerLost() {
	s.lost = ErrWorkerUnavailable
	s.sched.Abort()
	s.log().Error("worker terminated")
	if ed, ok := s.display.(errorDisplay); ok {
		ed.ShowError(ErrWorkerUnavailable)
	}
	s.status(Status{Code: StatusWorkerUnavailable, Err: ErrWorkerUnavailable, Message: ErrWorkerUnavailable.Error()})
}

// renderGPU draws one frame on the GPU display. On failure the session falls
// back to the CPU backend and reports it once.
func (s *Session) renderGPU() error {
	idx, err := render.SchemeIndex(s.scheme)
	if err != nil {
		return err
	}
	if s.gpu == nil {
		err = gpu.ErrUnavailable
	} else {
		err = s.gpu.RenderGPU(fractal.UniformsFor(s.spec(), idx, s.offset))
	}
	if err != nil {
		s.gpuFailed(err)
		return err
	}
	return nil
}

func (s *Session) gpuFailed(err error) {
	s.backend = CPU
	if s.gpuReported {
		return
	}
	s.gpuReported = true
	s.log().Warn("gpu backend unavailable, using cpu", "err", err)
	s.status(Status{Code: StatusGPUUnavailable, Err: err, Message: err.Error()})
}

// repaint redraws the current field with the current palette settings without
// recomputing it.
func (s *Session) repaint() {
	if s.backend == GPU {
		if s.renderGPU() != nil {
			s.startEpoch()
		}
		return
	}
	buf := s.sched.Buffer()
	if buf == nil || s.display == nil {
		// A pass is in flight; its result is drawn with the new settings.
		return
	}
	if err := s.display.Render(buf, s.sched.Spec().MaxIter, s.scheme, s.offset); err != nil {
		s.log().Warn("render failed", "err", err)
	}
}

func (s *Session) caption() {
	if c, ok := s.display.(captioner); ok {
		c.SetCaption(render.Caption(s.params.Type.String(), s.view.CenterX, s.view.CenterY, s.view.Scale, s.maxIter))
	}
}

// applyView validates v, runs it through the zoom policy and stores it.
func (s *Session) applyView(v fractal.View) error {
	if err := v.Validate(); err != nil {
		return err
	}
	v, capped := s.policy.Clamp(v, s.height, s.backend)
	if capped {
		s.log().Warn("zoom capped", "scale", v.Scale)
		s.status(Status{Code: StatusZoomCapped, Message: fmt.Sprintf("zoom limited to scale %g on the gpu; switch to cpu for deeper zoom", v.Scale)})
	}
	s.view = v
	return nil
}
