// Package scheduler drives the coarse-to-fine refinement of one view.
//
// A Scheduler is a plain state machine owned by the controller goroutine. It
// never talks to the worker itself: Start and Deliver hand back the Job to
// submit next, and the caller posts it.
package scheduler

import (
	"errors"
	"fmt"

	fractal "github.com/marben/fractal_explorer"
)

var ErrBadResult = errors.New("malformed result")

type State int

const (
	Idle State = iota
	Dispatching
	Awaiting
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dispatching:
		return "dispatching"
	case Awaiting:
		return "awaiting"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Verdict classifies a delivered result.
type Verdict int

const (
	// Merged: the result belongs to the current pass and was adopted.
	Merged Verdict = iota
	// Stale: computed under an older token; ignored without a state change.
	Stale
	// Dropped: current token but not usable (aborted, partial or a duplicate).
	Dropped
	// Failed: the worker rejected the job.
	Failed
)

func (v Verdict) String() string {
	switch v {
	case Merged:
		return "merged"
	case Stale:
		return "stale"
	case Dropped:
		return "dropped"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Verdict(%d)", int(v))
}

// Outcome is the result of Deliver.
type Outcome struct {
	Verdict Verdict
	// Buffer is the adopted buffer, valid to display until Next is submitted.
	Buffer *fractal.ResultBuffer
	// Next is the following pass; nil when the epoch is complete or nothing merged.
	Next     *fractal.Job
	Complete bool
	Err      error
}

type Scheduler struct {
	coarse int

	token uint64
	state State
	job   fractal.Job
	// buf is the authoritative buffer while the controller owns it, nil while
	// the worker does.
	buf *fractal.ResultBuffer
}

type Option func(*Scheduler)

// WithCoarseStep sets the first pass' grid stride. Values that are not a
// positive power of two are ignored.
func WithCoarseStep(n int) Option {
	return func(s *Scheduler) {
		if n >= 1 && n&(n-1) == 0 {
			s.coarse = n
		}
	}
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{coarse: fractal.DefaultCoarseStep}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start begins a new epoch for spec and returns the first job. Every earlier
// token becomes stale. The returned job owns a fresh NotComputed buffer.
func (s *Scheduler) Start(spec fractal.Spec) (fractal.Job, error) {
	if err := spec.Validate(); err != nil {
		return fractal.Job{}, err
	}
	s.token++
	s.job = fractal.Job{
		Token:    s.token,
		Spec:     spec,
		GridStep: s.coarse,
		Prior:    fractal.NewResultBuffer(spec.Width, spec.Height),
	}
	s.buf = nil
	s.state = Dispatching
	fractal.Logger().Debug("epoch started", "token", s.token, "type", spec.Params.Type, "size", fmt.Sprintf("%dx%d", spec.Width, spec.Height))
	return s.job, nil
}

// Dispatched records that the job returned by Start or Deliver left for the worker.
func (s *Scheduler) Dispatched() {
	if s.state == Dispatching {
		s.state = Awaiting
	}
}

// Abort marks the current pass as cancelled. The buffer stays with the worker
// until its Done arrives, which will then be dropped. Abort reports whether a
// pass was in flight.
func (s *Scheduler) Abort() bool {
	switch s.state {
	case Dispatching, Awaiting:
		s.state = Aborted
		return true
	}
	return false
}

// Deliver processes a Done message from the worker.
func (s *Scheduler) Deliver(d fractal.Done) Outcome {
	log := fractal.Logger()
	if d.Token != s.token {
		log.Debug("stale result dropped", "token", d.Token, "current", s.token)
		return Outcome{Verdict: Stale}
	}

	switch s.state {
	case Dispatching, Awaiting:
	case Aborted:
		s.state = Idle
		log.Debug("aborted result dropped", "token", d.Token, "step", d.GridStep)
		return Outcome{Verdict: Dropped}
	default:
		return Outcome{Verdict: Dropped}
	}
	if d.GridStep != s.job.GridStep {
		log.Debug("duplicate result dropped", "token", d.Token, "step", d.GridStep, "expected", s.job.GridStep)
		return Outcome{Verdict: Dropped}
	}

	s.state = Idle
	switch {
	case d.Err != nil:
		return Outcome{Verdict: Failed, Err: d.Err}
	case d.Partial:
		return Outcome{Verdict: Dropped}
	case d.Buffer == nil || d.Buffer.Width != s.job.Spec.Width || d.Buffer.Height != s.job.Spec.Height:
		return Outcome{Verdict: Failed, Err: fmt.Errorf("%w: buffer does not match %dx%d", ErrBadResult, s.job.Spec.Width, s.job.Spec.Height)}
	}

	next, ok := s.job.Next(d.Buffer)
	if !ok {
		s.buf = d.Buffer
		log.Debug("epoch complete", "token", s.token)
		return Outcome{Verdict: Merged, Buffer: d.Buffer, Complete: true}
	}
	s.job = next
	s.state = Dispatching
	return Outcome{Verdict: Merged, Buffer: d.Buffer, Next: &next}
}

// Current returns the current token; 0 before the first epoch.
func (s *Scheduler) Current() uint64 {
	return s.token
}

func (s *Scheduler) State() State {
	return s.state
}

// Spec returns the configuration of the current epoch.
func (s *Scheduler) Spec() fractal.Spec {
	return s.job.Spec
}

// GridStep returns the stride of the current or last pass.
func (s *Scheduler) GridStep() int {
	return s.job.GridStep
}

// Buffer returns the completed buffer of the current epoch, or nil while a
// pass is outstanding or after an abort.
func (s *Scheduler) Buffer() *fractal.ResultBuffer {
	if s.state != Idle {
		return nil
	}
	return s.buf
}
