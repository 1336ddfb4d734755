// Package worker runs the escape-time evaluator off the controller goroutine.
//
// The controller talks to a Worker only through messages: Submit and Abort go
// in via Post, Progress and Done come back on Messages. A submitted job's
// prior buffer belongs to the worker until the matching Done hands it back.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	fractal "github.com/marben/fractal_explorer"
)

var (
	ErrStopped   = errors.New("worker stopped")
	ErrBusy      = errors.New("too many live jobs queued")
	ErrJobFailed = errors.New("job failed")
)

const (
	// DefaultBatchMin is the smallest number of cells evaluated between two
	// abort checks.
	DefaultBatchMin = 4096
	// batchDivisor splits large jobs into at least this many batches.
	batchDivisor = 8
)

type envelope struct {
	seq uint64
	job fractal.Job
}

// Worker is the background evaluator. Create it with New, start Run in its own
// goroutine and stop it by cancelling Run's context.
type Worker struct {
	batchMin    int
	parallelism int
	progress    bool
	mailboxSize int
	fill        func(fractal.Spec, *fractal.ResultBuffer, []int)

	outbox chan fractal.Message
	done   chan struct{}
	wake   chan struct{}

	// mailbox holds jobs not started yet. Aborted jobs are pruned on every
	// Post, so only live jobs count against mailboxSize.
	mu        sync.Mutex
	mailbox   []envelope
	submitted uint64

	// Every job with seq <= abortedUpTo is cancelled.
	abortedUpTo atomic.Uint64
}

type Option func(*Worker)

// WithBatchMin sets the minimum batch length between abort checks.
func WithBatchMin(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchMin = n
		}
	}
}

// WithParallelism evaluates each batch on n goroutines. The default of 1
// keeps the whole job on the worker goroutine.
func WithParallelism(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.parallelism = n
		}
	}
}

// WithProgress enables advisory Progress messages after every batch.
func WithProgress(on bool) Option {
	return func(w *Worker) { w.progress = on }
}

// WithOutbox sizes the outbound queue and the number of live jobs the
// mailbox accepts.
func WithOutbox(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.mailboxSize = n
			w.outbox = make(chan fractal.Message, n)
		}
	}
}

func New(opts ...Option) *Worker {
	w := &Worker{
		batchMin:    DefaultBatchMin,
		parallelism: 1,
		mailboxSize: 16,
		fill:        Fill,
		outbox:      make(chan fractal.Message, 16),
		done:        make(chan struct{}),
		wake:        make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Messages returns the worker -> controller channel. It is closed when Run returns.
func (w *Worker) Messages() <-chan fractal.Message {
	return w.outbox
}

// Post sends a controller message to the worker without blocking.
// Only Submit and Abort are accepted.
func (w *Worker) Post(m fractal.Message) error {
	select {
	case <-w.done:
		return ErrStopped
	default:
	}

	switch m := m.(type) {
	case fractal.Submit:
		w.mu.Lock()
		w.prune()
		if len(w.mailbox) >= w.mailboxSize {
			w.mu.Unlock()
			return ErrBusy
		}
		w.submitted++
		w.mailbox = append(w.mailbox, envelope{seq: w.submitted, job: m.Job})
		w.mu.Unlock()

		select {
		case w.wake <- struct{}{}:
		default:
		}
		return nil
	case fractal.Abort:
		w.mu.Lock()
		w.abortedUpTo.Store(w.submitted)
		w.prune()
		w.mu.Unlock()
		return nil
	default:
		return fmt.Errorf("worker: unexpected message %T", m)
	}
}

// prune drops queued jobs that were aborted. w.mu must be held.
func (w *Worker) prune() {
	live := w.mailbox[:0]
	for _, env := range w.mailbox {
		if !w.aborted(env.seq) {
			live = append(live, env)
		}
	}
	clear(w.mailbox[len(live):])
	w.mailbox = live
}

// next pops the oldest queued job.
func (w *Worker) next() (envelope, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.mailbox) == 0 {
		return envelope{}, false
	}
	env := w.mailbox[0]
	w.mailbox[0] = envelope{}
	w.mailbox = w.mailbox[1:]
	return env, true
}

// Run processes submitted jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.outbox)
	defer close(w.done)

	log := fractal.Logger().With("component", "worker")
	log.Info("worker started", "batchMin", w.batchMin, "parallelism", w.parallelism)
	for {
		env, ok := w.next()
		if !ok {
			select {
			case <-ctx.Done():
				log.Info("worker stopped", "cause", context.Cause(ctx))
				return context.Cause(ctx)
			case <-w.wake:
			}
			continue
		}
		if ctx.Err() != nil {
			log.Info("worker stopped", "cause", context.Cause(ctx))
			return context.Cause(ctx)
		}
		if d, ok := w.process(ctx, env); ok {
			select {
			case w.outbox <- d:
			case <-ctx.Done():
				return context.Cause(ctx)
			}
		}
	}
}

func (w *Worker) aborted(seq uint64) bool {
	return seq <= w.abortedUpTo.Load()
}

// process runs one job. It reports false when nothing must be sent back: the
// job was already aborted before it started.
func (w *Worker) process(ctx context.Context, env envelope) (d fractal.Done, send bool) {
	job := env.job
	log := fractal.Logger().With("component", "worker", "token", job.Token, "step", job.GridStep)

	if w.aborted(env.seq) {
		log.Debug("job aborted before start")
		return fractal.Done{}, false
	}
	d = fractal.Done{Token: job.Token, GridStep: job.GridStep, Buffer: job.Prior}
	if err := job.Validate(); err != nil {
		log.Warn("job rejected", "err", err)
		d.Err = err
		return d, true
	}

	defer func() {
		if r := recover(); r != nil {
			d.Err = fmt.Errorf("%w: panic: %v", ErrJobFailed, r)
			log.Error("job panicked", "panic", r)
		}
	}()

	start := time.Now()
	indices := job.Prior.Pending(job.GridStep)
	size := BatchSize(len(indices), w.batchMin)
	for off := 0; off < len(indices); off += size {
		if w.aborted(env.seq) || ctx.Err() != nil {
			log.Debug("job aborted", "done", off, "total", len(indices))
			d.Partial = true
			return d, true
		}
		end := min(off+size, len(indices))
		if err := w.evaluate(ctx, job, indices[off:end]); err != nil {
			d.Err = fmt.Errorf("%w: %w", ErrJobFailed, err)
			return d, true
		}
		if w.progress {
			w.sendProgress(fractal.Progress{Token: job.Token, GridStep: job.GridStep, Done: end, Total: len(indices)})
		}
	}
	log.Debug("job done", "cells", len(indices), "elapsed", time.Since(start))
	return d, true
}

// evaluate fills one batch, splitting it across goroutines when parallelism > 1.
// Goroutines write disjoint cells of the same buffer.
func (w *Worker) evaluate(ctx context.Context, job fractal.Job, batch []int) error {
	if w.parallelism == 1 || len(batch) < 2*w.parallelism {
		w.fill(job.Spec, job.Prior, batch)
		return nil
	}
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(w.parallelism)
	part := (len(batch) + w.parallelism - 1) / w.parallelism
	for off := 0; off < len(batch); off += part {
		sub := batch[off:min(off+part, len(batch))]
		g.Go(func() (err error) {
			// The recover in process does not reach these goroutines.
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			w.fill(job.Spec, job.Prior, sub)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) sendProgress(p fractal.Progress) {
	select {
	case w.outbox <- p:
	default:
		// advisory; dropped when the controller is behind
	}
}

// Fill evaluates every listed cell of buf that is still NotComputed.
func Fill(s fractal.Spec, buf *fractal.ResultBuffer, indices []int) {
	for _, idx := range indices {
		if buf.Cells[idx] != fractal.NotComputed {
			continue
		}
		x, y := idx%buf.Width, idx/buf.Width
		buf.Cells[idx] = int32(fractal.EvaluatePixel(s, x, y))
	}
}

// BatchSize is max(batchMin, total/8).
func BatchSize(total, batchMin int) int {
	return max(batchMin, total/batchDivisor, 1)
}
