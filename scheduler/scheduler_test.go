package scheduler

import (
	"errors"
	"testing"

	fractal "github.com/marben/fractal_explorer"
)

func spec(t fractal.Type) fractal.Spec {
	return fractal.Spec{
		Params:  fractal.Params{Type: t, Julia: fractal.DefaultJuliaC},
		View:    fractal.DefaultView,
		MaxIter: 40,
		Width:   33,
		Height:  17,
	}
}

// compute plays the worker: it fills the job's lattice synchronously.
func compute(job fractal.Job) fractal.Done {
	buf := job.Prior
	for _, idx := range buf.Pending(job.GridStep) {
		buf.Cells[idx] = int32(fractal.EvaluatePixel(job.Spec, idx%buf.Width, idx/buf.Width))
	}
	return fractal.Done{Token: job.Token, GridStep: job.GridStep, Buffer: buf}
}

func TestTokensStrictlyIncrease(t *testing.T) {
	s := New()
	var last uint64
	for i := 0; i < 5; i++ {
		job, err := s.Start(spec(fractal.Mandelbrot))
		if err != nil {
			t.Fatal(err)
		}
		if job.Token <= last {
			t.Fatalf("token %d after %d", job.Token, last)
		}
		last = job.Token
		if s.Current() != job.Token {
			t.Fatalf("current = %d", s.Current())
		}
	}
}

func TestStartAllocatesFreshBuffer(t *testing.T) {
	s := New()
	job, _ := s.Start(spec(fractal.Mandelbrot))
	if job.GridStep != fractal.DefaultCoarseStep {
		t.Errorf("step = %d", job.GridStep)
	}
	if job.Prior.Filled() != 0 || len(job.Prior.Cells) != 33*17 {
		t.Error("prior is not a fresh buffer")
	}
	if s.State() != Dispatching {
		t.Errorf("state = %v", s.State())
	}
	s.Dispatched()
	if s.State() != Awaiting {
		t.Errorf("state = %v", s.State())
	}
	if s.Buffer() != nil {
		t.Error("controller holds a buffer the worker owns")
	}
}

func TestStartRejectsInvalidSpec(t *testing.T) {
	s := New()
	bad := spec(fractal.Mandelbrot)
	bad.View.Scale = 0
	if _, err := s.Start(bad); !errors.Is(err, fractal.ErrInvalidView) {
		t.Errorf("err = %v", err)
	}
	if s.Current() != 0 || s.State() != Idle {
		t.Error("invalid spec changed the scheduler")
	}
}

func TestRefinementSequenceMatchesDirect(t *testing.T) {
	s := New()
	job, _ := s.Start(spec(fractal.BurningShip))
	var steps []int
	for {
		steps = append(steps, job.GridStep)
		s.Dispatched()
		out := s.Deliver(compute(job))
		if out.Verdict != Merged {
			t.Fatalf("verdict = %v", out.Verdict)
		}
		if out.Complete {
			break
		}
		if out.Next.Prior != out.Buffer {
			t.Fatal("next pass does not refine the merged buffer")
		}
		job = *out.Next
	}

	want := []int{8, 4, 2, 1}
	if len(steps) != len(want) {
		t.Fatalf("steps = %v", steps)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Fatalf("steps = %v", steps)
		}
	}
	if s.State() != Idle {
		t.Errorf("state = %v", s.State())
	}
	buf := s.Buffer()
	if buf == nil || !buf.Complete() {
		t.Fatal("epoch not complete")
	}
	sp := spec(fractal.BurningShip)
	for y := 0; y < sp.Height; y++ {
		for x := 0; x < sp.Width; x++ {
			if got, want := buf.At(x, y), int32(fractal.EvaluatePixel(sp, x, y)); got != want {
				t.Fatalf("(%d,%d) = %d, want %d", x, y, got, want)
			}
		}
	}
}

func TestOutOfOrderDeliveryKeepsLatest(t *testing.T) {
	s := New()
	first, _ := s.Start(spec(fractal.Mandelbrot))
	s.Dispatched()
	second, _ := s.Start(spec(fractal.Mandelbrot))
	s.Dispatched()

	out := s.Deliver(compute(second))
	if out.Verdict != Merged {
		t.Fatalf("current result: %v", out.Verdict)
	}
	stateBefore, stepBefore := s.State(), s.GridStep()

	late := s.Deliver(compute(first))
	if late.Verdict != Stale {
		t.Fatalf("late result: %v", late.Verdict)
	}
	if s.State() != stateBefore || s.GridStep() != stepBefore || s.Current() != second.Token {
		t.Error("stale result changed the scheduler")
	}
}

func TestTypeSwitchMidEpochNeverMergesOldCells(t *testing.T) {
	s := New()
	old, _ := s.Start(spec(fractal.Mandelbrot))
	s.Dispatched()
	cur, _ := s.Start(spec(fractal.Julia))
	s.Dispatched()

	if out := s.Deliver(compute(old)); out.Verdict != Stale {
		t.Fatalf("old type result: %v", out.Verdict)
	}
	if cur.Prior.Filled() != 0 {
		t.Fatal("stale cells reached the current buffer")
	}
	out := s.Deliver(compute(cur))
	sp := spec(fractal.Julia)
	for y := 0; y < sp.Height; y += 8 {
		for x := 0; x < sp.Width; x += 8 {
			if got, want := out.Buffer.At(x, y), int32(fractal.EvaluatePixel(sp, x, y)); got != want {
				t.Fatalf("(%d,%d) = %d, want julia value %d", x, y, got, want)
			}
		}
	}
}

func TestAbortDropsLateResult(t *testing.T) {
	s := New()
	job, _ := s.Start(spec(fractal.Mandelbrot))
	s.Dispatched()
	if !s.Abort() {
		t.Fatal("nothing in flight")
	}
	if s.State() != Aborted {
		t.Fatalf("state = %v", s.State())
	}
	if out := s.Deliver(compute(job)); out.Verdict != Dropped {
		t.Fatalf("verdict = %v", out.Verdict)
	}
	if s.State() != Idle || s.Buffer() != nil {
		t.Error("aborted result adopted")
	}
	if s.Abort() {
		t.Error("second abort reported work in flight")
	}
}

func TestAbortAfterDoneKeepsMerge(t *testing.T) {
	s := New()
	job, _ := s.Start(spec(fractal.Tricorn))
	s.Dispatched()
	out := s.Deliver(compute(job))
	if out.Verdict != Merged {
		t.Fatal(out.Verdict)
	}
	merged := out.Buffer.Filled()
	s.Dispatched()
	s.Abort()
	if out.Buffer.Filled() != merged {
		t.Error("abort touched merged cells")
	}
}

func TestDuplicateDeliveryIsIdempotent(t *testing.T) {
	s := New()
	job, _ := s.Start(spec(fractal.Mandelbrot))
	s.Dispatched()
	d := compute(job)
	if out := s.Deliver(d); out.Verdict != Merged {
		t.Fatal(out.Verdict)
	}
	s.Dispatched()
	if out := s.Deliver(d); out.Verdict != Dropped {
		t.Errorf("duplicate verdict = %v", out.Verdict)
	}
	if s.GridStep() != 4 || s.State() != Awaiting {
		t.Errorf("duplicate changed state: step %d, %v", s.GridStep(), s.State())
	}
}

func TestPartialAndFailedResults(t *testing.T) {
	tests := []struct {
		name string
		edit func(*fractal.Done)
		want Verdict
	}{
		{"partial", func(d *fractal.Done) { d.Partial = true }, Dropped},
		{"worker error", func(d *fractal.Done) { d.Err = fractal.ErrInvalidJob }, Failed},
		{"wrong size", func(d *fractal.Done) { d.Buffer = fractal.NewResultBuffer(2, 2) }, Failed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			job, _ := s.Start(spec(fractal.Mandelbrot))
			s.Dispatched()
			d := compute(job)
			tt.edit(&d)
			out := s.Deliver(d)
			if out.Verdict != tt.want {
				t.Fatalf("verdict = %v, want %v", out.Verdict, tt.want)
			}
			if out.Next != nil {
				t.Error("unusable result scheduled another pass")
			}
			if s.State() != Idle {
				t.Errorf("state = %v", s.State())
			}
		})
	}
}

func TestWithCoarseStep(t *testing.T) {
	tests := []struct{ in, want int }{
		{16, 16},
		{1, 1},
		{3, fractal.DefaultCoarseStep},
		{0, fractal.DefaultCoarseStep},
	}
	for _, tt := range tests {
		s := New(WithCoarseStep(tt.in))
		job, _ := s.Start(spec(fractal.Mandelbrot))
		if job.GridStep != tt.want {
			t.Errorf("WithCoarseStep(%d): step %d, want %d", tt.in, job.GridStep, tt.want)
		}
	}
}

func TestSingleStepEpochCompletesImmediately(t *testing.T) {
	s := New(WithCoarseStep(1))
	job, _ := s.Start(spec(fractal.Mandelbrot))
	s.Dispatched()
	out := s.Deliver(compute(job))
	if !out.Complete || out.Next != nil {
		t.Errorf("outcome = %+v", out)
	}
}
