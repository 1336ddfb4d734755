package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	fractal "github.com/marben/fractal_explorer"
)

func testSpec(w, h, maxIter int) fractal.Spec {
	return fractal.Spec{
		Params:  fractal.DefaultParams,
		View:    fractal.DefaultView,
		MaxIter: maxIter,
		Width:   w,
		Height:  h,
	}
}

func start(t *testing.T, w *Worker) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	t.Cleanup(cancel)
}

// nextDone skips progress messages and returns the next Done.
func nextDone(t *testing.T, w *Worker) fractal.Done {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case m, ok := <-w.Messages():
			if !ok {
				t.Fatal("worker terminated")
			}
			if d, ok := m.(fractal.Done); ok {
				return d
			}
		case <-timeout:
			t.Fatal("timed out waiting for done")
		}
	}
}

func direct(s fractal.Spec) []int32 {
	out := make([]int32, s.Width*s.Height)
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			out[y*s.Width+x] = int32(fractal.EvaluatePixel(s, x, y))
		}
	}
	return out
}

func TestProgressivePassesMatchDirectEvaluation(t *testing.T) {
	w := New(WithBatchMin(50))
	start(t, w)

	s := testSpec(37, 23, 64)
	job := fractal.Job{Token: 1, Spec: s, GridStep: fractal.DefaultCoarseStep, Prior: fractal.NewResultBuffer(s.Width, s.Height)}
	for {
		if err := w.Post(fractal.Submit{Job: job}); err != nil {
			t.Fatal(err)
		}
		d := nextDone(t, w)
		if d.Err != nil || d.Partial {
			t.Fatalf("unexpected %v", d)
		}
		if d.Token != 1 || d.GridStep != job.GridStep {
			t.Fatalf("got %v for step %d", d, job.GridStep)
		}
		next, ok := job.Next(d.Buffer)
		if !ok {
			break
		}
		job = next
	}

	want := direct(s)
	for i, v := range job.Prior.Cells {
		if v != want[i] {
			t.Fatalf("cell %d = %d, want %d", i, v, want[i])
		}
	}
}

func TestCoarsePassOnlyFillsLattice(t *testing.T) {
	w := New()
	start(t, w)

	s := testSpec(20, 20, 32)
	buf := fractal.NewResultBuffer(s.Width, s.Height)
	w.Post(fractal.Submit{Job: fractal.Job{Token: 3, Spec: s, GridStep: 8, Prior: buf}})
	d := nextDone(t, w)
	if d.Buffer != buf {
		t.Fatal("buffer not handed back")
	}
	// 0, 8 and 16 on both axes.
	if got := buf.Filled(); got != 9 {
		t.Errorf("filled = %d, want 9", got)
	}
	if buf.At(8, 16) == fractal.NotComputed || buf.At(4, 4) != fractal.NotComputed {
		t.Error("wrong cells computed")
	}
}

func TestComputedCellsAreNeverRewritten(t *testing.T) {
	w := New()
	start(t, w)

	s := testSpec(16, 16, 50)
	buf := fractal.NewResultBuffer(s.Width, s.Height)
	buf.Cells[buf.Index(3, 5)] = 7
	buf.Cells[buf.Index(0, 0)] = 7
	w.Post(fractal.Submit{Job: fractal.Job{Token: 1, Spec: s, GridStep: 1, Prior: buf}})
	nextDone(t, w)
	if buf.At(3, 5) != 7 || buf.At(0, 0) != 7 {
		t.Errorf("prior cells overwritten: %d %d", buf.At(3, 5), buf.At(0, 0))
	}
	if !buf.Complete() {
		t.Error("buffer not complete")
	}
}

func TestAbortBeforeStartEmitsNothing(t *testing.T) {
	w := New()
	s := testSpec(16, 16, 20)

	// Queue before Run so the worker sees the abort before picking up job 1.
	if err := w.Post(fractal.Submit{Job: fractal.Job{Token: 1, Spec: s, GridStep: 1, Prior: fractal.NewResultBuffer(16, 16)}}); err != nil {
		t.Fatal(err)
	}
	w.Post(fractal.Abort{})
	if err := w.Post(fractal.Submit{Job: fractal.Job{Token: 2, Spec: s, GridStep: 1, Prior: fractal.NewResultBuffer(16, 16)}}); err != nil {
		t.Fatal(err)
	}
	start(t, w)

	d := nextDone(t, w)
	if d.Token != 2 || d.Partial || d.Err != nil {
		t.Fatalf("first done = %v, want complete token 2", d)
	}
}

func TestAbortMidJobReturnsPartialBuffer(t *testing.T) {
	w := New(WithBatchMin(64), WithProgress(true))
	start(t, w)

	s := testSpec(256, 256, 5000)
	buf := fractal.NewResultBuffer(s.Width, s.Height)
	w.Post(fractal.Submit{Job: fractal.Job{Token: 9, Spec: s, GridStep: 1, Prior: buf}})

	timeout := time.After(10 * time.Second)
	for aborted := false; ; {
		select {
		case m := <-w.Messages():
			switch m := m.(type) {
			case fractal.Progress:
				if !aborted {
					w.Post(fractal.Abort{})
					aborted = true
				}
			case fractal.Done:
				if !m.Partial {
					t.Fatalf("done = %v, want partial", m)
				}
				if m.Buffer != buf {
					t.Fatal("buffer not handed back")
				}
				if buf.Complete() {
					t.Error("aborted job completed the buffer")
				}
				return
			}
		case <-timeout:
			t.Fatal("timed out")
		}
	}
}

func TestInvalidJobReportsError(t *testing.T) {
	w := New()
	start(t, w)

	tests := []struct {
		name string
		job  fractal.Job
	}{
		{"grid step not a power of two", fractal.Job{Token: 1, Spec: testSpec(8, 8, 10), GridStep: 3, Prior: fractal.NewResultBuffer(8, 8)}},
		{"nil prior", fractal.Job{Token: 2, Spec: testSpec(8, 8, 10), GridStep: 1}},
		{"size mismatch", fractal.Job{Token: 3, Spec: testSpec(8, 8, 10), GridStep: 1, Prior: fractal.NewResultBuffer(4, 4)}},
		{"bad view", fractal.Job{Token: 4, Spec: fractal.Spec{Params: fractal.DefaultParams, MaxIter: 10, Width: 8, Height: 8}, GridStep: 1, Prior: fractal.NewResultBuffer(8, 8)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w.Post(fractal.Submit{Job: tt.job})
			d := nextDone(t, w)
			if !errors.Is(d.Err, fractal.ErrInvalidJob) {
				t.Errorf("err = %v", d.Err)
			}
			if d.Token != tt.job.Token {
				t.Errorf("token = %d", d.Token)
			}
		})
	}
}

func TestParallelEvaluationMatchesSerial(t *testing.T) {
	w := New(WithBatchMin(100), WithParallelism(4))
	start(t, w)

	s := testSpec(64, 48, 100)
	s.Params = fractal.Params{Type: fractal.Julia, Julia: fractal.DefaultJuliaC}
	buf := fractal.NewResultBuffer(s.Width, s.Height)
	w.Post(fractal.Submit{Job: fractal.Job{Token: 1, Spec: s, GridStep: 1, Prior: buf}})
	nextDone(t, w)

	want := direct(s)
	for i := range want {
		if buf.Cells[i] != want[i] {
			t.Fatalf("cell %d = %d, want %d", i, buf.Cells[i], want[i])
		}
	}
}

func TestAbortedJobsLeaveTheMailbox(t *testing.T) {
	w := New(WithOutbox(2))
	s := testSpec(16, 16, 20)
	job := func(token uint64) fractal.Job {
		return fractal.Job{Token: token, Spec: s, GridStep: 1, Prior: fractal.NewResultBuffer(16, 16)}
	}

	// Far more epochs than the mailbox holds, each superseding the last.
	for token := uint64(1); token <= 40; token++ {
		w.Post(fractal.Abort{})
		if err := w.Post(fractal.Submit{Job: job(token)}); err != nil {
			t.Fatalf("submit %d: %v", token, err)
		}
	}
	start(t, w)

	d := nextDone(t, w)
	if d.Token != 40 || d.Partial || d.Err != nil {
		t.Fatalf("first done = %v, want complete token 40", d)
	}
}

func TestMailboxBoundsLiveJobs(t *testing.T) {
	w := New(WithOutbox(2))
	s := testSpec(8, 8, 10)
	for i := 0; i < 2; i++ {
		if err := w.Post(fractal.Submit{Job: fractal.Job{Token: uint64(i + 1), Spec: s, GridStep: 1, Prior: fractal.NewResultBuffer(8, 8)}}); err != nil {
			t.Fatal(err)
		}
	}
	third := fractal.Submit{Job: fractal.Job{Token: 3, Spec: s, GridStep: 1, Prior: fractal.NewResultBuffer(8, 8)}}
	if err := w.Post(third); !errors.Is(err, ErrBusy) {
		t.Fatalf("third live job: err = %v, want ErrBusy", err)
	}
	w.Post(fractal.Abort{})
	if err := w.Post(third); err != nil {
		t.Fatalf("after abort: %v", err)
	}
}

func TestPanicInParallelFillFailsJob(t *testing.T) {
	w := New(WithBatchMin(64), WithParallelism(4))
	w.fill = func(fractal.Spec, *fractal.ResultBuffer, []int) { panic("boom") }
	start(t, w)

	s := testSpec(32, 32, 10)
	w.Post(fractal.Submit{Job: fractal.Job{Token: 1, Spec: s, GridStep: 1, Prior: fractal.NewResultBuffer(32, 32)}})
	d := nextDone(t, w)
	if !errors.Is(d.Err, ErrJobFailed) {
		t.Fatalf("err = %v, want ErrJobFailed", d.Err)
	}
	if d.Token != 1 {
		t.Errorf("token = %d", d.Token)
	}
}

func TestStoppedWorkerClosesMessages(t *testing.T) {
	w := New()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- w.Run(ctx) }()
	cancel()

	if err := <-stopped; !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v", err)
	}
	if _, ok := <-w.Messages(); ok {
		t.Error("messages still open")
	}
	if err := w.Post(fractal.Abort{}); !errors.Is(err, ErrStopped) {
		t.Errorf("Post after stop = %v", err)
	}
}

func TestPostRejectsWorkerBoundMessages(t *testing.T) {
	w := New()
	if err := w.Post(fractal.Done{}); err == nil {
		t.Error("Post(Done) accepted")
	}
}

func TestBatchSize(t *testing.T) {
	tests := []struct{ total, min, want int }{
		{100, 4096, 4096},
		{800 * 600, 4096, 60000},
		{0, 0, 1},
	}
	for _, tt := range tests {
		if got := BatchSize(tt.total, tt.min); got != tt.want {
			t.Errorf("BatchSize(%d, %d) = %d, want %d", tt.total, tt.min, got, tt.want)
		}
	}
}
