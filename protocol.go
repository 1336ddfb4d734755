package fractal

import "fmt"

// DefaultCoarseStep is the grid stride of the first preview pass.
const DefaultCoarseStep = 8

// Job is one refinement pass handed to the compute worker. Jobs are values:
// the next pass is a new Job built by Next, never an edit of a submitted one.
type Job struct {
	Token    uint64
	Spec     Spec
	GridStep int
	// Prior is both the input (cells already known are skipped) and the output
	// of the pass. Its ownership travels with the job.
	Prior *ResultBuffer
}

// Validate rejects malformed jobs before any computation happens.
func (j Job) Validate() error {
	if err := j.Spec.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}
	if j.GridStep < 1 || j.GridStep&(j.GridStep-1) != 0 {
		return fmt.Errorf("%w: grid step %d is not a power of two", ErrInvalidJob, j.GridStep)
	}
	if j.Prior == nil {
		return fmt.Errorf("%w: nil prior buffer", ErrInvalidJob)
	}
	if err := j.Prior.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}
	if j.Prior.Width != j.Spec.Width || j.Prior.Height != j.Spec.Height {
		return fmt.Errorf("%w: prior %dx%d does not match spec %dx%d",
			ErrInvalidJob, j.Prior.Width, j.Prior.Height, j.Spec.Width, j.Spec.Height)
	}
	return nil
}

// Final reports whether this pass reaches full resolution.
func (j Job) Final() bool {
	return j.GridStep <= 1
}

// Next returns the following refinement pass over buf, or false when j was
// already the full resolution pass.
func (j Job) Next(buf *ResultBuffer) (Job, bool) {
	if j.Final() {
		return Job{}, false
	}
	return Job{Token: j.Token, Spec: j.Spec, GridStep: j.GridStep / 2, Prior: buf}, true
}

// Message is the tagged union exchanged between controller and worker.
// Submit and Abort travel to the worker, Progress and Done travel back.
type Message interface {
	message()
}

// Submit hands a job, and its prior buffer, to the worker.
type Submit struct {
	Job Job
}

// Abort asks the worker to stop every job submitted so far. It is a request:
// the worker honours it at the next batch boundary.
type Abort struct{}

// Progress is advisory; the controller is correct without it.
type Progress struct {
	Token    uint64
	GridStep int
	Done     int
	Total    int
}

// Done returns the buffer to the controller. Partial is set when the job was
// aborted after it started; Err is set when the job was rejected.
type Done struct {
	Token    uint64
	GridStep int
	Buffer   *ResultBuffer
	Partial  bool
	Err      error
}

func (Submit) message()   {}
func (Abort) message()    {}
func (Progress) message() {}
func (Done) message()     {}

func (d Done) String() string {
	switch {
	case d.Err != nil:
		return fmt.Sprintf("done token=%d step=%d err=%v", d.Token, d.GridStep, d.Err)
	case d.Partial:
		return fmt.Sprintf("done token=%d step=%d partial", d.Token, d.GridStep)
	default:
		return fmt.Sprintf("done token=%d step=%d", d.Token, d.GridStep)
	}
}
