package fractal

import "fmt"

// NotComputed marks a cell the worker has not evaluated yet.
const NotComputed int32 = -1

// ResultBuffer is the per-pixel iteration grid of one epoch.
//
// A cell holds NotComputed, an escape iteration in [0, maxIter) or maxIter for
// points that never escaped. Once a cell is set it is never rewritten for the
// same epoch; refinement only fills NotComputed cells.
//
// A buffer has exactly one owner at a time. The controller hands it to the
// worker inside a Job and gets it back inside a Done message; neither side
// touches it while the other one owns it.
type ResultBuffer struct {
	Width  int
	Height int
	Cells  []int32
}

// NewResultBuffer allocates a width x height buffer with every cell NotComputed.
func NewResultBuffer(width, height int) *ResultBuffer {
	b := &ResultBuffer{
		Width:  width,
		Height: height,
		Cells:  make([]int32, width*height),
	}
	b.Reset()
	return b
}

// Reset marks every cell NotComputed.
func (b *ResultBuffer) Reset() {
	for i := range b.Cells {
		b.Cells[i] = NotComputed
	}
}

func (b *ResultBuffer) Index(x, y int) int {
	return y*b.Width + x
}

func (b *ResultBuffer) At(x, y int) int32 {
	return b.Cells[b.Index(x, y)]
}

// Set writes a cell that has not been computed yet.
func (b *ResultBuffer) Set(x, y int, v int32) error {
	i := b.Index(x, y)
	if b.Cells[i] != NotComputed {
		return fmt.Errorf("%w: (%d,%d)=%d", ErrCellAlreadySet, x, y, b.Cells[i])
	}
	b.Cells[i] = v
	return nil
}

// Pending returns the indices on the gridStep lattice that are still NotComputed.
// Only pixels whose coordinates are both multiples of gridStep are considered.
func (b *ResultBuffer) Pending(gridStep int) []int {
	if gridStep < 1 {
		gridStep = 1
	}
	var idx []int
	for y := 0; y < b.Height; y += gridStep {
		row := y * b.Width
		for x := 0; x < b.Width; x += gridStep {
			if b.Cells[row+x] == NotComputed {
				idx = append(idx, row+x)
			}
		}
	}
	return idx
}

// Filled counts the computed cells.
func (b *ResultBuffer) Filled() int {
	n := 0
	for _, c := range b.Cells {
		if c != NotComputed {
			n++
		}
	}
	return n
}

// Complete reports whether every cell has been computed.
func (b *ResultBuffer) Complete() bool {
	return b.Filled() == len(b.Cells)
}

func (b *ResultBuffer) Clone() *ResultBuffer {
	c := &ResultBuffer{Width: b.Width, Height: b.Height, Cells: make([]int32, len(b.Cells))}
	copy(c.Cells, b.Cells)
	return c
}

// Validate checks the shape invariant.
func (b *ResultBuffer) Validate() error {
	if b.Width < 1 || b.Height < 1 || len(b.Cells) != b.Width*b.Height {
		return fmt.Errorf("buffer %dx%d with %d cells", b.Width, b.Height, len(b.Cells))
	}
	return nil
}
