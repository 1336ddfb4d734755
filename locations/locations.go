// Package locations keeps the saved views of a running server in memory.
package locations

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	fractal "github.com/marben/fractal_explorer"
)

var ErrNotFound = errors.New("location not found")

// Location is a saved view together with the settings needed to reproduce it.
type Location struct {
	ID          uuid.UUID    `json:"id"`
	Name        string       `json:"name"`
	View        fractal.View `json:"view"`
	Type        fractal.Type `json:"type"`
	Julia       [2]float64   `json:"julia"`
	MaxIter     int          `json:"maxIter"`
	ColorScheme string       `json:"colorScheme,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// Params returns the fractal selection stored in l.
func (l Location) Params() fractal.Params {
	return fractal.Params{Type: l.Type, Julia: complex(l.Julia[0], l.Julia[1])}
}

// Validate checks that l can be resumed.
func (l Location) Validate() error {
	if err := l.View.Validate(); err != nil {
		return err
	}
	if !l.Type.Valid() {
		return fmt.Errorf("%w: %d", fractal.ErrUnknownType, int(l.Type))
	}
	if l.MaxIter < 1 {
		return fmt.Errorf("%w: maxIter %d", fractal.ErrInvalidSpec, l.MaxIter)
	}
	return nil
}

// SortKey orders List results.
type SortKey int

const (
	// Newest first.
	ByNewest SortKey = iota
	// ByName sorts case-insensitively.
	ByName
)

// ParseSort maps the query values "name" and "timestamp" (or "") to a key.
func ParseSort(s string) (SortKey, error) {
	switch s {
	case "", "timestamp", "newest":
		return ByNewest, nil
	case "name":
		return ByName, nil
	}
	return 0, fmt.Errorf("unknown sort key %q", s)
}

// Repository is safe for concurrent use.
type Repository struct {
	mu      sync.Mutex
	items   []Location
	counter int
	now     func() time.Time
}

type Option func(*Repository)

// WithClock replaces time.Now for CreatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

func New(opts ...Option) *Repository {
	r := &Repository{counter: 1, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Save stores l and returns the stored copy. A missing ID, Name or CreatedAt
// is filled in; unnamed locations are called "Location N".
func (r *Repository) Save(l Location) (Location, error) {
	if err := l.Validate(); err != nil {
		return Location{}, fmt.Errorf("save location: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Name == "" {
		l.Name = fmt.Sprintf("Location %d", r.counter)
		r.counter++
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = r.now()
	}
	r.items = append(r.items, l)
	fractal.Logger().Info("location saved", "id", l.ID, "name", l.Name)
	return l, nil
}

// List returns a sorted copy of all locations.
func (r *Repository) List(by SortKey) []Location {
	r.mu.Lock()
	out := slices.Clone(r.items)
	r.mu.Unlock()

	switch by {
	case ByName:
		slices.SortStableFunc(out, func(a, b Location) int {
			return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		})
	default:
		slices.SortStableFunc(out, func(a, b Location) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		})
	}
	return out
}

func (r *Repository) Get(id uuid.UUID) (Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.items {
		if l.ID == id {
			return l, nil
		}
	}
	return Location{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (r *Repository) Delete(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := slices.IndexFunc(r.items, func(l Location) bool { return l.ID == id })
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.items = slices.Delete(r.items, i, i+1)
	return nil
}

// Clear removes everything and restarts the automatic name counter.
func (r *Repository) Clear() {
	r.mu.Lock()
	r.items = nil
	r.counter = 1
	r.mu.Unlock()
}

func (r *Repository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
