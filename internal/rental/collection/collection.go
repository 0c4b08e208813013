package collection

import (
	"cmp"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/locadora/console/internal/rental"
)

// ErrTransitionInFlight is returned by Begin when another transition on the same
// rental has not settled yet.
var ErrTransitionInFlight = errors.New("collection: transition already in flight")

// Collection is the working set of rentals. Insertion order is the order the
// backend returned them in and is preserved by every view.
type Collection struct {
	mu       sync.RWMutex
	order    []int64
	byID     map[int64]rental.Rental
	inFlight map[int64]struct{}
	loadedAt time.Time
}

// New returns an empty collection.
func New() *Collection {
	return &Collection{
		byID:     make(map[int64]rental.Rental),
		inFlight: make(map[int64]struct{}),
	}
}

// Load replaces the working set. Duplicate ids keep the last record at the
// position of the first.
func (c *Collection) Load(rentals []rental.Rental, at time.Time) {
	order := make([]int64, 0, len(rentals))
	byID := make(map[int64]rental.Rental, len(rentals))
	for _, r := range rentals {
		if _, seen := byID[r.ID]; !seen {
			order = append(order, r.ID)
		}
		byID[r.ID] = r.Clone()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = order
	c.byID = byID
	c.loadedAt = at
}

// LoadedAt is the time of the last Load.
func (c *Collection) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

// Len returns the number of rentals held.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Get returns a copy of the rental with the given id.
func (c *Collection) Get(id int64) (rental.Rental, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.byID[id]
	if !ok {
		return rental.Rental{}, &rental.NotFoundError{ID: id}
	}
	return r.Clone(), nil
}

// All returns copies of every rental in insertion order.
func (c *Collection) All() []rental.Rental {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Collection) snapshotLocked() []rental.Rental {
	out := make([]rental.Rental, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id].Clone())
	}
	return out
}

// Preview runs the transition against the held record without storing the
// result.
func (c *Collection) Preview(id int64, cmd rental.Command, now time.Time) (rental.Outcome, error) {
	current, err := c.Get(id)
	if err != nil {
		return rental.Outcome{}, err
	}
	return rental.Apply(current, cmd, now)
}

// ApplyTransition runs the transition and, on success, replaces the held
// record. On failure the collection is untouched and the error is returned as
// is.
func (c *Collection) ApplyTransition(id int64, cmd rental.Command, now time.Time) (rental.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	current, ok := c.byID[id]
	if !ok {
		return rental.Outcome{}, &rental.NotFoundError{ID: id}
	}
	out, err := rental.Apply(current, cmd, now)
	if err != nil {
		return rental.Outcome{}, err
	}
	c.byID[id] = out.Rental.Clone()
	return out, nil
}

// Replace swaps in the authoritative record for an id already held.
func (c *Collection) Replace(r rental.Rental) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[r.ID]; !ok {
		return &rental.NotFoundError{ID: r.ID}
	}
	c.byID[r.ID] = r.Clone()
	return nil
}

// Upsert replaces the record or appends it when new.
func (c *Collection) Upsert(r rental.Rental) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[r.ID]; !ok {
		c.order = append(c.order, r.ID)
	}
	c.byID[r.ID] = r.Clone()
}

// Begin marks a transition on id as in flight. The returned error is
// ErrTransitionInFlight or a *rental.NotFoundError.
func (c *Collection) Begin(id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[id]; !ok {
		return &rental.NotFoundError{ID: id}
	}
	if _, busy := c.inFlight[id]; busy {
		return ErrTransitionInFlight
	}
	c.inFlight[id] = struct{}{}
	return nil
}

// End clears the in-flight marker set by Begin.
func (c *Collection) End(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, id)
}

// InFlight reports whether a transition on id is pending.
func (c *Collection) InFlight(id int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, busy := c.inFlight[id]
	return busy
}

// Filter returns the rentals matching bucket in insertion order.
func (c *Collection) Filter(bucket rental.Bucket, now time.Time) []rental.Rental {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]rental.Rental, 0)
	for _, id := range c.order {
		r := c.byID[id]
		if rental.Matches(r, bucket, now) {
			out = append(out, r.Clone())
		}
	}
	return out
}

// ============================================================================
// VIEWS
// ============================================================================

// SortField selects the ordering of a view.
type SortField string

const (
	SortNone        SortField = ""
	SortStartDate   SortField = "start_date"
	SortEndDate     SortField = "end_date"
	SortClient      SortField = "client"
	SortNoteNumber  SortField = "note_number"
	SortDaysOverdue SortField = "days_overdue"
)

// IsValid checks if the sort field is known.
func (f SortField) IsValid() bool {
	switch f {
	case SortNone, SortStartDate, SortEndDate, SortClient, SortNoteNumber, SortDaysOverdue:
		return true
	default:
		return false
	}
}

// ViewOptions describes a filtered, searched and sorted listing.
type ViewOptions struct {
	Bucket     rental.Bucket
	Search     string
	Sort       SortField
	Descending bool
	Now        time.Time
}

// View applies the bucket filter, then search, then a stable sort.
func (c *Collection) View(opts ViewOptions) []rental.Rental {
	bucket := opts.Bucket
	if bucket == "" {
		bucket = rental.BucketAll
	}
	rows := c.Filter(bucket, opts.Now)

	if needle := rental.Fold(opts.Search); needle != "" {
		rows = slices.DeleteFunc(rows, func(r rental.Rental) bool {
			return !strings.Contains(rental.Fold(r.ClientName), needle) &&
				!strings.Contains(rental.Fold(r.NoteNumber), needle)
		})
	}

	compare := comparator(opts.Sort, opts.Now)
	if compare == nil {
		return rows
	}
	slices.SortStableFunc(rows, func(a, b rental.Rental) int {
		if opts.Descending {
			return compare(b, a)
		}
		return compare(a, b)
	})
	return rows
}

func comparator(field SortField, now time.Time) func(a, b rental.Rental) int {
	switch field {
	case SortStartDate:
		return func(a, b rental.Rental) int { return a.StartDate.Compare(b.StartDate) }
	case SortEndDate:
		return func(a, b rental.Rental) int { return a.CurrentEndDate.Compare(b.CurrentEndDate) }
	case SortClient:
		return func(a, b rental.Rental) int {
			return cmp.Compare(rental.Fold(a.ClientName), rental.Fold(b.ClientName))
		}
	case SortNoteNumber:
		return func(a, b rental.Rental) int { return cmp.Compare(a.NoteNumber, b.NoteNumber) }
	case SortDaysOverdue:
		return func(a, b rental.Rental) int {
			return cmp.Compare(rental.DaysOverdue(a, now), rental.DaysOverdue(b, now))
		}
	default:
		return nil
	}
}
