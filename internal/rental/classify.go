package rental

import (
	"cmp"
	"slices"
	"time"
)

// Classify returns the primary bucket of a rental at now. Status decides
// completion and cancellation; the end date only matters while active.
func Classify(r Rental, now time.Time) Bucket {
	switch r.Status {
	case StatusCompleted:
		return BucketCompleted
	case StatusCancelled:
		return BucketCancelled
	}
	if isOverdue(r, now) {
		return BucketExpired
	}
	return BucketActive
}

// Matches reports whether a rental belongs to the bucket under list-filter
// semantics, where buckets may overlap (an expired rental is also awaiting
// return).
func Matches(r Rental, bucket Bucket, now time.Time) bool {
	switch bucket {
	case BucketAll:
		return true
	case BucketActive:
		return r.Status == StatusActive && !isOverdue(r, now)
	case BucketExpired:
		return r.Status == StatusActive && isOverdue(r, now)
	case BucketCompleted:
		return r.Status == StatusCompleted
	case BucketAwaitingReturn:
		return r.ReturnDate == nil && r.Status != StatusCancelled
	case BucketCancelled:
		return r.Status == StatusCancelled
	default:
		return false
	}
}

func isOverdue(r Rental, now time.Time) bool {
	if r.CurrentEndDate.IsZero() {
		return false
	}
	return DateOnly(r.CurrentEndDate).Before(Today(now))
}

// DaysOverdue returns whole days past the current end date, or 0 when the
// rental is not expired.
func DaysOverdue(r Rental, now time.Time) int {
	if !Matches(r, BucketExpired, now) {
		return 0
	}
	return DaysBetween(r.CurrentEndDate, now)
}

// OverdueEntry is one item of the overdue-alerts feed.
type OverdueEntry struct {
	Rental      Rental `json:"rental"`
	DaysOverdue int    `json:"days_overdue"`
}

// OverdueEntries returns expired rentals, most overdue first. Ties keep input
// order.
func OverdueEntries(rentals []Rental, now time.Time) []OverdueEntry {
	entries := make([]OverdueEntry, 0)
	for _, r := range rentals {
		days := DaysOverdue(r, now)
		if days < 1 {
			continue
		}
		entries = append(entries, OverdueEntry{Rental: r, DaysOverdue: days})
	}
	slices.SortStableFunc(entries, func(a, b OverdueEntry) int {
		return cmp.Compare(b.DaysOverdue, a.DaysOverdue)
	})
	return entries
}
