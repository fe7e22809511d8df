package dataset

import "time"

// DateWindow is an inclusive notification-date range used to filter
// ingestion and to key cached snapshots. Zero bounds are open.
type DateWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w DateWindow) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && t.After(w.End) {
		return false
	}
	return true
}

// IsZero reports whether the window is unbounded on both sides.
func (w DateWindow) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// String renders the window as a stable cache key.
func (w DateWindow) String() string {
	format := func(t time.Time) string {
		if t.IsZero() {
			return "open"
		}
		return t.Format("2006-01-02")
	}
	return format(w.Start) + "_" + format(w.End)
}
