// Package schedule holds the pure time-window logic shared by the room,
// instrument and choir schedulers: overlap detection, free-gap computation
// and booking cost.
package schedule

import (
	"errors"
	"sort"
	"time"

	"retreat/internal/models"
)

var ErrInvalidWindow = errors.New("start time must be before end time")

// ValidateWindow rejects empty and inverted windows.
func ValidateWindow(start, end models.Clock) error {
	if start >= end {
		return ErrInvalidWindow
	}
	return nil
}

// Disjoint reports whether [aStart, aEnd) and [bStart, bEnd) do not intersect.
// Touching bounds (aEnd == bStart) are disjoint.
func Disjoint(aStart, aEnd, bStart, bEnd models.Clock) bool {
	return aEnd <= bStart || aStart >= bEnd
}

// IsAvailable reports whether no non-cancelled reservation for resourceID on
// date intersects [start, end). Reservations for other resources or dates are
// ignored. It never fails; malformed windows simply produce a verdict.
func IsAvailable(resourceID int64, date time.Time, start, end models.Clock, reservations []*models.Reservation) bool {
	return len(Conflicts(resourceID, date, start, end, reservations, 0)) == 0
}

// Conflicts returns the reservations that make [start, end) unavailable.
// A non-zero excludeID skips that reservation (used when re-checking an
// existing booking against its neighbours).
func Conflicts(resourceID int64, date time.Time, start, end models.Clock, reservations []*models.Reservation, excludeID int64) []*models.Reservation {
	day := date.Format(models.DateLayout)

	var out []*models.Reservation
	for _, r := range reservations {
		if r == nil || r.ResourceID != resourceID || !r.Active() {
			continue
		}
		if excludeID != 0 && r.ID == excludeID {
			continue
		}
		if r.DateKey() != day {
			continue
		}
		if !Disjoint(start, end, r.StartTime, r.EndTime) {
			out = append(out, r)
		}
	}
	return out
}

// FreeWindows returns the gaps inside [open, close) not covered by any
// active reservation in busy. busy is expected to hold one resource/date.
func FreeWindows(open, close models.Clock, busy []*models.Reservation) []models.Window {
	active := make([]*models.Reservation, 0, len(busy))
	for _, r := range busy {
		if r != nil && r.Active() {
			active = append(active, r)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].StartTime < active[j].StartTime
	})

	var free []models.Window
	cursor := open
	for _, r := range active {
		if r.EndTime <= cursor {
			continue
		}
		if r.StartTime >= close {
			break
		}
		if r.StartTime > cursor {
			free = append(free, models.Window{Start: cursor, End: r.StartTime})
		}
		cursor = r.EndTime
	}
	if cursor < close {
		free = append(free, models.Window{Start: cursor, End: close})
	}
	return free
}
