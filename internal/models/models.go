package models

import "time"

// Window is a half-open [Start, End) range on a single date.
type Window struct {
	Start Clock `json:"start"`
	End   Clock `json:"end"`
}

// Minutes returns the window length.
func (w Window) Minutes() int {
	return w.End.Sub(w.Start)
}

// DaySchedule describes one resource on one date: what is taken and what is free.
type DaySchedule struct {
	ResourceID int64          `json:"resource_id"`
	Date       time.Time      `json:"date"`
	Busy       []*Reservation `json:"busy"`
	Free       []Window       `json:"free"`
}

// Stats is the admin dashboard summary.
type Stats struct {
	ReservationsByStatus map[string]int64 `json:"reservations_by_status"`
	ReservationsByKind   map[string]int64 `json:"reservations_by_kind"`
	FormsByKind          map[string]int64 `json:"forms_by_kind"`
	DonationsSucceeded   int64            `json:"donations_succeeded"`
	DonationsTotal       int64            `json:"donations_total"` // cents
}

// ParseDate parses YYYY-MM-DD into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
