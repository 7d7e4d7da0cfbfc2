package models

import "time"

type Reservation struct {
	ID             int64     `json:"id"`
	ResourceID     int64     `json:"resource_id"`
	ResourceName   string    `json:"resource_name"`
	ResourceKind   string    `json:"resource_kind"`
	Date           time.Time `json:"date"`
	StartTime      Clock     `json:"start_time"`
	EndTime        Clock     `json:"end_time"`
	Status         string    `json:"status"` // pending, confirmed, cancelled
	Purpose        string    `json:"purpose"`
	Notes          string    `json:"notes,omitempty"`
	BookedBy       string    `json:"booked_by"`
	Contact        string    `json:"contact,omitempty"`
	Cost           int64     `json:"cost"` // cents
	IdempotencyKey string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Version        int64     `json:"version"`
}

// DateKey returns the reservation date as YYYY-MM-DD.
func (r *Reservation) DateKey() string {
	return r.Date.Format(DateLayout)
}

// Active reports whether the reservation still occupies its window.
func (r *Reservation) Active() bool {
	return r.Status != StatusCancelled
}

// ReservationRequest is the booking form of the scheduling tools.
type ReservationRequest struct {
	ResourceID int64  `json:"resource_id" validate:"required,gt=0"`
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime  string `json:"start_time" validate:"required"`
	EndTime    string `json:"end_time" validate:"required"`
	Status     string `json:"status" validate:"omitempty,oneof=pending confirmed cancelled"`
	Purpose    string `json:"purpose" validate:"max=500"`
	Notes      string `json:"notes" validate:"max=2000"`
	BookedBy   string `json:"booked_by" validate:"required,max=120"`
	Contact    string `json:"contact" validate:"max=200"`
}

// StatusChange moves a reservation to a new status if its version still matches.
type StatusChange struct {
	Status  string `json:"status" validate:"required,oneof=pending confirmed cancelled"`
	Version int64  `json:"version" validate:"required,gt=0"`
}
