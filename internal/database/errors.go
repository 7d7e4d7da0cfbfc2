package database

import (
	"errors"
	"fmt"

	"retreat/internal/models"
)

var (
	ErrNotFound               = errors.New("record not found")
	ErrSlotNotAvailable       = errors.New("time slot is not available")
	ErrConcurrentModification = errors.New("record was modified concurrently")
	ErrPastDate               = errors.New("date is in the past")
	ErrDateTooFar             = errors.New("date is too far in the future")
	ErrDuplicateSubmission    = errors.New("submission already stored")
	ErrAlreadyExists          = errors.New("record already exists")
	ErrResourceUnavailable    = errors.New("resource is not available for booking")
)

// SlotConflictError carries the reservations that block a window.
// It matches ErrSlotNotAvailable with errors.Is.
type SlotConflictError struct {
	Conflicts []*models.Reservation
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("%s: %d conflicting reservation(s)", ErrSlotNotAvailable, len(e.Conflicts))
}

func (e *SlotConflictError) Unwrap() error {
	return ErrSlotNotAvailable
}
