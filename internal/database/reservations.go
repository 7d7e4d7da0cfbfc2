package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"retreat/internal/models"
	"retreat/internal/schedule"

	"github.com/jmoiron/sqlx"
)

const reservationColumns = `id, resource_id, resource_name, resource_kind, date, start_time, end_time,
	status, purpose, notes, booked_by, contact, cost, idempotency_key, created_at, updated_at, version`

type reservationRow struct {
	ID             int64          `db:"id"`
	ResourceID     int64          `db:"resource_id"`
	ResourceName   string         `db:"resource_name"`
	ResourceKind   string         `db:"resource_kind"`
	Date           string         `db:"date"`
	StartTime      models.Clock   `db:"start_time"`
	EndTime        models.Clock   `db:"end_time"`
	Status         string         `db:"status"`
	Purpose        string         `db:"purpose"`
	Notes          string         `db:"notes"`
	BookedBy       string         `db:"booked_by"`
	Contact        string         `db:"contact"`
	Cost           int64          `db:"cost"`
	IdempotencyKey sql.NullString `db:"idempotency_key"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
	Version        int64          `db:"version"`
}

func (r *reservationRow) toModel() (*models.Reservation, error) {
	date, err := models.ParseDate(r.Date)
	if err != nil {
		return nil, fmt.Errorf("failed to parse reservation date %s: %w", r.Date, err)
	}
	return &models.Reservation{
		ID:             r.ID,
		ResourceID:     r.ResourceID,
		ResourceName:   r.ResourceName,
		ResourceKind:   r.ResourceKind,
		Date:           date,
		StartTime:      r.StartTime,
		EndTime:        r.EndTime,
		Status:         r.Status,
		Purpose:        r.Purpose,
		Notes:          r.Notes,
		BookedBy:       r.BookedBy,
		Contact:        r.Contact,
		Cost:           r.Cost,
		IdempotencyKey: r.IdempotencyKey.String,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		Version:        r.Version,
	}, nil
}

func toReservations(rows []reservationRow) ([]*models.Reservation, error) {
	out := make([]*models.Reservation, 0, len(rows))
	for i := range rows {
		r, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// activeForSlot loads the non-cancelled reservations of one resource on one date.
func activeForSlot(ctx context.Context, q sqlx.QueryerContext, resourceID int64, date string) ([]*models.Reservation, error) {
	var rows []reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations
              WHERE resource_id = ? AND date = ? AND status != ?
              ORDER BY start_time`
	if err := sqlx.SelectContext(ctx, q, &rows, query, resourceID, date, models.StatusCancelled); err != nil {
		return nil, fmt.Errorf("failed to load reservations for slot: %w", err)
	}
	return toReservations(rows)
}

// CreateReservationWithLock checks the window and inserts in one transaction.
// A reservation whose idempotency key is already stored is loaded into r and
// ErrDuplicateSubmission is returned instead of inserting a second row.
func (db *DB) CreateReservationWithLock(ctx context.Context, r *models.Reservation) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if r.IdempotencyKey != "" {
		var existing reservationRow
		err := tx.GetContext(ctx, &existing,
			`SELECT `+reservationColumns+` FROM reservations WHERE idempotency_key = ?`, r.IdempotencyKey)
		switch {
		case err == nil:
			stored, convErr := existing.toModel()
			if convErr != nil {
				return convErr
			}
			*r = *stored
			return ErrDuplicateSubmission
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("failed to look up idempotency key: %w", err)
		}
	}

	// 1. Проверка пересечений внутри транзакции
	dateKey := r.DateKey()
	existing, err := activeForSlot(ctx, tx, r.ResourceID, dateKey)
	if err != nil {
		return err
	}
	if r.Active() {
		if conflicts := schedule.Conflicts(r.ResourceID, r.Date, r.StartTime, r.EndTime, existing, 0); len(conflicts) > 0 {
			return &SlotConflictError{Conflicts: conflicts}
		}
	}

	// 2. Создание брони
	query := `INSERT INTO reservations (
                  resource_id, resource_name, resource_kind, date, start_time, end_time,
                  status, purpose, notes, booked_by, contact, cost, idempotency_key,
                  created_at, updated_at, version
              ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := tx.ExecContext(ctx, query,
		r.ResourceID, r.ResourceName, r.ResourceKind, dateKey, r.StartTime, r.EndTime,
		r.Status, r.Purpose, r.Notes, r.BookedBy, r.Contact, r.Cost, nullable(r.IdempotencyKey),
		now, now, 1,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reservation in tx: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reservation: %w", err)
	}

	r.ID = id
	r.CreatedAt = now
	r.UpdatedAt = now
	r.Version = 1
	return nil
}

func (db *DB) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	var row reservationRow
	err := db.GetContext(ctx, &row, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return row.toModel()
}

// UpdateReservationStatusWithVersion sets the status if the stored version still
// equals fromVersion. Moving into an active status re-runs the overlap check
// against the other reservations of the slot.
func (db *DB) UpdateReservationStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) (*models.Reservation, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var row reservationRow
	err = tx.GetContext(ctx, &row, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation in tx: %w", err)
	}
	current, err := row.toModel()
	if err != nil {
		return nil, err
	}
	if current.Version != fromVersion {
		return nil, ErrConcurrentModification
	}

	if status != models.StatusCancelled {
		others, err := activeForSlot(ctx, tx, current.ResourceID, current.DateKey())
		if err != nil {
			return nil, err
		}
		if conflicts := schedule.Conflicts(current.ResourceID, current.Date, current.StartTime, current.EndTime, others, current.ID); len(conflicts) > 0 {
			return nil, &SlotConflictError{Conflicts: conflicts}
		}
	}

	now := time.Now()
	result, err := tx.ExecContext(ctx,
		`UPDATE reservations SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
		status, now, id, fromVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to update reservation status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrConcurrentModification
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status update: %w", err)
	}

	current.Status = status
	current.Version++
	current.UpdatedAt = now
	return current, nil
}

func (db *DB) DeleteReservation(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete reservation: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReservationFilter narrows ListReservations; zero fields are ignored.
type ReservationFilter struct {
	From       time.Time
	To         time.Time
	ResourceID int64
	Status     string
}

func (db *DB) ListReservations(ctx context.Context, f ReservationFilter) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE 1 = 1`
	var args []interface{}
	if !f.From.IsZero() {
		query += ` AND date >= ?`
		args = append(args, f.From.Format(models.DateLayout))
	}
	if !f.To.IsZero() {
		query += ` AND date <= ?`
		args = append(args, f.To.Format(models.DateLayout))
	}
	if f.ResourceID != 0 {
		query += ` AND resource_id = ?`
		args = append(args, f.ResourceID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY date, start_time, id`

	var rows []reservationRow
	if err := db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	return toReservations(rows)
}

func (db *DB) GetReservationsByDateRange(ctx context.Context, startDate, endDate time.Time) ([]*models.Reservation, error) {
	return db.ListReservations(ctx, ReservationFilter{From: startDate, To: endDate})
}

// GetReservationsForDay returns the active reservations of a resource on a date.
func (db *DB) GetReservationsForDay(ctx context.Context, resourceID int64, date time.Time) ([]*models.Reservation, error) {
	return activeForSlot(ctx, db, resourceID, date.Format(models.DateLayout))
}

// GetDailyReservations groups the reservations of a period by YYYY-MM-DD.
func (db *DB) GetDailyReservations(ctx context.Context, startDate, endDate time.Time) (map[string][]*models.Reservation, error) {
	reservations, err := db.GetReservationsByDateRange(ctx, startDate, endDate)
	if err != nil {
		return nil, err
	}

	daily := make(map[string][]*models.Reservation)
	for _, r := range reservations {
		key := r.DateKey()
		daily[key] = append(daily[key], r)
	}
	return daily, nil
}
