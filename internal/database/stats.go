package database

import (
	"context"
	"fmt"

	"retreat/internal/models"
)

type countRow struct {
	Key   string `db:"k"`
	Count int64  `db:"n"`
}

func (db *DB) countBy(ctx context.Context, query string, args ...interface{}) (map[string]int64, error) {
	var rows []countRow
	if err := db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Count
	}
	return out, nil
}

// GetStats aggregates the admin dashboard numbers.
func (db *DB) GetStats(ctx context.Context) (*models.Stats, error) {
	byStatus, err := db.countBy(ctx, `SELECT status AS k, COUNT(*) AS n FROM reservations GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count reservations by status: %w", err)
	}

	byKind, err := db.countBy(ctx,
		`SELECT resource_kind AS k, COUNT(*) AS n FROM reservations WHERE status != ? GROUP BY resource_kind`,
		models.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to count reservations by kind: %w", err)
	}

	forms, err := db.countBy(ctx, `SELECT kind AS k, COUNT(*) AS n FROM form_submissions GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to count forms: %w", err)
	}

	var donations struct {
		Count int64 `db:"n"`
		Total int64 `db:"total"`
	}
	err = db.GetContext(ctx, &donations,
		`SELECT COUNT(*) AS n, COALESCE(SUM(amount), 0) AS total FROM donations WHERE status = ?`,
		models.DonationSucceeded)
	if err != nil {
		return nil, fmt.Errorf("failed to sum donations: %w", err)
	}

	return &models.Stats{
		ReservationsByStatus: byStatus,
		ReservationsByKind:   byKind,
		FormsByKind:          forms,
		DonationsSucceeded:   donations.Count,
		DonationsTotal:       donations.Total,
	}, nil
}
