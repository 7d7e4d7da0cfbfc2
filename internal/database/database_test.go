package database

import (
	"context"
	"testing"
	"time"

	"retreat/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createRoom(t *testing.T, db *DB, name string, rate int64) *models.Resource {
	t.Helper()
	r := &models.Resource{Kind: models.KindRoom, Name: name, HourlyRate: rate, Capacity: 8, IsAvailable: true}
	require.NoError(t, db.CreateResource(context.Background(), r))
	return r
}

func newReservation(res *models.Resource, date time.Time, start, end string) *models.Reservation {
	return &models.Reservation{
		ResourceID:   res.ID,
		ResourceName: res.Name,
		ResourceKind: res.Kind,
		Date:         date,
		StartTime:    models.MustClock(start),
		EndTime:      models.MustClock(end),
		Status:       models.StatusConfirmed,
		Purpose:      "rehearsal",
		BookedBy:     "Praise Team",
	}
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := models.ParseDate(s)
	require.NoError(t, err)
	return d
}
