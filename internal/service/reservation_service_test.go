package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"retreat/internal/database"
	"retreat/internal/events"
	"retreat/internal/models"
	"retreat/internal/worker"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

type reservationFixture struct {
	resources *mockResources
	repo      *mockReservations
	bus       *mockPublisher
	worker    *mockWorker
	svc       *ReservationService
}

func newReservationFixture(t *testing.T) *reservationFixture {
	t.Helper()
	logger := zerolog.Nop()
	f := &reservationFixture{
		resources: new(mockResources),
		repo:      new(mockReservations),
		bus:       new(mockPublisher),
		worker:    new(mockWorker),
	}
	f.svc = NewReservationService(f.resources, f.repo, f.bus, f.worker, ScheduleSettings{MaxBookingDays: 30}, &logger)
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func studio() *models.Resource {
	return &models.Resource{ID: 1, Kind: models.KindRoom, Name: "Studio A", HourlyRate: 2000, IsAvailable: true}
}

func bookingRequest() *models.ReservationRequest {
	return &models.ReservationRequest{
		ResourceID: 1,
		Date:       "2026-06-03",
		StartTime:  "10:00",
		EndTime:    "11:30",
		BookedBy:   "Anna",
		Purpose:    "Choir rehearsal",
	}
}

func TestCreateReservation(t *testing.T) {
	ctx := context.Background()
	f := newReservationFixture(t)

	f.resources.On("GetResource", ctx, int64(1)).Return(studio(), nil)
	f.repo.On("CreateReservationWithLock", ctx, mock.AnythingOfType("*models.Reservation")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*models.Reservation).ID = 7
		}).Return(nil)
	f.bus.On("PublishJSON", events.EventReservationCreated, mock.Anything).Return(nil)
	f.worker.On("EnqueueTask", ctx, worker.TaskUpsert, int64(7), mock.AnythingOfType("*models.Reservation")).Return(nil)

	res, replayed, err := f.svc.CreateReservation(ctx, bookingRequest(), "key-1")
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, int64(7), res.ID)
	assert.Equal(t, models.StatusPending, res.Status)
	assert.Equal(t, models.MustClock("10:00"), res.StartTime)
	assert.Equal(t, models.MustClock("11:30"), res.EndTime)
	assert.Equal(t, int64(3000), res.Cost)
	assert.Equal(t, "Studio A", res.ResourceName)
	assert.Equal(t, "key-1", res.IdempotencyKey)

	f.repo.AssertExpectations(t)
	f.bus.AssertExpectations(t)
	f.worker.AssertExpectations(t)
}

func TestCreateReservationValidation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		modify func(r *models.ReservationRequest)
		field  string
	}{
		{"missing booked_by", func(r *models.ReservationRequest) { r.BookedBy = "" }, "booked_by"},
		{"bad date", func(r *models.ReservationRequest) { r.Date = "03.06.2026" }, "date"},
		{"bad status", func(r *models.ReservationRequest) { r.Status = "done" }, "status"},
		{"bad clock", func(r *models.ReservationRequest) { r.StartTime = "25:00" }, "start_time"},
		{"start at end of day", func(r *models.ReservationRequest) { r.StartTime = "24:00"; r.EndTime = "24:00" }, "start_time"},
		{"inverted window", func(r *models.ReservationRequest) { r.StartTime = "12:00" }, "end_time"},
		{"empty window", func(r *models.ReservationRequest) { r.EndTime = "10:00" }, "end_time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReservationFixture(t)
			req := bookingRequest()
			tt.modify(req)

			_, _, err := f.svc.CreateReservation(ctx, req, "")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Fields, tt.field)
			f.repo.AssertNotCalled(t, "CreateReservationWithLock", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateReservationEndOfDay(t *testing.T) {
	ctx := context.Background()
	f := newReservationFixture(t)

	f.resources.On("GetResource", ctx, int64(1)).Return(studio(), nil)
	f.repo.On("CreateReservationWithLock", ctx, mock.Anything).Return(nil)
	f.bus.On("PublishJSON", mock.Anything, mock.Anything).Return(nil)
	f.worker.On("EnqueueTask", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	req := bookingRequest()
	req.StartTime = "23:00"
	req.EndTime = "24:00"
	res, _, err := f.svc.CreateReservation(ctx, req, "")
	require.NoError(t, err)
	assert.Equal(t, models.EndOfDay, res.EndTime)
}

func TestCreateReservationDateBounds(t *testing.T) {
	ctx := context.Background()

	t.Run("past", func(t *testing.T) {
		f := newReservationFixture(t)
		req := bookingRequest()
		req.Date = "2026-05-31"
		_, _, err := f.svc.CreateReservation(ctx, req, "")
		assert.ErrorIs(t, err, database.ErrPastDate)
	})

	t.Run("today is allowed", func(t *testing.T) {
		f := newReservationFixture(t)
		assert.NoError(t, f.svc.ValidateReservationDate(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("too far", func(t *testing.T) {
		f := newReservationFixture(t)
		req := bookingRequest()
		req.Date = "2026-07-02"
		_, _, err := f.svc.CreateReservation(ctx, req, "")
		assert.ErrorIs(t, err, database.ErrDateTooFar)
	})

	t.Run("timezone decides today", func(t *testing.T) {
		f := newReservationFixture(t)
		loc := time.FixedZone("UTC+5", 5*60*60)
		f.svc.settings.Location = loc
		// 21:00 UTC is already the next day at UTC+5
		f.svc.now = func() time.Time { return time.Date(2026, 6, 1, 21, 0, 0, 0, time.UTC) }
		assert.ErrorIs(t, f.svc.ValidateReservationDate(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)), database.ErrPastDate)
	})
}

func TestCreateReservationUnavailableResource(t *testing.T) {
	ctx := context.Background()
	f := newReservationFixture(t)

	closed := studio()
	closed.IsAvailable = false
	f.resources.On("GetResource", ctx, int64(1)).Return(closed, nil)

	_, _, err := f.svc.CreateReservation(ctx, bookingRequest(), "")
	assert.ErrorIs(t, err, database.ErrResourceUnavailable)
	f.repo.AssertNotCalled(t, "CreateReservationWithLock", mock.Anything, mock.Anything)
}

func TestCreateReservationConflict(t *testing.T) {
	ctx := context.Background()
	f := newReservationFixture(t)

	existing := &models.Reservation{ID: 3, ResourceID: 1, StartTime: models.MustClock("11:00"), EndTime: models.MustClock("12:00")}
	f.resources.On("GetResource", ctx, int64(1)).Return(studio(), nil)
	f.repo.On("CreateReservationWithLock", ctx, mock.Anything).
		Return(&database.SlotConflictError{Conflicts: []*models.Reservation{existing}})

	_, _, err := f.svc.CreateReservation(ctx, bookingRequest(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, database.ErrSlotNotAvailable)

	var conflict *database.SlotConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Len(t, conflict.Conflicts, 1)

	f.bus.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)
	f.worker.AssertNotCalled(t, "EnqueueTask", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateReservationReplay(t *testing.T) {
	ctx := context.Background()
	f := newReservationFixture(t)

	f.resources.On("GetResource", ctx, int64(1)).Return(studio(), nil)
	f.repo.On("CreateReservationWithLock", ctx, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(1).(*models.Reservation).ID = 42
		}).Return(database.ErrDuplicateSubmission)

	res, replayed, err := f.svc.CreateReservation(ctx, bookingRequest(), "key-1")
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, int64(42), res.ID)
	f.bus.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)
}

func TestChangeStatus(t *testing.T) {
	ctx := context.Background()
	f := newReservationFixture(t)

	updated := &models.Reservation{ID: 5, ResourceID: 1, Status: models.StatusConfirmed, Version: 2}
	f.repo.On("UpdateReservationStatusWithVersion", ctx, int64(5), int64(1), models.StatusConfirmed).Return(updated, nil)
	f.bus.On("PublishJSON", events.EventReservationConfirmed, mock.Anything).Return(nil)
	f.worker.On("EnqueueTask", ctx, worker.TaskUpdateStatus, int64(5), models.StatusConfirmed).Return(nil)

	res, err := f.svc.ChangeStatus(ctx, 5, &models.StatusChange{Status: models.StatusConfirmed, Version: 1}, "admin")
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Version)

	f.bus.AssertExpectations(t)
	f.worker.AssertExpectations(t)
}

func TestChangeStatusErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("stale version", func(t *testing.T) {
		f := newReservationFixture(t)
		f.repo.On("UpdateReservationStatusWithVersion", ctx, int64(5), int64(1), models.StatusCancelled).
			Return(nil, database.ErrConcurrentModification)

		_, err := f.svc.ChangeStatus(ctx, 5, &models.StatusChange{Status: models.StatusCancelled, Version: 1}, "admin")
		assert.ErrorIs(t, err, database.ErrConcurrentModification)
		f.bus.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)
	})

	t.Run("unknown status", func(t *testing.T) {
		f := newReservationFixture(t)
		_, err := f.svc.ChangeStatus(ctx, 5, &models.StatusChange{Status: "done", Version: 1}, "admin")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("missing version", func(t *testing.T) {
		f := newReservationFixture(t)
		_, err := f.svc.ChangeStatus(ctx, 5, &models.StatusChange{Status: models.StatusPending}, "admin")
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestDeleteReservation(t *testing.T) {
	ctx := context.Background()
	f := newReservationFixture(t)

	r := &models.Reservation{ID: 9, ResourceID: 1, Status: models.StatusPending}
	f.repo.On("GetReservation", ctx, int64(9)).Return(r, nil)
	f.repo.On("DeleteReservation", ctx, int64(9)).Return(nil)
	f.bus.On("PublishJSON", events.EventReservationDeleted, mock.Anything).Return(nil)
	f.worker.On("EnqueueTask", ctx, worker.TaskDelete, int64(9), nil).Return(nil)

	require.NoError(t, f.svc.DeleteReservation(ctx, 9, "admin"))
	f.worker.AssertExpectations(t)

	f2 := newReservationFixture(t)
	f2.repo.On("GetReservation", ctx, int64(10)).Return(nil, database.ErrNotFound)
	assert.ErrorIs(t, f2.svc.DeleteReservation(ctx, 10, "admin"), database.ErrNotFound)
}

func TestPublishFailureDoesNotFailCreate(t *testing.T) {
	ctx := context.Background()
	f := newReservationFixture(t)

	f.resources.On("GetResource", ctx, int64(1)).Return(studio(), nil)
	f.repo.On("CreateReservationWithLock", ctx, mock.Anything).Return(nil)
	f.bus.On("PublishJSON", mock.Anything, mock.Anything).Return(errors.New("telegram down"))
	f.worker.On("EnqueueTask", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("queue full"))

	_, _, err := f.svc.CreateReservation(ctx, bookingRequest(), "")
	assert.NoError(t, err)
}

func TestSchedule(t *testing.T) {
	ctx := context.Background()
	f := newReservationFixture(t)
	date := time.Date(2026, 6, 3, 0, 0, 0, 0, time.UTC)

	busy := []*models.Reservation{
		{ID: 1, ResourceID: 1, Date: date, StartTime: models.MustClock("10:00"), EndTime: models.MustClock("11:00"), Status: models.StatusConfirmed},
		{ID: 2, ResourceID: 1, Date: date, StartTime: models.MustClock("12:00"), EndTime: models.MustClock("13:00"), Status: models.StatusCancelled},
	}
	f.resources.On("GetResource", ctx, int64(1)).Return(studio(), nil)
	f.repo.On("GetReservationsForDay", ctx, int64(1), date).Return(busy, nil)

	day, err := f.svc.Schedule(ctx, 1, date)
	require.NoError(t, err)
	assert.Equal(t, []models.Window{
		{Start: models.MustClock("06:00"), End: models.MustClock("10:00")},
		{Start: models.MustClock("11:00"), End: models.MustClock("23:00")},
	}, day.Free)
	assert.Len(t, day.Busy, 2)
}

func TestCheckAvailability(t *testing.T) {
	ctx := context.Background()
	date := time.Date(2026, 6, 3, 0, 0, 0, 0, time.UTC)
	day := []*models.Reservation{
		{ID: 1, ResourceID: 1, Date: date, StartTime: models.MustClock("10:00"), EndTime: models.MustClock("11:00"), Status: models.StatusPending},
	}

	tests := []struct {
		name      string
		start     string
		end       string
		available bool
	}{
		{"overlap", "10:30", "11:30", false},
		{"touching end", "11:00", "12:00", true},
		{"touching start", "09:00", "10:00", true},
		{"containing", "09:00", "12:00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReservationFixture(t)
			f.resources.On("GetResource", ctx, int64(1)).Return(studio(), nil)
			f.repo.On("GetReservationsForDay", ctx, int64(1), date).Return(day, nil)

			got, err := f.svc.CheckAvailability(ctx, 1, "2026-06-03", tt.start, tt.end)
			require.NoError(t, err)
			assert.Equal(t, tt.available, got.Available)
			if tt.available {
				assert.Empty(t, got.Conflicts)
			} else {
				assert.Len(t, got.Conflicts, 1)
			}
		})
	}
}

func TestListReservationsValidation(t *testing.T) {
	ctx := context.Background()
	f := newReservationFixture(t)

	_, err := f.svc.ListReservations(ctx, database.ReservationFilter{
		From: time.Date(2026, 6, 3, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.ListReservations(ctx, database.ReservationFilter{Status: "archived"})
	assert.ErrorIs(t, err, ErrValidation)

	filter := database.ReservationFilter{ResourceID: 1}
	f.repo.On("ListReservations", ctx, filter).Return([]*models.Reservation{{ID: 1}}, nil)
	list, err := f.svc.ListReservations(ctx, filter)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
