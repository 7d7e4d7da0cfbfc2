package service

import (
	"context"
	"time"

	"retreat/internal/database"
	"retreat/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockResources struct {
	mock.Mock
}

func (m *mockResources) GetResource(ctx context.Context, id int64) (*models.Resource, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Resource), args.Error(1)
}
func (m *mockResources) ListResources(ctx context.Context, kind string, onlyAvailable bool) ([]models.Resource, error) {
	args := m.Called(ctx, kind, onlyAvailable)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Resource), args.Error(1)
}
func (m *mockResources) CreateResource(ctx context.Context, r *models.Resource) error {
	return m.Called(ctx, r).Error(0)
}
func (m *mockResources) UpdateResource(ctx context.Context, r *models.Resource) error {
	return m.Called(ctx, r).Error(0)
}
func (m *mockResources) DeactivateResource(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}
func (m *mockResources) ReorderResource(ctx context.Context, id, o int64) error {
	return m.Called(ctx, id, o).Error(0)
}

type mockReservations struct {
	mock.Mock
}

func (m *mockReservations) CreateReservationWithLock(ctx context.Context, r *models.Reservation) error {
	return m.Called(ctx, r).Error(0)
}
func (m *mockReservations) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reservation), args.Error(1)
}
func (m *mockReservations) UpdateReservationStatusWithVersion(ctx context.Context, id, v int64, s string) (*models.Reservation, error) {
	args := m.Called(ctx, id, v, s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reservation), args.Error(1)
}
func (m *mockReservations) DeleteReservation(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}
func (m *mockReservations) ListReservations(ctx context.Context, f database.ReservationFilter) ([]*models.Reservation, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Reservation), args.Error(1)
}
func (m *mockReservations) GetReservationsForDay(ctx context.Context, id int64, d time.Time) ([]*models.Reservation, error) {
	args := m.Called(ctx, id, d)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Reservation), args.Error(1)
}
func (m *mockReservations) GetDailyReservations(ctx context.Context, s, e time.Time) (map[string][]*models.Reservation, error) {
	args := m.Called(ctx, s, e)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string][]*models.Reservation), args.Error(1)
}
func (m *mockReservations) GetStats(ctx context.Context) (*models.Stats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Stats), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}

type mockWorker struct {
	mock.Mock
}

func (m *mockWorker) EnqueueTask(ctx context.Context, taskType string, id int64, payload interface{}) error {
	return m.Called(ctx, taskType, id, payload).Error(0)
}

type mockForms struct {
	mock.Mock
}

func (m *mockForms) CreateFormSubmission(ctx context.Context, f *models.FormSubmission) error {
	return m.Called(ctx, f).Error(0)
}
func (m *mockForms) GetFormSubmission(ctx context.Context, ref string) (*models.FormSubmission, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FormSubmission), args.Error(1)
}

func (m *mockForms) ListFormSubmissions(ctx context.Context, kind string, limit int) ([]models.FormSubmission, error) {
	args := m.Called(ctx, kind, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.FormSubmission), args.Error(1)
}

type mockDonations struct {
	mock.Mock
}

func (m *mockDonations) CreateDonation(ctx context.Context, d *models.Donation) error {
	return m.Called(ctx, d).Error(0)
}
func (m *mockDonations) GetDonationByIntent(ctx context.Context, id string) (*models.Donation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Donation), args.Error(1)
}
func (m *mockDonations) UpdateDonationStatus(ctx context.Context, id, status string) error {
	return m.Called(ctx, id, status).Error(0)
}
