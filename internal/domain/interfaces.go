package domain

import (
	"context"
	"time"

	"retreat/internal/database"
	"retreat/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type ResourceRepository interface {
	GetResource(ctx context.Context, id int64) (*models.Resource, error)
	ListResources(ctx context.Context, kind string, onlyAvailable bool) ([]models.Resource, error)
	CreateResource(ctx context.Context, r *models.Resource) error
	UpdateResource(ctx context.Context, r *models.Resource) error
	DeactivateResource(ctx context.Context, id int64) error
	ReorderResource(ctx context.Context, id, newOrder int64) error
}

type ReservationRepository interface {
	CreateReservationWithLock(ctx context.Context, r *models.Reservation) error
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	UpdateReservationStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) (*models.Reservation, error)
	DeleteReservation(ctx context.Context, id int64) error
	ListReservations(ctx context.Context, f database.ReservationFilter) ([]*models.Reservation, error)
	GetReservationsForDay(ctx context.Context, resourceID int64, date time.Time) ([]*models.Reservation, error)
	GetDailyReservations(ctx context.Context, start, end time.Time) (map[string][]*models.Reservation, error)
	GetStats(ctx context.Context) (*models.Stats, error)
}

type FormRepository interface {
	CreateFormSubmission(ctx context.Context, f *models.FormSubmission) error
	GetFormSubmission(ctx context.Context, reference string) (*models.FormSubmission, error)
	ListFormSubmissions(ctx context.Context, kind string, limit int) ([]models.FormSubmission, error)
}

type DonationRepository interface {
	CreateDonation(ctx context.Context, d *models.Donation) error
	GetDonationByIntent(ctx context.Context, paymentIntentID string) (*models.Donation, error)
	UpdateDonationStatus(ctx context.Context, paymentIntentID, status string) error
}

type MemberRepository interface {
	CreateMember(ctx context.Context, m *models.Member) error
	GetMemberByEmail(ctx context.Context, email string) (*models.Member, error)
	GetProfile(ctx context.Context, memberID int64) (*models.Profile, error)
	UpsertProfile(ctx context.Context, p *models.Profile) error
}

type SyncQueueRepository interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// IdempotencyStore remembers the response of a request by its client key.
//
// Begin returns (nil, nil) when the caller now owns the key, the stored
// response when the key already completed, or ErrInFlight when another
// request still holds it.
type IdempotencyStore interface {
	Begin(ctx context.Context, key string, ttl time.Duration) (*models.StoredResponse, error)
	Complete(ctx context.Context, key string, resp *models.StoredResponse, ttl time.Duration) error
	Release(ctx context.Context, key string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type SheetsWriter interface {
	UpsertReservation(ctx context.Context, r *models.Reservation) error
	UpdateReservationStatus(ctx context.Context, reservationID int64, status string) error
	DeleteReservationRow(ctx context.Context, reservationID int64) error
	AppendForm(ctx context.Context, f *models.FormSubmission) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, reservationID int64, payload interface{}) error
}

type PaymentProvider interface {
	CreateIntent(ctx context.Context, amount int64, currency, description, idempotencyKey string, metadata map[string]string) (*models.PaymentIntent, error)
	GetIntent(ctx context.Context, id string) (*models.PaymentIntent, error)
}
