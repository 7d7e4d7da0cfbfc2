package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"retreat/internal/database"
	"retreat/internal/domain"
	"retreat/internal/events"
	"retreat/internal/metrics"
	"retreat/internal/models"
	"retreat/internal/schedule"
	"retreat/internal/worker"

	"github.com/rs/zerolog"
)

// ScheduleSettings bounds what can be booked.
type ScheduleSettings struct {
	Open           models.Clock
	Close          models.Clock
	MaxBookingDays int
	Location       *time.Location
}

type ReservationService struct {
	resources    domain.ResourceRepository
	repo         domain.ReservationRepository
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	settings     ScheduleSettings
	now          func() time.Time
	logger       *zerolog.Logger
}

func NewReservationService(
	resources domain.ResourceRepository,
	repo domain.ReservationRepository,
	eventBus domain.EventPublisher,
	sheetsWorker domain.SyncWorker,
	settings ScheduleSettings,
	logger *zerolog.Logger,
) *ReservationService {
	if settings.MaxBookingDays <= 0 {
		settings.MaxBookingDays = models.DefaultMaxBookingDays
	}
	if settings.Close == 0 {
		settings.Open = models.MustClock(models.DefaultOpenTime)
		settings.Close = models.MustClock(models.DefaultCloseTime)
	}
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	return &ReservationService{
		resources:    resources,
		repo:         repo,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		settings:     settings,
		now:          time.Now,
		logger:       logger,
	}
}

// today returns the civil date of "now" in the site timezone as UTC midnight,
// the same shape models.ParseDate produces.
func (s *ReservationService) today() time.Time {
	y, m, d := s.now().In(s.settings.Location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *ReservationService) ValidateReservationDate(date time.Time) error {
	today := s.today()
	if date.Before(today) {
		return database.ErrPastDate
	}
	if date.After(today.AddDate(0, 0, s.settings.MaxBookingDays)) {
		return database.ErrDateTooFar
	}
	return nil
}

func parseWindow(date, start, end string) (time.Time, models.Clock, models.Clock, error) {
	d, err := models.ParseDate(date)
	if err != nil {
		return time.Time{}, 0, 0, fieldError("date", "Must be a date in YYYY-MM-DD format")
	}
	st, err := models.ParseClock(start)
	if err != nil {
		return time.Time{}, 0, 0, fieldError("start_time", "Must be a time in HH:MM format")
	}
	en, err := models.ParseClock(end)
	if err != nil {
		return time.Time{}, 0, 0, fieldError("end_time", "Must be a time in HH:MM format")
	}
	if st == models.EndOfDay {
		return time.Time{}, 0, 0, fieldError("start_time", "24:00 is only valid as an end time")
	}
	if err := schedule.ValidateWindow(st, en); err != nil {
		return time.Time{}, 0, 0, fieldError("end_time", "Must be after start_time")
	}
	return d, st, en, nil
}

// CreateReservation validates the request and stores it with a server-side
// overlap check. A request whose idempotency key was already used returns
// the stored reservation and replayed=true.
func (s *ReservationService) CreateReservation(ctx context.Context, req *models.ReservationRequest, idempotencyKey string) (res *models.Reservation, replayed bool, err error) {
	if err := validateStruct(req); err != nil {
		return nil, false, err
	}
	date, start, end, err := parseWindow(req.Date, req.StartTime, req.EndTime)
	if err != nil {
		return nil, false, err
	}
	if err := s.ValidateReservationDate(date); err != nil {
		return nil, false, err
	}

	resource, err := s.resources.GetResource(ctx, req.ResourceID)
	if err != nil {
		return nil, false, err
	}
	if !resource.IsAvailable {
		return nil, false, database.ErrResourceUnavailable
	}

	status := req.Status
	if status == "" {
		status = models.StatusPending
	}

	r := &models.Reservation{
		ResourceID:     resource.ID,
		ResourceName:   resource.Name,
		ResourceKind:   resource.Kind,
		Date:           date,
		StartTime:      start,
		EndTime:        end,
		Status:         status,
		Purpose:        strings.TrimSpace(req.Purpose),
		Notes:          strings.TrimSpace(req.Notes),
		BookedBy:       strings.TrimSpace(req.BookedBy),
		Contact:        strings.TrimSpace(req.Contact),
		Cost:           schedule.ReservationCost(resource, start, end),
		IdempotencyKey: idempotencyKey,
	}

	if err := s.repo.CreateReservationWithLock(ctx, r); err != nil {
		if errors.Is(err, database.ErrDuplicateSubmission) {
			metrics.IncReplay()
			return r, true, nil
		}
		if errors.Is(err, database.ErrSlotNotAvailable) {
			metrics.IncConflict(resource.Kind)
		}
		return nil, false, err
	}

	s.logger.Info().
		Int64("reservation_id", r.ID).
		Int64("resource_id", r.ResourceID).
		Str("date", r.DateKey()).
		Str("window", fmt.Sprintf("%s-%s", r.StartTime, r.EndTime)).
		Msg("Reservation created")

	s.publishEvent(events.EventReservationCreated, r, r.BookedBy)
	s.enqueueSync(ctx, r, worker.TaskUpsert)
	return r, false, nil
}

// ChangeStatus applies any status to any reservation, guarded by version.
func (s *ReservationService) ChangeStatus(ctx context.Context, id int64, change *models.StatusChange, changedBy string) (*models.Reservation, error) {
	if err := validateStruct(change); err != nil {
		return nil, err
	}

	r, err := s.repo.UpdateReservationStatusWithVersion(ctx, id, change.Version, change.Status)
	if err != nil {
		if errors.Is(err, database.ErrSlotNotAvailable) {
			metrics.IncConflict("status_change")
		}
		return nil, err
	}

	s.publishEvent(events.StatusEvent(r.Status), r, changedBy)
	s.enqueueSync(ctx, r, worker.TaskUpdateStatus)
	return r, nil
}

func (s *ReservationService) DeleteReservation(ctx context.Context, id int64, changedBy string) error {
	r, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteReservation(ctx, id); err != nil {
		return err
	}

	s.publishEvent(events.EventReservationDeleted, r, changedBy)
	s.enqueueSync(ctx, r, worker.TaskDelete)
	return nil
}

func (s *ReservationService) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	return s.repo.GetReservation(ctx, id)
}

func (s *ReservationService) ListReservations(ctx context.Context, f database.ReservationFilter) ([]*models.Reservation, error) {
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return nil, fieldError("to", "Must not be before from")
	}
	if f.Status != "" && !models.ValidStatus(f.Status) {
		return nil, fieldError("status", "Must be one of: pending, confirmed, cancelled")
	}
	return s.repo.ListReservations(ctx, f)
}

func (s *ReservationService) GetDailyReservations(ctx context.Context, start, end time.Time) (map[string][]*models.Reservation, error) {
	return s.repo.GetDailyReservations(ctx, start, end)
}

func (s *ReservationService) GetStats(ctx context.Context) (*models.Stats, error) {
	return s.repo.GetStats(ctx)
}

// Schedule returns the busy and free windows of a resource on a date.
func (s *ReservationService) Schedule(ctx context.Context, resourceID int64, date time.Time) (*models.DaySchedule, error) {
	if _, err := s.resources.GetResource(ctx, resourceID); err != nil {
		return nil, err
	}
	busy, err := s.repo.GetReservationsForDay(ctx, resourceID, date)
	if err != nil {
		return nil, err
	}
	if busy == nil {
		busy = []*models.Reservation{}
	}
	return &models.DaySchedule{
		ResourceID: resourceID,
		Date:       date,
		Busy:       busy,
		Free:       schedule.FreeWindows(s.settings.Open, s.settings.Close, busy),
	}, nil
}

// Availability is the answer to "can resource X be booked on date D from S to E".
type Availability struct {
	ResourceID int64                 `json:"resource_id"`
	Date       string                `json:"date"`
	StartTime  models.Clock          `json:"start_time"`
	EndTime    models.Clock          `json:"end_time"`
	Available  bool                  `json:"available"`
	Conflicts  []*models.Reservation `json:"conflicts,omitempty"`
	Cost       int64                 `json:"cost"`
}

// CheckAvailability runs the overlap predicate against the stored day. It is
// advisory: CreateReservation repeats the check inside a transaction.
func (s *ReservationService) CheckAvailability(ctx context.Context, resourceID int64, date, start, end string) (*Availability, error) {
	d, st, en, err := parseWindow(date, start, end)
	if err != nil {
		return nil, err
	}
	resource, err := s.resources.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	day, err := s.repo.GetReservationsForDay(ctx, resourceID, d)
	if err != nil {
		return nil, err
	}

	out := &Availability{
		ResourceID: resourceID,
		Date:       d.Format(models.DateLayout),
		StartTime:  st,
		EndTime:    en,
		Available:  resource.IsAvailable && schedule.IsAvailable(resourceID, d, st, en, day),
		Cost:       schedule.ReservationCost(resource, st, en),
	}
	if !out.Available {
		out.Conflicts = schedule.Conflicts(resourceID, d, st, en, day, 0)
	}
	return out, nil
}

func (s *ReservationService) publishEvent(eventType string, r *models.Reservation, changedBy string) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, events.NewReservationPayload(r, changedBy)); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("reservation_id", r.ID).Msg("publish event error")
	}
}

func (s *ReservationService) enqueueSync(ctx context.Context, r *models.Reservation, taskType string) {
	if s.sheetsWorker == nil {
		return
	}

	var payload interface{}
	switch taskType {
	case worker.TaskUpsert:
		payload = r
	case worker.TaskUpdateStatus:
		payload = r.Status
	}

	if err := s.sheetsWorker.EnqueueTask(ctx, taskType, r.ID, payload); err != nil {
		s.logger.Error().Err(err).Int64("reservation_id", r.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}
