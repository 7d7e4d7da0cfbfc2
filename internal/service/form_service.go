package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"retreat/internal/database"
	"retreat/internal/domain"
	"retreat/internal/events"
	"retreat/internal/metrics"
	"retreat/internal/models"
	"retreat/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FormService accepts the public site forms: camp damage reports and land
// allocation applications.
type FormService struct {
	repo         domain.FormRepository
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	logger       *zerolog.Logger
}

func NewFormService(repo domain.FormRepository, eventBus domain.EventPublisher, sheetsWorker domain.SyncWorker, logger *zerolog.Logger) *FormService {
	return &FormService{
		repo:         repo,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		logger:       logger,
	}
}

func (s *FormService) SubmitDamageReport(ctx context.Context, report *models.DamageReport, idempotencyKey string) (*models.FormSubmission, bool, error) {
	report.Email = normalizeEmail(report.Email)
	if err := validateStruct(report); err != nil {
		return nil, false, err
	}
	summary := fmt.Sprintf("%s (%s), severity %s", report.AssetName, report.Location, report.Severity)
	return s.submit(ctx, models.FormDamageReport, report.Email, summary, report, idempotencyKey)
}

func (s *FormService) SubmitLandAllocation(ctx context.Context, app *models.LandAllocation, idempotencyKey string) (*models.FormSubmission, bool, error) {
	app.Email = normalizeEmail(app.Email)
	if err := validateStruct(app); err != nil {
		return nil, false, err
	}
	// формат дат уже проверен тегами, сравнение строк YYYY-MM-DD корректно
	if app.EndDate < app.StartDate {
		return nil, false, fieldError("end_date", "Must not be before start_date")
	}
	summary := fmt.Sprintf("%s: %.1f plot, %s to %s", app.ApplicantName, app.PlotSize, app.StartDate, app.EndDate)
	return s.submit(ctx, models.FormLandAllocation, app.Email, summary, app, idempotencyKey)
}

func (s *FormService) GetSubmission(ctx context.Context, reference string) (*models.FormSubmission, error) {
	return s.repo.GetFormSubmission(ctx, reference)
}

// ListSubmissions returns the newest submissions, optionally of one kind.
func (s *FormService) ListSubmissions(ctx context.Context, kind string, limit int) ([]models.FormSubmission, error) {
	switch kind {
	case "", models.FormDamageReport, models.FormLandAllocation:
	default:
		return nil, fieldError("kind", "Must be one of: damage_report land_allocation")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	list, err := s.repo.ListFormSubmissions(ctx, kind, limit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.FormSubmission{}
	}
	return list, nil
}

func (s *FormService) submit(ctx context.Context, kind, email, summary string, payload interface{}, idempotencyKey string) (*models.FormSubmission, bool, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, false, fmt.Errorf("encode %s: %w", kind, err)
	}

	f := &models.FormSubmission{
		Kind:      kind,
		Reference: uuid.NewString(),
		Email:     email,
		Payload:   string(raw),
	}
	if idempotencyKey != "" {
		f.IdempotencyKey = &idempotencyKey
	}

	if err := s.repo.CreateFormSubmission(ctx, f); err != nil {
		if errors.Is(err, database.ErrDuplicateSubmission) {
			metrics.IncReplay()
			return f, true, nil
		}
		return nil, false, err
	}

	metrics.IncForm(kind)
	s.logger.Info().Str("kind", kind).Str("reference", f.Reference).Msg("Form submitted")

	if s.eventBus != nil {
		if err := s.eventBus.PublishJSON(events.EventFormSubmitted, events.FormEventPayload{
			Kind:      kind,
			Reference: f.Reference,
			Email:     f.Email,
			Summary:   summary,
		}); err != nil {
			s.logger.Error().Err(err).Str("reference", f.Reference).Msg("publish event error")
		}
	}
	if s.sheetsWorker != nil {
		if err := s.sheetsWorker.EnqueueTask(ctx, worker.TaskAppendForm, 0, f); err != nil {
			s.logger.Error().Err(err).Str("reference", f.Reference).Msg("sheets enqueue error")
		}
	}
	return f, false, nil
}
