package service

import (
	"context"
	"strings"

	"retreat/internal/domain"
	"retreat/internal/models"

	"github.com/rs/zerolog"
)

type ResourceService struct {
	repo   domain.ResourceRepository
	logger *zerolog.Logger
}

func NewResourceService(repo domain.ResourceRepository, logger *zerolog.Logger) *ResourceService {
	return &ResourceService{
		repo:   repo,
		logger: logger,
	}
}

// ListResources returns the registry, optionally narrowed to one kind and to
// resources open for booking.
func (s *ResourceService) ListResources(ctx context.Context, kind string, onlyAvailable bool) ([]models.Resource, error) {
	if kind != "" && !models.ValidKind(kind) {
		return nil, fieldError("kind", "Must be one of: room, instrument, choir_member")
	}
	return s.repo.ListResources(ctx, kind, onlyAvailable)
}

func (s *ResourceService) GetResource(ctx context.Context, id int64) (*models.Resource, error) {
	return s.repo.GetResource(ctx, id)
}

func normalizeResource(r *models.Resource) {
	r.Name = strings.TrimSpace(r.Name)
	r.Category = strings.TrimSpace(r.Category)
	if r.Kind != models.KindRoom {
		// почасовая ставка есть только у залов
		r.HourlyRate = 0
	}
}

// CreateResource is the "add" form of the scheduling tools.
func (s *ResourceService) CreateResource(ctx context.Context, r *models.Resource) error {
	normalizeResource(r)
	if err := validateStruct(r); err != nil {
		return err
	}
	if err := s.repo.CreateResource(ctx, r); err != nil {
		return err
	}
	s.logger.Info().Int64("resource_id", r.ID).Str("kind", r.Kind).Str("name", r.Name).Msg("Resource created")
	return nil
}

func (s *ResourceService) UpdateResource(ctx context.Context, r *models.Resource) error {
	existing, err := s.repo.GetResource(ctx, r.ID)
	if err != nil {
		return err
	}
	r.CreatedAt = existing.CreatedAt
	normalizeResource(r)
	if err := validateStruct(r); err != nil {
		return err
	}
	return s.repo.UpdateResource(ctx, r)
}

// DeactivateResource closes a resource for new reservations; existing ones stay.
func (s *ResourceService) DeactivateResource(ctx context.Context, id int64) error {
	if err := s.repo.DeactivateResource(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Int64("resource_id", id).Msg("Resource deactivated")
	return nil
}

func (s *ResourceService) ReorderResource(ctx context.Context, id, newOrder int64) error {
	if newOrder < 0 {
		return fieldError("sort_order", "Must be at least 0")
	}
	return s.repo.ReorderResource(ctx, id, newOrder)
}
