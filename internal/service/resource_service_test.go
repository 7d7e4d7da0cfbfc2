package service

import (
	"context"
	"testing"
	"time"

	"retreat/internal/database"
	"retreat/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newResourceService() (*ResourceService, *mockResources) {
	logger := zerolog.Nop()
	repo := new(mockResources)
	return NewResourceService(repo, &logger), repo
}

func TestCreateResource(t *testing.T) {
	ctx := context.Background()
	svc, repo := newResourceService()

	repo.On("CreateResource", ctx, mock.AnythingOfType("*models.Resource")).Return(nil)

	r := &models.Resource{Kind: models.KindInstrument, Name: "  Grand Piano ", HourlyRate: 500, IsAvailable: true}
	require.NoError(t, svc.CreateResource(ctx, r))
	assert.Equal(t, "Grand Piano", r.Name)
	assert.Zero(t, r.HourlyRate, "only rooms carry an hourly rate")
	repo.AssertExpectations(t)
}

func TestCreateResourceValidation(t *testing.T) {
	ctx := context.Background()
	svc, repo := newResourceService()

	err := svc.CreateResource(ctx, &models.Resource{Kind: "boat", Name: ""})
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "kind")
	assert.Contains(t, verr.Fields, "name")
	repo.AssertNotCalled(t, "CreateResource", mock.Anything, mock.Anything)
}

func TestUpdateResourceKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	svc, repo := newResourceService()

	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.On("GetResource", ctx, int64(2)).Return(&models.Resource{ID: 2, CreatedAt: created}, nil)
	repo.On("UpdateResource", ctx, mock.AnythingOfType("*models.Resource")).Return(nil)

	r := &models.Resource{ID: 2, Kind: models.KindRoom, Name: "Hall", HourlyRate: 1500}
	require.NoError(t, svc.UpdateResource(ctx, r))
	assert.Equal(t, created, r.CreatedAt)
	assert.Equal(t, int64(1500), r.HourlyRate)

	repo.On("GetResource", ctx, int64(3)).Return(nil, database.ErrNotFound)
	assert.ErrorIs(t, svc.UpdateResource(ctx, &models.Resource{ID: 3}), database.ErrNotFound)
}

func TestListResourcesKind(t *testing.T) {
	ctx := context.Background()
	svc, repo := newResourceService()

	_, err := svc.ListResources(ctx, "boat", false)
	assert.ErrorIs(t, err, ErrValidation)

	repo.On("ListResources", ctx, models.KindChoirMember, true).Return([]models.Resource{{ID: 4}}, nil)
	list, err := svc.ListResources(ctx, models.KindChoirMember, true)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestReorderResource(t *testing.T) {
	ctx := context.Background()
	svc, repo := newResourceService()

	assert.ErrorIs(t, svc.ReorderResource(ctx, 1, -1), ErrValidation)

	repo.On("ReorderResource", ctx, int64(1), int64(5)).Return(nil)
	repo.On("DeactivateResource", ctx, int64(1)).Return(nil)
	assert.NoError(t, svc.ReorderResource(ctx, 1, 5))
	assert.NoError(t, svc.DeactivateResource(ctx, 1))
	repo.AssertExpectations(t)
}
