package service

import (
	"context"
	"encoding/json"
	"testing"

	"retreat/internal/database"
	"retreat/internal/events"
	"retreat/internal/models"
	"retreat/internal/worker"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newFormService() (*FormService, *mockForms, *mockPublisher, *mockWorker) {
	logger := zerolog.Nop()
	repo := new(mockForms)
	bus := new(mockPublisher)
	w := new(mockWorker)
	return NewFormService(repo, bus, w, &logger), repo, bus, w
}

func damageReport() *models.DamageReport {
	return &models.DamageReport{
		ReporterName:  "Oleg",
		Email:         "Oleg@Example.com ",
		AssetName:     "Canoe #3",
		Location:      "Lake dock",
		DamageDate:    "2026-05-30",
		Description:   "Cracked hull",
		Severity:      "high",
		EstimatedCost: 25000,
	}
}

func TestSubmitDamageReport(t *testing.T) {
	ctx := context.Background()
	svc, repo, bus, w := newFormService()

	repo.On("CreateFormSubmission", ctx, mock.AnythingOfType("*models.FormSubmission")).Return(nil)
	bus.On("PublishJSON", events.EventFormSubmitted, mock.AnythingOfType("events.FormEventPayload")).Return(nil)
	w.On("EnqueueTask", ctx, worker.TaskAppendForm, int64(0), mock.AnythingOfType("*models.FormSubmission")).Return(nil)

	sub, replayed, err := svc.SubmitDamageReport(ctx, damageReport(), "form-key")
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, models.FormDamageReport, sub.Kind)
	assert.Equal(t, "oleg@example.com", sub.Email)
	assert.NotEmpty(t, sub.Reference)
	require.NotNil(t, sub.IdempotencyKey)
	assert.Equal(t, "form-key", *sub.IdempotencyKey)

	var stored models.DamageReport
	require.NoError(t, json.Unmarshal([]byte(sub.Payload), &stored))
	assert.Equal(t, "Canoe #3", stored.AssetName)

	payload := bus.Calls[0].Arguments.Get(1).(events.FormEventPayload)
	assert.Equal(t, sub.Reference, payload.Reference)
	assert.Contains(t, payload.Summary, "Canoe #3")

	repo.AssertExpectations(t)
	w.AssertExpectations(t)
}

func TestSubmitDamageReportValidation(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, _ := newFormService()

	r := damageReport()
	r.Severity = "catastrophic"
	r.PhotoURLs = []string{"not a url"}

	_, _, err := svc.SubmitDamageReport(ctx, r, "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "severity")
	assert.Contains(t, verr.Fields, "photo_urls[0]")
	repo.AssertNotCalled(t, "CreateFormSubmission", mock.Anything, mock.Anything)
}

func TestSubmitLandAllocation(t *testing.T) {
	ctx := context.Background()

	app := func() *models.LandAllocation {
		return &models.LandAllocation{
			ApplicantName: "Youth group",
			Email:         "youth@example.com",
			Phone:         "+1 555 0100",
			Purpose:       "Summer tents",
			PlotSize:      1.5,
			StartDate:     "2026-07-01",
			EndDate:       "2026-07-10",
			Attendees:     40,
		}
	}

	t.Run("ok without key", func(t *testing.T) {
		svc, repo, bus, w := newFormService()
		repo.On("CreateFormSubmission", ctx, mock.Anything).Return(nil)
		bus.On("PublishJSON", events.EventFormSubmitted, mock.Anything).Return(nil)
		w.On("EnqueueTask", ctx, worker.TaskAppendForm, int64(0), mock.Anything).Return(nil)

		sub, _, err := svc.SubmitLandAllocation(ctx, app(), "")
		require.NoError(t, err)
		assert.Nil(t, sub.IdempotencyKey)
		assert.Equal(t, models.FormLandAllocation, sub.Kind)
	})

	t.Run("end before start", func(t *testing.T) {
		svc, _, _, _ := newFormService()
		a := app()
		a.EndDate = "2026-06-30"
		_, _, err := svc.SubmitLandAllocation(ctx, a, "")
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "end_date")
	})

	t.Run("zero plot", func(t *testing.T) {
		svc, _, _, _ := newFormService()
		a := app()
		a.PlotSize = 0
		_, _, err := svc.SubmitLandAllocation(ctx, a, "")
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestSubmitFormReplay(t *testing.T) {
	ctx := context.Background()
	svc, repo, bus, w := newFormService()

	repo.On("CreateFormSubmission", ctx, mock.Anything).
		Run(func(args mock.Arguments) {
			f := args.Get(1).(*models.FormSubmission)
			f.ID = 11
			f.Reference = "stored-ref"
		}).Return(database.ErrDuplicateSubmission)

	sub, replayed, err := svc.SubmitDamageReport(ctx, damageReport(), "form-key")
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, "stored-ref", sub.Reference)
	bus.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)
	w.AssertNotCalled(t, "EnqueueTask", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestListSubmissions(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, _ := newFormService()

	repo.On("ListFormSubmissions", ctx, models.FormDamageReport, 100).Return(nil, nil)

	list, err := svc.ListSubmissions(ctx, models.FormDamageReport, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NotNil(t, list)

	_, err = svc.ListSubmissions(ctx, "donation", 10)
	assert.ErrorIs(t, err, ErrValidation)
	repo.AssertNumberOfCalls(t, "ListFormSubmissions", 1)
}
