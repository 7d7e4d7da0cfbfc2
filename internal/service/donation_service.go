package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"retreat/internal/database"
	"retreat/internal/domain"
	"retreat/internal/events"
	"retreat/internal/metrics"
	"retreat/internal/models"
	"retreat/internal/payments"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrPaymentNotCompleted is returned by ConfirmDonation while the provider
// has not settled the intent, or after it failed.
var ErrPaymentNotCompleted = errors.New("payment is not completed")

type DonationService struct {
	repo     domain.DonationRepository
	provider domain.PaymentProvider
	eventBus domain.EventPublisher
	currency string
	logger   *zerolog.Logger
}

func NewDonationService(repo domain.DonationRepository, provider domain.PaymentProvider, eventBus domain.EventPublisher, currency string, logger *zerolog.Logger) *DonationService {
	if currency == "" {
		currency = "usd"
	}
	return &DonationService{
		repo:     repo,
		provider: provider,
		eventBus: eventBus,
		currency: strings.ToLower(currency),
		logger:   logger,
	}
}

// CreateDonation opens a payment intent and stores a pending donation row.
// The idempotency key is forwarded to the provider so a retried request
// gets the same intent back.
func (s *DonationService) CreateDonation(ctx context.Context, req *models.DonationRequest, idempotencyKey string) (*models.PaymentIntent, error) {
	req.Email = normalizeEmail(req.Email)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = s.currency
	}
	donor := strings.TrimSpace(req.DonorName)
	if req.Anonymous {
		donor = ""
	}
	reference := uuid.NewString()

	metadata := map[string]string{
		"reference": reference,
		"fund":      req.Fund,
		"recurring": strconv.FormatBool(req.Recurring),
	}
	description := "Donation"
	if req.Fund != "" {
		description = "Donation: " + req.Fund
	}

	intent, err := s.provider.CreateIntent(ctx, req.Amount, currency, description, providerKey(idempotencyKey, req, currency), metadata)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	d := &models.Donation{
		Reference:       reference,
		DonorName:       donor,
		Email:           req.Email,
		Amount:          req.Amount,
		Currency:        currency,
		Fund:            req.Fund,
		Recurring:       req.Recurring,
		Anonymous:       req.Anonymous,
		Message:         req.Message,
		PaymentIntentID: intent.ID,
		Status:          models.DonationPending,
	}
	if err := s.repo.CreateDonation(ctx, d); err != nil {
		// повтор с тем же ключом: провайдер вернул уже сохранённый intent
		if !errors.Is(err, database.ErrAlreadyExists) {
			return nil, err
		}
		return intent, nil
	}

	metrics.IncForm(models.FormDonation)
	s.logger.Info().
		Str("reference", reference).
		Str("intent", intent.ID).
		Int64("amount", req.Amount).
		Str("currency", currency).
		Msg("Donation started")
	return intent, nil
}

// providerKey binds the client's Idempotency-Key to the donation it was sent
// with, so a key reused for another donor opens a new intent.
func providerKey(idempotencyKey string, req *models.DonationRequest, currency string) string {
	if idempotencyKey == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{
		idempotencyKey,
		req.Email,
		strconv.FormatInt(req.Amount, 10),
		currency,
		req.Fund,
		strconv.FormatBool(req.Recurring),
	}, "\x00")))
	return hex.EncodeToString(sum[:])
}

// ConfirmDonation asks the provider for the intent state and records it.
// Only the first transition to succeeded publishes donation_confirmed.
func (s *DonationService) ConfirmDonation(ctx context.Context, intentID string) (*models.Donation, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, fieldError("paymentIntentId", "This field is required")
	}

	d, err := s.repo.GetDonationByIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}

	intent, err := s.provider.GetIntent(ctx, intentID)
	if err != nil {
		if errors.Is(err, payments.ErrIntentNotFound) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("get payment intent: %w", err)
	}

	switch intent.Status {
	case payments.StatusSucceeded:
		if d.Status == models.DonationSucceeded {
			return d, nil
		}
		if err := s.repo.UpdateDonationStatus(ctx, intentID, models.DonationSucceeded); err != nil {
			return nil, err
		}
		d.Status = models.DonationSucceeded
		s.logger.Info().Str("reference", d.Reference).Str("intent", intentID).Msg("Donation confirmed")
		s.publishConfirmed(d)
		return d, nil
	case payments.StatusFailed:
		if d.Status != models.DonationFailed {
			if err := s.repo.UpdateDonationStatus(ctx, intentID, models.DonationFailed); err != nil {
				return nil, err
			}
			d.Status = models.DonationFailed
		}
		return d, fmt.Errorf("%w: intent %s failed", ErrPaymentNotCompleted, intentID)
	default:
		return d, fmt.Errorf("%w: intent %s is %s", ErrPaymentNotCompleted, intentID, intent.Status)
	}
}

func (s *DonationService) publishConfirmed(d *models.Donation) {
	if s.eventBus == nil {
		return
	}
	donor := d.DonorName
	if d.Anonymous || donor == "" {
		donor = "Anonymous"
	}
	err := s.eventBus.PublishJSON(events.EventDonationConfirmed, events.DonationEventPayload{
		Reference:       d.Reference,
		PaymentIntentID: d.PaymentIntentID,
		DonorName:       donor,
		Amount:          d.Amount,
		Currency:        d.Currency,
		Fund:            d.Fund,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("reference", d.Reference).Msg("publish event error")
	}
}
