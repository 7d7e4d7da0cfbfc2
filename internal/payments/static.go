package payments

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"retreat/internal/models"

	"github.com/google/uuid"
)

// StaticProvider keeps intents in memory. It is used in development and
// tests where no card network is reachable.
type StaticProvider struct {
	mu          sync.Mutex
	intents     map[string]*models.PaymentIntent
	byKey       map[string]string
	autoSucceed bool
}

// NewStaticProvider returns a provider whose intents report succeeded on
// lookup when autoSucceed is set, and stay pending until Settle otherwise.
func NewStaticProvider(autoSucceed bool) *StaticProvider {
	return &StaticProvider{
		intents:     make(map[string]*models.PaymentIntent),
		byKey:       make(map[string]string),
		autoSucceed: autoSucceed,
	}
}

func (p *StaticProvider) CreateIntent(_ context.Context, amount int64, currency, _ string, idempotencyKey string, _ map[string]string) (*models.PaymentIntent, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrProvider)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if idempotencyKey != "" {
		if id, ok := p.byKey[idempotencyKey]; ok {
			cp := *p.intents[id]
			return &cp, nil
		}
	}

	id := "pi_static_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	intent := &models.PaymentIntent{
		ID:           id,
		ClientSecret: id + "_secret_" + uuid.NewString()[:8],
		Amount:       amount,
		Currency:     strings.ToLower(currency),
		Status:       StatusPending,
	}
	p.intents[id] = intent
	if idempotencyKey != "" {
		p.byKey[idempotencyKey] = id
	}

	cp := *intent
	return &cp, nil
}

func (p *StaticProvider) GetIntent(_ context.Context, id string) (*models.PaymentIntent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	intent, ok := p.intents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIntentNotFound, id)
	}
	if p.autoSucceed && intent.Status == StatusPending {
		intent.Status = StatusSucceeded
	}
	cp := *intent
	return &cp, nil
}

// Settle forces an intent into a final status.
func (p *StaticProvider) Settle(id, status string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	intent, ok := p.intents[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrIntentNotFound, id)
	}
	intent.Status = status
	return nil
}
