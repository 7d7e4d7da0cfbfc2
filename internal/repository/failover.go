package repository

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"retreat/internal/domain"
	"retreat/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverIdempotencyStore uses primary (Redis) until it errors, then serves
// from fallback (memory) and probes primary again after recoveryInterval.
type FailoverIdempotencyStore struct {
	primary   domain.IdempotencyStore
	fallback  domain.IdempotencyStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverIdempotencyStore(primary, fallback domain.IdempotencyStore, logger *zerolog.Logger) *FailoverIdempotencyStore {
	return &FailoverIdempotencyStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// usePrimary reports whether the next call should go to primary.
func (r *FailoverIdempotencyStore) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	last := time.Unix(0, r.lastCheck.Load())
	return time.Since(last) > recoveryInterval
}

// observe records the primary call outcome and tells whether to fall back.
func (r *FailoverIdempotencyStore) observe(err error) bool {
	if err == nil || errors.Is(err, ErrInFlight) {
		if r.isDown.CompareAndSwap(true, false) {
			r.logger.Info().Msg("Primary idempotency store recovered")
		}
		return false
	}
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary idempotency store failed, falling back to memory")
	}
	r.lastCheck.Store(time.Now().UnixNano())
	return true
}

func (r *FailoverIdempotencyStore) Begin(ctx context.Context, key string, ttl time.Duration) (*models.StoredResponse, error) {
	if r.usePrimary() {
		resp, err := r.primary.Begin(ctx, key, ttl)
		if !r.observe(err) {
			return resp, err
		}
	}
	return r.fallback.Begin(ctx, key, ttl)
}

func (r *FailoverIdempotencyStore) Complete(ctx context.Context, key string, resp *models.StoredResponse, ttl time.Duration) error {
	if r.usePrimary() {
		err := r.primary.Complete(ctx, key, resp, ttl)
		if !r.observe(err) {
			return nil
		}
	}
	return r.fallback.Complete(ctx, key, resp, ttl)
}

func (r *FailoverIdempotencyStore) Release(ctx context.Context, key string) error {
	if r.usePrimary() {
		err := r.primary.Release(ctx, key)
		if !r.observe(err) {
			return nil
		}
	}
	return r.fallback.Release(ctx, key)
}

func (r *FailoverIdempotencyStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if !r.observe(err) {
			return allowed, nil
		}
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
