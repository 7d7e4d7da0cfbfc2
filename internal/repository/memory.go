package repository

import (
	"context"
	"sync"
	"time"

	"retreat/internal/models"
)

type memoryEntry struct {
	resp      models.StoredResponse
	expiresAt time.Time
}

type MemoryIdempotencyStore struct {
	mu         sync.Mutex
	entries    map[string]*memoryEntry
	rateLimits sync.Map
	now        func() time.Time
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

func (r *MemoryIdempotencyStore) Begin(_ context.Context, key string, ttl time.Duration) (*models.StoredResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if e, ok := r.entries[key]; ok && now.Before(e.expiresAt) {
		if e.resp.Pending {
			return nil, ErrInFlight
		}
		stored := e.resp
		return &stored, nil
	}

	r.entries[key] = &memoryEntry{resp: models.StoredResponse{Pending: true}, expiresAt: now.Add(ttl)}
	return nil, nil
}

func (r *MemoryIdempotencyStore) Complete(_ context.Context, key string, resp *models.StoredResponse, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = &memoryEntry{resp: *resp, expiresAt: r.now().Add(ttl)}
	r.sweepLocked()
	return nil
}

func (r *MemoryIdempotencyStore) Release(_ context.Context, key string) error {
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
	return nil
}

// sweepLocked drops expired entries; caller holds mu.
func (r *MemoryIdempotencyStore) sweepLocked() {
	now := r.now()
	for k, e := range r.entries {
		if !now.Before(e.expiresAt) {
			delete(r.entries, k)
		}
	}
}

type rateLimitEntry struct {
	mu        sync.Mutex
	count     int
	expiresAt time.Time
}

func (r *MemoryIdempotencyStore) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := r.now()
	val, _ := r.rateLimits.LoadOrStore(key, &rateLimitEntry{})
	entry := val.(*rateLimitEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if now.After(entry.expiresAt) {
		entry.count = 0
		entry.expiresAt = now.Add(window)
	}
	entry.count++
	return entry.count <= limit, nil
}
