package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"retreat/internal/config"
	"retreat/internal/models"

	"github.com/redis/go-redis/v9"
)

type RedisIdempotencyStore struct {
	client *redis.Client
	prefix string
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, prefix: "idem:"}
}

func (r *RedisIdempotencyStore) key(k string) string {
	return r.prefix + k
}

func (r *RedisIdempotencyStore) Begin(ctx context.Context, key string, ttl time.Duration) (*models.StoredResponse, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	marker, _ := json.Marshal(models.StoredResponse{Pending: true})
	acquired, err := r.client.SetNX(ctx, r.key(key), marker, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if acquired {
		return nil, nil
	}

	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		// Ключ истёк между SETNX и GET, пробуем ещё раз
		return r.Begin(ctx, key, ttl)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read idempotency key: %w", err)
	}

	var stored models.StoredResponse
	if err := json.Unmarshal(val, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored response: %w", err)
	}
	if stored.Pending {
		return nil, ErrInFlight
	}
	return &stored, nil
}

func (r *RedisIdempotencyStore) Complete(ctx context.Context, key string, resp *models.StoredResponse, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	if err := r.client.Set(ctx, r.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store response in redis: %w", err)
	}
	return nil
}

func (r *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete idempotency key: %w", err)
	}
	return nil
}

func (r *RedisIdempotencyStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	rk := "rate_limit:" + key
	count, err := r.client.Incr(ctx, rk).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, rk, window)
	}

	return count <= int64(limit), nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
