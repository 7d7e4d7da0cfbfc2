package repository

import (
	"context"
	"testing"
	"time"

	"retreat/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisIdempotencyStore(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	defer client.Close()

	repo := NewRedisIdempotencyStore(client)
	ctx := context.Background()

	t.Run("BeginCompleteReplay", func(t *testing.T) {
		got, err := repo.Begin(ctx, "k1", time.Hour)
		require.NoError(t, err)
		assert.Nil(t, got, "first caller owns the key")

		_, err = repo.Begin(ctx, "k1", time.Hour)
		assert.ErrorIs(t, err, ErrInFlight)

		resp := &models.StoredResponse{Status: 201, ContentType: "application/json", Body: []byte(`{"id":1}`)}
		require.NoError(t, repo.Complete(ctx, "k1", resp, time.Hour))

		got, err = repo.Begin(ctx, "k1", time.Hour)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 201, got.Status)
		assert.JSONEq(t, `{"id":1}`, string(got.Body))
	})

	t.Run("ReleaseAllowsRetry", func(t *testing.T) {
		_, err := repo.Begin(ctx, "k2", time.Hour)
		require.NoError(t, err)
		require.NoError(t, repo.Release(ctx, "k2"))

		got, err := repo.Begin(ctx, "k2", time.Hour)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Expiry", func(t *testing.T) {
		require.NoError(t, repo.Complete(ctx, "k3", &models.StoredResponse{Status: 200}, time.Minute))
		s.FastForward(time.Minute + time.Second)

		got, err := repo.Begin(ctx, "k3", time.Minute)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("RateLimit", func(t *testing.T) {
		key := "form:10.0.0.1"
		limit := 2
		window := time.Second

		allowed, err := repo.CheckRateLimit(ctx, key, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, key, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, key, limit, window)
		require.NoError(t, err)
		assert.False(t, allowed)

		s.FastForward(window + time.Millisecond)

		allowed, err = repo.CheckRateLimit(ctx, key, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("NilClient", func(t *testing.T) {
		repo := NewRedisIdempotencyStore(nil)
		_, err := repo.Begin(ctx, "x", time.Hour)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "redis client is nil")
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, client))
	})

	t.Run("ServerDown", func(t *testing.T) {
		s.Close()
		_, err := repo.Begin(ctx, "k4", time.Hour)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrInFlight)
	})
}
