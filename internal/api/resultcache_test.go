package api

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpuhunt/listing-engine/internal/domain"
	"github.com/gpuhunt/listing-engine/internal/logger"
)

func TestRunCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cache := NewRunCache(client, 30*time.Second, logger.NewNopLogger())
	ctx := context.Background()

	_, ok := cache.Get(ctx)
	assert.False(t, ok, "empty cache is a miss")

	cache.Set(ctx, domain.RevalidationRun{RunID: "run-1", UpdateCount: 7})

	got, ok := cache.Get(ctx)
	require.True(t, ok)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 7, got.UpdateCount)
}

func TestRunCacheExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cache := NewRunCache(client, 30*time.Second, logger.NewNopLogger())
	ctx := context.Background()

	cache.Set(ctx, domain.RevalidationRun{RunID: "run-1"})
	mr.FastForward(31 * time.Second)

	_, ok := cache.Get(ctx)
	assert.False(t, ok, "entry past the throttle window is a miss")
}

func TestRunCacheCorruptPayloadIsAMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	require.NoError(t, mr.Set(runCacheKey, "not json"))

	cache := NewRunCache(client, 30*time.Second, logger.NewNopLogger())

	_, ok := cache.Get(context.Background())
	assert.False(t, ok)
}

func TestRunCacheNilClientDisablesThrottle(t *testing.T) {
	cache := NewRunCache(nil, 30*time.Second, logger.NewNopLogger())
	ctx := context.Background()

	cache.Set(ctx, domain.RevalidationRun{RunID: "run-1"})

	_, ok := cache.Get(ctx)
	assert.False(t, ok)
}
