package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gpuhunt/listing-engine/internal/domain"
	"github.com/gpuhunt/listing-engine/internal/logger"
)

const runCacheKey = "listing-engine:revalidation:last_run"

// RunCache is the short-TTL result cache fronting the revalidation
// trigger. Repeated triggers inside the TTL window get the previous
// run's summary instead of starting a new run. This is a throttle,
// not a mutual-exclusion lock: two runs that do slip past it
// concurrently are safe, because the cache writer's per-model
// transaction and conflict retry carry correctness.
type RunCache struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

// NewRunCache creates a run cache. A nil client disables throttling
// (every trigger starts a fresh run).
func NewRunCache(client *redis.Client, ttl time.Duration, log logger.Logger) *RunCache {
	return &RunCache{client: client, ttl: ttl, logger: log}
}

// Get returns the cached run summary, if any. Cache failures degrade
// to a miss; the trigger must keep working without redis.
func (c *RunCache) Get(ctx context.Context) (*domain.RevalidationRun, bool) {
	if c.client == nil {
		return nil, false
	}

	payload, err := c.client.Get(ctx, runCacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("run cache read failed", logger.Error(err))
		}
		return nil, false
	}

	var run domain.RevalidationRun
	if err := json.Unmarshal(payload, &run); err != nil {
		c.logger.Warn("run cache payload corrupt", logger.Error(err))
		return nil, false
	}
	return &run, true
}

// Set stores a run summary for the throttle window. Best effort.
func (c *RunCache) Set(ctx context.Context, run domain.RevalidationRun) {
	if c.client == nil || c.ttl <= 0 {
		return
	}

	payload, err := json.Marshal(run)
	if err != nil {
		c.logger.Warn("run cache marshal failed", logger.Error(err))
		return
	}
	if err := c.client.Set(ctx, runCacheKey, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("run cache write failed", logger.Error(err))
	}
}
