package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpuhunt/listing-engine/internal/domain"
	"github.com/gpuhunt/listing-engine/internal/logger"
)

type stubRevalidator struct {
	run   domain.RevalidationRun
	err   error
	calls int
}

func (s *stubRevalidator) Run(_ context.Context, timeout time.Duration) (domain.RevalidationRun, error) {
	s.calls++
	run := s.run
	run.TimeoutMs = timeout.Milliseconds()
	return run, s.err
}

type stubSweeper struct {
	run domain.CleanupRun
	err error
}

func (s *stubSweeper) Run(_ context.Context) (domain.CleanupRun, error) {
	return s.run, s.err
}

type stubTracker struct {
	stale []domain.ModelStaleness
	err   error
}

func (s *stubTracker) ListStale(_ context.Context) ([]domain.ModelStaleness, error) {
	return s.stale, s.err
}

func newTestRunCache(t *testing.T, ttl time.Duration) *RunCache {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRunCache(client, ttl, logger.NewNopLogger())
}

func newTestRouter(reval *stubRevalidator, sweeper *stubSweeper, tracker *stubTracker, cache *RunCache) http.Handler {
	r := NewRouter(Config{
		Revalidator:    reval,
		Sweeper:        sweeper,
		Tracker:        tracker,
		RunCache:       cache,
		Gatherer:       prometheus.NewRegistry(),
		Logger:         logger.NewNopLogger(),
		DefaultTimeout: 30 * time.Second,
	})
	return r.Engine(false)
}

func TestTriggerRevalidationReturnsSummary(t *testing.T) {
	reval := &stubRevalidator{run: domain.RevalidationRun{
		RunID:           "run-1",
		ModelsProcessed: 3,
		UpdateCount:     12,
	}}
	handler := newTestRouter(reval, &stubSweeper{}, &stubTracker{}, newTestRunCache(t, 30*time.Second))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/revalidate", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.RevalidationRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 3, got.ModelsProcessed)
	assert.False(t, got.Throttled)
	assert.Equal(t, int64(30000), got.TimeoutMs, "default budget applies without a body")
}

func TestTriggerRevalidationHonorsRequestedTimeout(t *testing.T) {
	reval := &stubRevalidator{run: domain.RevalidationRun{RunID: "run-1"}}
	handler := newTestRouter(reval, &stubSweeper{}, &stubTracker{}, newTestRunCache(t, 30*time.Second))

	body := bytes.NewBufferString(`{"timeout_ms": 5000}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/revalidate", body))

	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.RevalidationRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(5000), got.TimeoutMs)
}

func TestTriggerRevalidationThrottlesRepeatTriggers(t *testing.T) {
	reval := &stubRevalidator{run: domain.RevalidationRun{RunID: "run-1"}}
	handler := newTestRouter(reval, &stubSweeper{}, &stubTracker{}, newTestRunCache(t, 30*time.Second))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/v1/revalidate", nil))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/api/v1/revalidate", nil))
	require.Equal(t, http.StatusOK, second.Code)

	var got domain.RevalidationRun
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.True(t, got.Throttled)
	assert.Equal(t, 1, reval.calls, "throttled trigger must not start a new run")
}

func TestTriggerRevalidationWithoutRedisRunsEveryTime(t *testing.T) {
	reval := &stubRevalidator{run: domain.RevalidationRun{RunID: "run-1"}}
	cache := NewRunCache(nil, 30*time.Second, logger.NewNopLogger())
	handler := newTestRouter(reval, &stubSweeper{}, &stubTracker{}, cache)

	for range 3 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/revalidate", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, 3, reval.calls)
}

func TestTriggerRevalidationFatalFailure(t *testing.T) {
	reval := &stubRevalidator{
		run: domain.RevalidationRun{RunID: "run-1"},
		err: errors.New("list stale models: connection refused"),
	}
	handler := newTestRouter(reval, &stubSweeper{}, &stubTracker{}, newTestRunCache(t, 30*time.Second))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/revalidate", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "failed to establish stale model list")
}

func TestTriggerRevalidationPartialFailureIsStillOK(t *testing.T) {
	reval := &stubRevalidator{run: domain.RevalidationRun{
		RunID:           "run-1",
		ModelsProcessed: 2,
		Failures: []domain.ModelFailure{
			{Name: "rtx-4090", Error: "marketplace 503"},
		},
	}}
	handler := newTestRouter(reval, &stubSweeper{}, &stubTracker{}, newTestRunCache(t, 30*time.Second))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/revalidate", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.RevalidationRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Failures, 1)
	assert.Equal(t, "rtx-4090", got.Failures[0].Name)
}

func TestTriggerCleanup(t *testing.T) {
	sweeper := &stubSweeper{run: domain.CleanupRun{
		RunID:         "sweep-1",
		ArchivedCount: 4,
	}}
	handler := newTestRouter(&stubRevalidator{}, sweeper, &stubTracker{}, newTestRunCache(t, 0))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cleanup", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.CleanupRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "sweep-1", got.RunID)
	assert.Equal(t, 4, got.ArchivedCount)
}

func TestTriggerCleanupFatalFailure(t *testing.T) {
	sweeper := &stubSweeper{err: errors.New("connection refused")}
	handler := newTestRouter(&stubRevalidator{}, sweeper, &stubTracker{}, newTestRunCache(t, 0))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cleanup", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListStaleBacklog(t *testing.T) {
	oldest := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	tracker := &stubTracker{stale: []domain.ModelStaleness{
		{Model: domain.Model{Name: "rx-7900-xtx"}},
		{Model: domain.Model{Name: "rtx-4090"}, OldestCachedAt: &oldest},
	}}
	handler := newTestRouter(&stubRevalidator{}, &stubSweeper{}, tracker, newTestRunCache(t, 0))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stale", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Models []struct {
			Name           string     `json:"name"`
			OldestCachedAt *time.Time `json:"oldest_cached_at"`
			NeverCached    bool       `json:"never_cached"`
		} `json:"models"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, 2, got.Count)
	assert.Equal(t, "rx-7900-xtx", got.Models[0].Name)
	assert.True(t, got.Models[0].NeverCached)
	assert.False(t, got.Models[1].NeverCached)
}

func TestHealthEndpoint(t *testing.T) {
	r := NewRouter(Config{
		Revalidator: &stubRevalidator{},
		Sweeper:     &stubSweeper{},
		Tracker:     &stubTracker{},
		RunCache:    NewRunCache(nil, 0, logger.NewNopLogger()),
		Gatherer:    prometheus.NewRegistry(),
		Logger:      logger.NewNopLogger(),
		DBPing:      func(context.Context) error { return nil },
		RedisPing:   func(context.Context) error { return errors.New("redis down") },
	})

	rec := httptest.NewRecorder()
	r.Engine(false).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	// A redis outage degrades the throttle but never the service.
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestHealthEndpointDatabaseDown(t *testing.T) {
	r := NewRouter(Config{
		Revalidator: &stubRevalidator{},
		Sweeper:     &stubSweeper{},
		Tracker:     &stubTracker{},
		RunCache:    NewRunCache(nil, 0, logger.NewNopLogger()),
		Gatherer:    prometheus.NewRegistry(),
		Logger:      logger.NewNopLogger(),
		DBPing:      func(context.Context) error { return errors.New("connection refused") },
	})

	rec := httptest.NewRecorder()
	r.Engine(false).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	handler := newTestRouter(&stubRevalidator{}, &stubSweeper{}, &stubTracker{}, newTestRunCache(t, 0))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
