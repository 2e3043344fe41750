package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gpuhunt/listing-engine/internal/logger"
)

const healthCheckTimeout = 2 * time.Second

// revalidateRequest is the optional trigger body.
type revalidateRequest struct {
	TimeoutMs int64 `json:"timeout_ms"`
}

// triggerRevalidation handles POST /api/v1/revalidate.
//
// The endpoint always answers a structured summary for partial
// failures; only a failure to establish the work order yields an error
// status. A trigger inside the throttle window returns the previous
// run's summary instead of starting a new one.
func (r *Router) triggerRevalidation(c *gin.Context) {
	if cached, ok := r.runCache.Get(c.Request.Context()); ok {
		cached.Throttled = true
		c.JSON(http.StatusOK, cached)
		return
	}

	timeout := r.defaultTimeout
	var req revalidateRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}

	run, err := r.revalidator.Run(c.Request.Context(), timeout)
	if err != nil {
		r.logger.Error("revalidation run could not start", logger.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":  "failed to establish stale model list",
			"run_id": run.RunID,
		})
		return
	}

	r.runCache.Set(c.Request.Context(), run)
	c.JSON(http.StatusOK, run)
}

// triggerCleanup handles POST /api/v1/cleanup.
func (r *Router) triggerCleanup(c *gin.Context) {
	run, err := r.sweeper.Run(c.Request.Context())
	if err != nil {
		r.logger.Error("cleanup sweep could not start", logger.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":  "failed to list models",
			"run_id": run.RunID,
		})
		return
	}

	c.JSON(http.StatusOK, run)
}

// listStale handles GET /api/v1/stale: the current backlog in priority
// order.
func (r *Router) listStale(c *gin.Context) {
	stale, err := r.tracker.ListStale(c.Request.Context())
	if err != nil {
		r.logger.Error("failed to list stale models", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list stale models"})
		return
	}

	type entry struct {
		Name           string     `json:"name"`
		OldestCachedAt *time.Time `json:"oldest_cached_at"`
		NeverCached    bool       `json:"never_cached"`
	}
	out := make([]entry, 0, len(stale))
	for _, s := range stale {
		out = append(out, entry{
			Name:           s.Model.Name,
			OldestCachedAt: s.OldestCachedAt,
			NeverCached:    s.NeverCached(),
		})
	}

	c.JSON(http.StatusOK, gin.H{"models": out, "count": len(out)})
}

// health handles GET /healthz.
func (r *Router) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}

	if r.dbPing != nil {
		if err := r.dbPing(ctx); err != nil {
			checks["database"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}
	if r.redisPing != nil {
		if err := r.redisPing(ctx); err != nil {
			// The throttle cache is optional; a redis outage degrades
			// but does not fail the service.
			checks["redis"] = err.Error()
		} else {
			checks["redis"] = "ok"
		}
	}

	c.JSON(status, gin.H{"status": httpStatusText(status), "checks": checks})
}

func httpStatusText(status int) string {
	if status == http.StatusOK {
		return "healthy"
	}
	return "degraded"
}
