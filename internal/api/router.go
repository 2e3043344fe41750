// Package api exposes the operator HTTP surface: revalidation and
// cleanup triggers, backlog visibility, health, and metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gpuhunt/listing-engine/internal/domain"
	"github.com/gpuhunt/listing-engine/internal/engine"
	"github.com/gpuhunt/listing-engine/internal/logger"
)

// RevalidationRunner starts one bounded revalidation run.
type RevalidationRunner interface {
	Run(ctx context.Context, timeout time.Duration) (domain.RevalidationRun, error)
}

// CleanupRunner starts one cleanup sweep.
type CleanupRunner interface {
	Run(ctx context.Context) (domain.CleanupRun, error)
}

// Router holds the API dependencies.
type Router struct {
	revalidator RevalidationRunner
	sweeper     CleanupRunner
	tracker     engine.StalenessTracker
	runCache    *RunCache
	gatherer    prometheus.Gatherer
	logger      logger.Logger

	defaultTimeout time.Duration
	dbPing         func(ctx context.Context) error
	redisPing      func(ctx context.Context) error
}

// Config wires the router's collaborators.
type Config struct {
	Revalidator    RevalidationRunner
	Sweeper        CleanupRunner
	Tracker        engine.StalenessTracker
	RunCache       *RunCache
	Gatherer       prometheus.Gatherer
	Logger         logger.Logger
	DefaultTimeout time.Duration
	DBPing         func(ctx context.Context) error
	RedisPing      func(ctx context.Context) error
}

// NewRouter creates a new API router.
func NewRouter(cfg Config) *Router {
	return &Router{
		revalidator:    cfg.Revalidator,
		sweeper:        cfg.Sweeper,
		tracker:        cfg.Tracker,
		runCache:       cfg.RunCache,
		gatherer:       cfg.Gatherer,
		logger:         cfg.Logger,
		defaultTimeout: cfg.DefaultTimeout,
		dbPing:         cfg.DBPing,
		redisPing:      cfg.RedisPing,
	}
}

// Engine builds the gin engine with all routes registered.
func (r *Router) Engine(debug bool) *gin.Engine {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", r.health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	v1.POST("/revalidate", r.triggerRevalidation)
	v1.POST("/cleanup", r.triggerCleanup)
	v1.GET("/stale", r.listStale)

	return router
}

// NewServer wraps the engine in an http.Server. The write timeout must
// cover a full revalidation budget, since the trigger responds only
// when the run completes.
func (r *Router) NewServer(addr string, readTimeout, writeTimeout time.Duration, debug bool) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      r.Engine(debug),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
}
