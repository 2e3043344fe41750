// Package app wires the listing engine's dependencies and manages the
// service lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/gpuhunt/listing-engine/internal/api"
	"github.com/gpuhunt/listing-engine/internal/config"
	"github.com/gpuhunt/listing-engine/internal/database"
	"github.com/gpuhunt/listing-engine/internal/domain"
	"github.com/gpuhunt/listing-engine/internal/engine"
	"github.com/gpuhunt/listing-engine/internal/fetcher"
	"github.com/gpuhunt/listing-engine/internal/jobs"
	"github.com/gpuhunt/listing-engine/internal/logger"
	"github.com/gpuhunt/listing-engine/internal/marketplace"
	"github.com/gpuhunt/listing-engine/internal/metrics"
	"github.com/gpuhunt/listing-engine/internal/redis"
)

const (
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 30 * time.Second
)

// App holds the engine's constructed dependencies.
type App struct {
	cfg         *config.Config
	logger      logger.Logger
	db          *sqlx.DB
	redisClient *goredis.Client
	registry    *prometheus.Registry
	revalidator *engine.Revalidator
	sweeper     *engine.Sweeper
	models      *database.ModelRepository
	listings    *database.ListingRepository
}

// New loads configuration and constructs every dependency, applying
// schema migrations on the way up.
func New(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	log = log.With(logger.String("service", "listing-engine"))

	db, err := database.NewPostgresConnection(database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxConnections:  cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	if migrateErr := database.Migrate(context.Background(), db); migrateErr != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", migrateErr)
	}

	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			// The throttle cache is optional; run without it rather
			// than refusing to start.
			log.Warn("redis unavailable, trigger throttle disabled", logger.Error(err))
			redisClient = nil
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	searchClient := marketplace.NewBrowseClient(marketplace.BrowseConfig{
		BaseURL:           cfg.Marketplace.BaseURL,
		AuthToken:         cfg.Marketplace.AuthToken,
		AffiliateCampaign: cfg.Marketplace.AffiliateCampaign,
		PageSize:          cfg.Marketplace.PageSize,
		RequestTimeout:    cfg.Marketplace.RequestTimeout,
		RequestsPerSec:    cfg.Marketplace.RequestsPerSec,
	}, log)

	models := database.NewModelRepository(db)
	listings := database.NewListingRepository(db, log)
	fetch := fetcher.New(searchClient, cfg.Revalidation.PerModelCap, log)

	return &App{
		cfg:         cfg,
		logger:      log,
		db:          db,
		redisClient: redisClient,
		registry:    registry,
		revalidator: engine.NewRevalidator(models, fetch, listings, m, log),
		sweeper:     engine.NewSweeper(models, listings, m, log),
		models:      models,
		listings:    listings,
	}, nil
}

// Logger returns the application logger.
func (a *App) Logger() logger.Logger { return a.logger }

// RunRevalidation executes one revalidation run with the given budget;
// zero uses the configured default.
func (a *App) RunRevalidation(ctx context.Context, timeout time.Duration) (domain.RevalidationRun, error) {
	if timeout <= 0 {
		timeout = a.cfg.Revalidation.DefaultTimeout
	}
	return a.revalidator.Run(ctx, timeout)
}

// RunCleanup executes one cleanup sweep.
func (a *App) RunCleanup(ctx context.Context) (domain.CleanupRun, error) {
	return a.sweeper.Run(ctx)
}

// Serve runs the operator HTTP server and the cron schedule until the
// process receives an interrupt.
func (a *App) Serve(ctx context.Context) error {
	runCache := api.NewRunCache(a.redisClient, a.cfg.Revalidation.ThrottleTTL, a.logger)

	router := api.NewRouter(api.Config{
		Revalidator:    a.revalidator,
		Sweeper:        a.sweeper,
		Tracker:        a.models,
		RunCache:       runCache,
		Gatherer:       a.registry,
		Logger:         a.logger,
		DefaultTimeout: a.cfg.Revalidation.DefaultTimeout,
		DBPing: func(ctx context.Context) error {
			return a.db.PingContext(ctx)
		},
		RedisPing: a.redisPing(),
	})

	server := router.NewServer(
		a.cfg.Server.Address,
		a.cfg.Server.ReadTimeout,
		a.cfg.Server.WriteTimeout,
		a.cfg.Debug,
	)

	runner := jobs.New(a.logger)
	if a.cfg.Cleanup.Enabled {
		if err := runner.AddCleanup(a.cfg.Cleanup.Schedule, a.sweeper); err != nil {
			return fmt.Errorf("schedule cleanup: %w", err)
		}
	}
	if a.cfg.Revalidation.Schedule != "" {
		if err := runner.AddRevalidation(a.cfg.Revalidation.Schedule, a.revalidator, a.cfg.Revalidation.DefaultTimeout); err != nil {
			return fmt.Errorf("schedule revalidation: %w", err)
		}
	}
	runner.Start()

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	a.logger.Info("listing engine started", logger.String("address", a.cfg.Server.Address))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	case sig := <-sigChan:
		a.logger.Info("shutdown signal received", logger.String("signal", sig.String()))
	case <-ctx.Done():
		a.logger.Info("context cancelled, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	if !waitJobs(shutdownCtx, runner.Stop()) {
		a.logger.Warn("scheduled jobs still running at shutdown deadline")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	a.logger.Info("listing engine stopped")
	return nil
}

// Close releases held connections.
func (a *App) Close() {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("close redis client", logger.Error(err))
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close database", logger.Error(err))
	}
	_ = a.logger.Sync()
}

// waitJobs blocks until in-flight scheduled jobs finish or the
// shutdown deadline expires, whichever comes first. A stuck sweep must
// not hold up process exit.
func waitJobs(ctx context.Context, jobs context.Context) bool {
	select {
	case <-jobs.Done():
		return true
	case <-ctx.Done():
		return false
	}
}

func (a *App) redisPing() func(ctx context.Context) error {
	if a.redisClient == nil {
		return nil
	}
	return func(ctx context.Context) error {
		return a.redisClient.Ping(ctx).Err()
	}
}
