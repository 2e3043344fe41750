// Package jobs schedules the engine's recurring work in serve mode.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gpuhunt/listing-engine/internal/domain"
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

// Runner owns the cron schedule for recurring sweeps and runs.
type Runner struct {
	cron   *cron.Cron
	logger logger.Logger
}

// New creates a job runner using standard 5-field cron specs.
func New(log logger.Logger) *Runner {
	return &Runner{
		cron:   cron.New(),
		logger: log,
	}
}

// AddCleanup schedules a recurring cleanup sweep.
func (r *Runner) AddCleanup(spec string, sweeper CleanupRunner) error {
	_, err := r.cron.AddFunc(spec, func() {
		if _, runErr := sweeper.Run(context.Background()); runErr != nil {
			r.logger.Error("scheduled cleanup sweep failed", logger.Error(runErr))
		}
	})
	if err != nil {
		return err
	}

	r.logger.Info("cleanup sweep scheduled", logger.String("spec", spec))
	return nil
}

// AddRevalidation schedules a recurring revalidation run with a fixed
// budget.
func (r *Runner) AddRevalidation(spec string, revalidator RevalidationRunner, timeout time.Duration) error {
	_, err := r.cron.AddFunc(spec, func() {
		if _, runErr := revalidator.Run(context.Background(), timeout); runErr != nil {
			r.logger.Error("scheduled revalidation run failed", logger.Error(runErr))
		}
	})
	if err != nil {
		return err
	}

	r.logger.Info("revalidation run scheduled",
		logger.String("spec", spec),
		logger.Duration("budget", timeout))
	return nil
}

// Start begins dispatching scheduled jobs.
func (r *Runner) Start() {
	r.cron.Start()
}

// Stop halts scheduling and waits for in-flight jobs.
func (r *Runner) Stop() context.Context {
	return r.cron.Stop()
}
