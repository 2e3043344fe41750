// Package engine contains the revalidation scheduler and the cleanup
// sweeper that keep the listing cache fresh and clean.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gpuhunt/listing-engine/internal/database"
	"github.com/gpuhunt/listing-engine/internal/domain"
	"github.com/gpuhunt/listing-engine/internal/filter"
	"github.com/gpuhunt/listing-engine/internal/logger"
	"github.com/gpuhunt/listing-engine/internal/metrics"
)

// StalenessTracker supplies the prioritized work list for a run.
type StalenessTracker interface {
	ListStale(ctx context.Context) ([]domain.ModelStaleness, error)
}

// CandidateFetcher collects raw marketplace candidates for a model.
type CandidateFetcher interface {
	FetchCandidates(ctx context.Context, model domain.Model) ([]domain.RawListing, error)
}

// CacheWriter commits one model's fetch pass to storage.
type CacheWriter interface {
	CommitSnapshot(ctx context.Context, model domain.Model, kept []domain.RawListing, excluded []domain.ExcludedListing) (database.CommitResult, error)
}

// Revalidator drives fetch, classify, commit across stale models under
// a shared wall-clock budget. Models are processed sequentially: the
// external API is the bottleneck, and sequential passes keep each
// model's archive/upsert decisions inside one transaction without
// cross-model interleaving.
type Revalidator struct {
	tracker StalenessTracker
	fetcher CandidateFetcher
	writer  CacheWriter
	metrics *metrics.Metrics
	logger  logger.Logger

	now func() time.Time
}

// NewRevalidator creates a revalidation scheduler.
func NewRevalidator(
	tracker StalenessTracker,
	fetcher CandidateFetcher,
	writer CacheWriter,
	m *metrics.Metrics,
	log logger.Logger,
) *Revalidator {
	return &Revalidator{
		tracker: tracker,
		fetcher: fetcher,
		writer:  writer,
		metrics: m,
		logger:  log,
		now:     time.Now,
	}
}

// Run executes one bounded revalidation pass.
//
// The stale list is snapshotted once at entry so the run works a
// consistent priority order even while staleness shifts underneath it.
// The deadline is checked between models only; a model already started
// finishes its fetch and commit, so a slow model can overrun the
// nominal budget. That is the documented bound, not a bug.
//
// A model-level failure is recorded and the run continues; only a
// failure of the initial stale listing is fatal, because without it no
// work order exists.
func (r *Revalidator) Run(ctx context.Context, timeout time.Duration) (domain.RevalidationRun, error) {
	startedAt := r.now()
	deadline := startedAt.Add(timeout)

	run := domain.RevalidationRun{
		RunID:     uuid.NewString(),
		StartedAt: startedAt,
		TimeoutMs: timeout.Milliseconds(),
	}

	r.metrics.RunsTotal.Inc()
	r.logger.Info("revalidation run started",
		logger.String("run_id", run.RunID),
		logger.Duration("budget", timeout))

	stale, err := r.tracker.ListStale(ctx)
	if err != nil {
		return run, fmt.Errorf("list stale models: %w", err)
	}

	admitted := 0
	for _, entry := range stale {
		if !r.now().Before(deadline) {
			break
		}
		admitted++

		if passErr := r.processModel(ctx, entry.Model, &run); passErr != nil {
			run.Failures = append(run.Failures, domain.ModelFailure{
				Name:  entry.Model.Name,
				Error: passErr.Error(),
			})
			r.logger.Error("model pass failed",
				logger.String("run_id", run.RunID),
				logger.String("model", entry.Model.Name),
				logger.Error(passErr))
		}
	}

	run.ModelsProcessed = admitted
	for _, entry := range stale[admitted:] {
		run.StaleModels = append(run.StaleModels, domain.StaleModel{
			Name:           entry.Model.Name,
			OldestCachedAt: entry.OldestCachedAt,
		})
	}
	run.RemainingModelsToCache = len(run.StaleModels)
	run.TotalDuration = r.now().Sub(startedAt)

	r.metrics.ObserveRun(startedAt, run.TotalDuration, run.RemainingModelsToCache)
	r.logger.Info("revalidation run finished",
		logger.String("run_id", run.RunID),
		logger.Int("models_processed", run.ModelsProcessed),
		logger.Int("updates", run.UpdateCount),
		logger.Int("remaining", run.RemainingModelsToCache),
		logger.Duration("duration", run.TotalDuration))

	return run, nil
}

func (r *Revalidator) processModel(ctx context.Context, model domain.Model, run *domain.RevalidationRun) error {
	candidates, err := r.fetcher.FetchCandidates(ctx, model)
	if err != nil {
		r.metrics.ModelPassesTotal.WithLabelValues(metrics.PassStatusFetchError).Inc()
		return err
	}
	r.metrics.CandidatesFetchedTotal.Add(float64(len(candidates)))

	kept, excluded := r.classifyAll(candidates, model)

	result, err := r.writer.CommitSnapshot(ctx, model, kept, excluded)
	if err != nil {
		r.metrics.ModelPassesTotal.WithLabelValues(metrics.PassStatusCommitError).Inc()
		return err
	}

	run.UpdateCount += result.Upserted
	r.metrics.ModelPassesTotal.WithLabelValues(metrics.PassStatusOK).Inc()
	r.metrics.ListingsUpsertedTotal.Add(float64(result.Upserted))
	// Counted only once the exclusions are durably committed.
	for _, ex := range excluded {
		r.metrics.ListingsArchivedTotal.WithLabelValues(string(ex.Reason)).Inc()
	}

	r.logger.Debug("model pass complete",
		logger.String("model", model.Name),
		logger.Int("candidates", len(candidates)),
		logger.Int("kept", len(kept)),
		logger.Int("excluded", len(excluded)),
		logger.Int("archived", result.Archived))

	return nil
}

func (r *Revalidator) classifyAll(candidates []domain.RawListing, model domain.Model) ([]domain.RawListing, []domain.ExcludedListing) {
	var kept []domain.RawListing
	var excluded []domain.ExcludedListing

	rules := filter.Compile(model)
	for _, candidate := range candidates {
		c := rules.ClassifySafe(candidate)
		if c.Keep {
			kept = append(kept, candidate)
			continue
		}

		excluded = append(excluded, domain.ExcludedListing{Listing: candidate, Reason: c.Reason})

		if c.Anomaly {
			// Neither the model's keywords nor a known accessory
			// pattern matched; likely a mis-tagged listing worth a
			// manual look.
			r.metrics.FilterAnomaliesTotal.Inc()
			r.logger.Warn("unclassifiable listing title",
				logger.String("model", model.Name),
				logger.String("item_id", candidate.ItemID),
				logger.String("title", candidate.Title))
		}
	}

	return kept, excluded
}
