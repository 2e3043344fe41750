package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gpuhunt/listing-engine/internal/domain"
	"github.com/gpuhunt/listing-engine/internal/filter"
	"github.com/gpuhunt/listing-engine/internal/logger"
	"github.com/gpuhunt/listing-engine/internal/metrics"
)

// ListingStore is the sweeper's view of the cache: read active rows,
// archive the ones that no longer pass the filter.
type ListingStore interface {
	ListActiveByModel(ctx context.Context, modelName string) ([]domain.CachedListing, error)
	Archive(ctx context.Context, itemIDs []string, reason domain.ExclusionReason) (int, error)
}

// Sweeper re-applies the current filter rules to every active cached
// listing, independent of freshness. Rule changes (a newly added
// accessory keyword, a tightened price window) retroactively clean
// listings admitted under the old rules.
type Sweeper struct {
	tracker  StalenessTracker
	listings ListingStore
	metrics  *metrics.Metrics
	logger   logger.Logger

	now func() time.Time
}

// NewSweeper creates a cleanup sweeper.
func NewSweeper(tracker StalenessTracker, listings ListingStore, m *metrics.Metrics, log logger.Logger) *Sweeper {
	return &Sweeper{
		tracker:  tracker,
		listings: listings,
		metrics:  m,
		logger:   log,
		now:      time.Now,
	}
}

// Run sweeps all enabled models. Failure handling mirrors the
// revalidation run: a model's sweep failing is recorded and the sweep
// continues with the next model.
func (s *Sweeper) Run(ctx context.Context) (domain.CleanupRun, error) {
	startedAt := s.now()
	run := domain.CleanupRun{
		RunID:     uuid.NewString(),
		StartedAt: startedAt,
	}

	s.metrics.CleanupRunsTotal.Inc()
	s.logger.Info("cleanup sweep started", logger.String("run_id", run.RunID))

	models, err := s.tracker.ListStale(ctx)
	if err != nil {
		return run, err
	}

	for _, entry := range models {
		processed, archived, sweepErr := s.sweepModel(ctx, entry.Model)
		run.TotalListingsProcessed += processed
		run.ArchivedCount += archived
		run.ModelsProcessed++

		if sweepErr != nil {
			run.Failures = append(run.Failures, domain.ModelFailure{
				Name:  entry.Model.Name,
				Error: sweepErr.Error(),
			})
			s.logger.Error("model sweep failed",
				logger.String("run_id", run.RunID),
				logger.String("model", entry.Model.Name),
				logger.Error(sweepErr))
		}
	}

	run.TotalDuration = s.now().Sub(startedAt)
	s.metrics.ObserveCleanup(startedAt, run.TotalDuration)
	s.logger.Info("cleanup sweep finished",
		logger.String("run_id", run.RunID),
		logger.Int("models", run.ModelsProcessed),
		logger.Int("listings", run.TotalListingsProcessed),
		logger.Int("archived", run.ArchivedCount),
		logger.Duration("duration", run.TotalDuration))

	return run, nil
}

// sweepModel returns how many listings were inspected and archived for
// one model.
func (s *Sweeper) sweepModel(ctx context.Context, model domain.Model) (int, int, error) {
	active, err := s.listings.ListActiveByModel(ctx, model.Name)
	if err != nil {
		return 0, 0, err
	}
	s.metrics.CleanupListingsTotal.Add(float64(len(active)))

	// Group failures by reason so each group archives in one statement.
	rules := filter.Compile(model)
	failing := make(map[domain.ExclusionReason][]string)
	for _, cached := range active {
		c := rules.ClassifySafe(cached.Raw())
		if c.Keep {
			continue
		}
		failing[c.Reason] = append(failing[c.Reason], cached.ItemID)
	}

	archived := 0
	for reason, itemIDs := range failing {
		count, archiveErr := s.listings.Archive(ctx, itemIDs, reason)
		if archiveErr != nil {
			return len(active), archived, archiveErr
		}
		archived += count
		s.metrics.ListingsArchivedTotal.WithLabelValues(string(reason)).Add(float64(count))
	}

	return len(active), archived, nil
}
