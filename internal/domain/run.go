package domain

import "time"

// StaleModel describes a model that a revalidation run did not reach,
// paired with the pre-run staleness signal so operators can size the
// backlog.
type StaleModel struct {
	Name           string     `json:"name"`
	OldestCachedAt *time.Time `json:"oldest_cached_at"`
}

// ModelFailure records a model whose pass failed without aborting the
// run.
type ModelFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// RevalidationRun summarizes one bounded revalidation invocation. It
// is returned to the caller and mirrored into the metrics sink; it is
// not persisted.
type RevalidationRun struct {
	RunID                  string         `json:"run_id"`
	StartedAt              time.Time      `json:"started_at"`
	TimeoutMs              int64          `json:"timeout_ms"`
	UpdateCount            int            `json:"update_count"`
	ModelsProcessed        int            `json:"models_processed"`
	RemainingModelsToCache int            `json:"remaining_models_to_cache"`
	StaleModels            []StaleModel   `json:"stale_models"`
	Failures               []ModelFailure `json:"failures,omitempty"`
	TotalDuration          time.Duration  `json:"total_duration"`
	Throttled              bool           `json:"throttled,omitempty"`
}

// CleanupRun summarizes one full re-filter sweep over active listings.
type CleanupRun struct {
	RunID                  string         `json:"run_id"`
	StartedAt              time.Time      `json:"started_at"`
	ModelsProcessed        int            `json:"models_processed"`
	TotalListingsProcessed int            `json:"total_listings_processed"`
	ArchivedCount          int            `json:"archived_count"`
	Failures               []ModelFailure `json:"failures,omitempty"`
	TotalDuration          time.Duration  `json:"total_duration"`
}
