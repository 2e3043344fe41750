package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/gpuhunt/listing-engine/internal/domain"
)

// ModelRepository handles read access to tracked models and their
// cache staleness.
type ModelRepository struct {
	db *sqlx.DB
}

// NewModelRepository creates a new model repository.
func NewModelRepository(db *sqlx.DB) *ModelRepository {
	return &ModelRepository{db: db}
}

// ListStale returns all enabled models ordered by cache age, oldest
// first. Models with no active listings sort before everything else
// (NULLS FIRST): a model never cached is the most overdue.
//
// A failure here is fatal to the calling run; without the ordered list
// no prioritized work order can be established.
func (r *ModelRepository) ListStale(ctx context.Context) ([]domain.ModelStaleness, error) {
	query := `
		SELECT m.name, m.label, m.required_keywords, m.accessory_keywords,
		       m.min_price, m.max_price, m.enabled, m.created_at,
		       MIN(l.cached_at) AS oldest_cached_at
		FROM models m
		LEFT JOIN cached_listings l ON l.model_name = m.name AND l.active
		WHERE m.enabled
		GROUP BY m.name
		ORDER BY MIN(l.cached_at) ASC NULLS FIRST, m.name ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &domain.StorageError{Op: "list stale models", Err: err}
	}
	defer rows.Close()

	var result []domain.ModelStaleness
	for rows.Next() {
		var (
			m      domain.Model
			oldest sql.NullTime
		)
		if scanErr := rows.Scan(
			&m.Name, &m.Label,
			pq.Array(&m.RequiredKeywords), pq.Array(&m.AccessoryKeywords),
			&m.MinPrice, &m.MaxPrice, &m.Enabled, &m.CreatedAt,
			&oldest,
		); scanErr != nil {
			return nil, &domain.StorageError{Op: "scan stale model", Err: scanErr}
		}

		entry := domain.ModelStaleness{Model: m}
		if oldest.Valid {
			t := oldest.Time
			entry.OldestCachedAt = &t
		}
		result = append(result, entry)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, &domain.StorageError{Op: "iterate stale models", Err: rowsErr}
	}

	return result, nil
}

// GetByName retrieves a single model.
func (r *ModelRepository) GetByName(ctx context.Context, name string) (*domain.Model, error) {
	query := `
		SELECT name, label, required_keywords, accessory_keywords,
		       min_price, max_price, enabled, created_at
		FROM models
		WHERE name = $1
	`

	var m domain.Model
	err := r.db.QueryRowContext(ctx, query, name).Scan(
		&m.Name, &m.Label,
		pq.Array(&m.RequiredKeywords), pq.Array(&m.AccessoryKeywords),
		&m.MinPrice, &m.MaxPrice, &m.Enabled, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, &domain.StorageError{Op: "get model", Err: err}
	}

	return &m, nil
}
