package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/gpuhunt/listing-engine/internal/domain"
	"github.com/gpuhunt/listing-engine/internal/logger"
)

const (
	// commitAttempts bounds the retry loop for conflicting commits.
	commitAttempts = 3
)

// ListingRepository owns all mutation of cached_listings rows. Other
// components only read them.
type ListingRepository struct {
	db     *sqlx.DB
	logger logger.Logger
}

// NewListingRepository creates a new listing repository.
func NewListingRepository(db *sqlx.DB, log logger.Logger) *ListingRepository {
	return &ListingRepository{db: db, logger: log}
}

// CommitResult reports what a snapshot commit changed. Upserted counts
// only rows inserted or whose listing data differed; a pass observing
// an unchanged marketplace reports zero updates even though freshness
// timestamps were bumped.
type CommitResult struct {
	Upserted int
	Archived int
}

// CommitSnapshot reconciles a model's cache with one fetch pass, in a
// single transaction:
//
//   - every kept listing is upserted: inserted with first_seen_at =
//     cached_at = now, or refreshed in place with first_seen_at left
//     untouched and cached_at bumped. Rows whose listing data did not
//     change get the freshness bump but do not count as updates;
//   - every excluded candidate is recorded as an archived row carrying
//     its exclusion reason (an active row for the same item is archived
//     in place; a persistently excluded item keeps a single audit row
//     per reason instead of accreting duplicates);
//   - every remaining active listing of the model not observed this
//     pass disappeared from the marketplace and is archived as
//     delisted.
//
// Nothing is ever deleted. Serialization conflicts retry the whole
// transaction up to commitAttempts times; on exhaustion the model's
// prior state is intact and the error surfaces to the caller.
func (r *ListingRepository) CommitSnapshot(
	ctx context.Context,
	model domain.Model,
	kept []domain.RawListing,
	excluded []domain.ExcludedListing,
) (CommitResult, error) {
	var result CommitResult
	var lastErr error

	for attempt := 1; attempt <= commitAttempts; attempt++ {
		result, lastErr = r.commitOnce(ctx, model, kept, excluded)
		if lastErr == nil {
			return result, nil
		}
		if !IsRetryableConflict(lastErr) {
			return CommitResult{}, &domain.StorageError{Op: "commit snapshot", Err: lastErr}
		}
		r.logger.Warn("commit conflict, retrying transaction",
			logger.String("model", model.Name),
			logger.Int("attempt", attempt),
			logger.Error(lastErr))
	}

	return CommitResult{}, &domain.StorageError{
		Op:        "commit snapshot",
		Retryable: true,
		Err:       fmt.Errorf("conflict persisted after %d attempts: %w", commitAttempts, lastErr),
	}
}

func (r *ListingRepository) commitOnce(
	ctx context.Context,
	model domain.Model,
	kept []domain.RawListing,
	excluded []domain.ExcludedListing,
) (CommitResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return CommitResult{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := time.Now().UTC()
	var result CommitResult

	seenIDs := make([]string, 0, len(kept)+len(excluded))

	for _, listing := range kept {
		changed, upsertErr := upsertListing(ctx, tx, model.Name, listing, now)
		if upsertErr != nil {
			return CommitResult{}, upsertErr
		}
		if changed {
			result.Upserted++
		}
		seenIDs = append(seenIDs, listing.ItemID)
	}

	for _, ex := range excluded {
		recorded, exErr := recordExcluded(ctx, tx, model.Name, ex, now)
		if exErr != nil {
			return CommitResult{}, exErr
		}
		if recorded {
			result.Archived++
		}
		seenIDs = append(seenIDs, ex.Listing.ItemID)
	}

	archived, err := archiveUnseen(ctx, tx, model.Name, seenIDs, now)
	if err != nil {
		return CommitResult{}, err
	}
	result.Archived += archived

	if commitErr := tx.Commit(); commitErr != nil {
		return CommitResult{}, fmt.Errorf("commit transaction: %w", commitErr)
	}

	return result, nil
}

// upsertListing inserts or refreshes one kept listing and reports
// whether the row was inserted or its listing data changed. The DO
// UPDATE only fires when a mutable column differs, so the statement's
// row count distinguishes a real update from a mere re-observation;
// re-observations still get their cached_at bumped by a follow-up
// touch.
func upsertListing(ctx context.Context, tx *sqlx.Tx, modelName string, l domain.RawListing, now time.Time) (bool, error) {
	query := `
		INSERT INTO cached_listings (
			item_id, model_name, title, price_value, currency, condition,
			buying_options, seller_username, seller_feedback_pct,
			affiliate_web_url, item_location_country,
			active, first_seen_at, cached_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, TRUE, $12, $12)
		ON CONFLICT (item_id) WHERE active DO UPDATE SET
			title = EXCLUDED.title,
			price_value = EXCLUDED.price_value,
			currency = EXCLUDED.currency,
			condition = EXCLUDED.condition,
			buying_options = EXCLUDED.buying_options,
			seller_username = EXCLUDED.seller_username,
			seller_feedback_pct = EXCLUDED.seller_feedback_pct,
			affiliate_web_url = EXCLUDED.affiliate_web_url,
			item_location_country = EXCLUDED.item_location_country,
			cached_at = GREATEST(cached_listings.cached_at, EXCLUDED.cached_at)
		WHERE (cached_listings.title, cached_listings.price_value,
		       cached_listings.currency, cached_listings.condition,
		       cached_listings.buying_options, cached_listings.seller_username,
		       cached_listings.seller_feedback_pct, cached_listings.affiliate_web_url,
		       cached_listings.item_location_country)
		      IS DISTINCT FROM
		      (EXCLUDED.title, EXCLUDED.price_value,
		       EXCLUDED.currency, EXCLUDED.condition,
		       EXCLUDED.buying_options, EXCLUDED.seller_username,
		       EXCLUDED.seller_feedback_pct, EXCLUDED.affiliate_web_url,
		       EXCLUDED.item_location_country)
	`

	res, err := tx.ExecContext(ctx, query,
		l.ItemID, modelName, l.Title, l.PriceValue, l.Currency, l.Condition,
		pq.Array(l.BuyingOptions), l.SellerUsername, l.SellerFeedbackPct,
		l.AffiliateWebURL, l.ItemLocationCountry, now,
	)
	if err != nil {
		return false, fmt.Errorf("upsert listing %s: %w", l.ItemID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("upsert listing rows affected: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	touch := `
		UPDATE cached_listings
		SET cached_at = GREATEST(cached_at, $1)
		WHERE item_id = $2 AND active
	`
	if _, err := tx.ExecContext(ctx, touch, now, l.ItemID); err != nil {
		return false, fmt.Errorf("touch listing %s: %w", l.ItemID, err)
	}
	return false, nil
}

// recordExcluded archives an active row for the item if one exists;
// otherwise it inserts an archived row so the exclusion is kept for
// audit. The insert is skipped when an archived row with the same
// reason already exists, so an item excluded on every pass keeps one
// audit row per reason. Reports whether a row was archived or
// inserted.
func recordExcluded(ctx context.Context, tx *sqlx.Tx, modelName string, ex domain.ExcludedListing, now time.Time) (bool, error) {
	update := `
		UPDATE cached_listings
		SET active = FALSE,
		    exclusion_reason = $1,
		    archived_at = $2
		WHERE item_id = $3 AND active
	`

	res, err := tx.ExecContext(ctx, update, string(ex.Reason), now, ex.Listing.ItemID)
	if err != nil {
		return false, fmt.Errorf("archive excluded listing %s: %w", ex.Listing.ItemID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("archive excluded rows affected: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	insert := `
		INSERT INTO cached_listings (
			item_id, model_name, title, price_value, currency, condition,
			buying_options, seller_username, seller_feedback_pct,
			affiliate_web_url, item_location_country,
			active, exclusion_reason, first_seen_at, cached_at, archived_at
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, FALSE, $12, $13, $13, $13
		WHERE NOT EXISTS (
			SELECT 1 FROM cached_listings
			WHERE item_id = $1 AND NOT active AND exclusion_reason = $12
		)
	`

	l := ex.Listing
	res, err = tx.ExecContext(ctx, insert,
		l.ItemID, modelName, l.Title, l.PriceValue, l.Currency, l.Condition,
		pq.Array(l.BuyingOptions), l.SellerUsername, l.SellerFeedbackPct,
		l.AffiliateWebURL, l.ItemLocationCountry,
		string(ex.Reason), now,
	)
	if err != nil {
		return false, fmt.Errorf("insert excluded listing %s: %w", l.ItemID, err)
	}
	affected, err = res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert excluded rows affected: %w", err)
	}
	return affected > 0, nil
}

func archiveUnseen(ctx context.Context, tx *sqlx.Tx, modelName string, seenIDs []string, now time.Time) (int, error) {
	query := `
		UPDATE cached_listings
		SET active = FALSE,
		    exclusion_reason = $1,
		    archived_at = $2
		WHERE model_name = $3
		  AND active
		  AND NOT (item_id = ANY($4))
	`

	res, err := tx.ExecContext(ctx, query,
		string(domain.ExclusionDelisted), now, modelName, pq.Array(seenIDs),
	)
	if err != nil {
		return 0, fmt.Errorf("archive unseen listings: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("archive rows affected: %w", err)
	}
	return int(affected), nil
}

// ListActiveByModel returns a model's active listings, newest price
// confirmation first.
func (r *ListingRepository) ListActiveByModel(ctx context.Context, modelName string) ([]domain.CachedListing, error) {
	query := `
		SELECT item_id, model_name, title, price_value, currency, condition,
		       buying_options, seller_username, seller_feedback_pct,
		       affiliate_web_url, item_location_country,
		       active, exclusion_reason, first_seen_at, cached_at, archived_at
		FROM cached_listings
		WHERE model_name = $1 AND active
		ORDER BY cached_at DESC, item_id ASC
	`

	var listings []domain.CachedListing
	if err := r.db.SelectContext(ctx, &listings, query, modelName); err != nil {
		return nil, &domain.StorageError{Op: "list active listings", Err: err}
	}
	return listings, nil
}

// Archive marks the given item IDs inactive with the supplied reason.
// Used by the cleanup sweep; rows are retained for history.
func (r *ListingRepository) Archive(ctx context.Context, itemIDs []string, reason domain.ExclusionReason) (int, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}

	query := `
		UPDATE cached_listings
		SET active = FALSE,
		    exclusion_reason = $1,
		    archived_at = $2
		WHERE active AND item_id = ANY($3)
	`

	res, err := r.db.ExecContext(ctx, query,
		string(reason), time.Now().UTC(), pq.Array(itemIDs),
	)
	if err != nil {
		return 0, &domain.StorageError{Op: "archive listings", Err: err}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, &domain.StorageError{Op: "archive rows affected", Err: err}
	}
	return int(affected), nil
}

// CountActive returns the number of active listings for a model.
func (r *ListingRepository) CountActive(ctx context.Context, modelName string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM cached_listings WHERE model_name = $1 AND active`
	if err := r.db.GetContext(ctx, &count, query, modelName); err != nil {
		return 0, &domain.StorageError{Op: "count active listings", Err: err}
	}
	return count, nil
}
