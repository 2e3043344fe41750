// Package fetcher collects marketplace candidates for a model, bounded
// by a per-model cap so pathological pagination cannot eat the run
// budget.
package fetcher

import (
	"context"

	"github.com/gpuhunt/listing-engine/internal/domain"
	"github.com/gpuhunt/listing-engine/internal/logger"
	"github.com/gpuhunt/listing-engine/internal/marketplace"
)

// Fetcher pages through marketplace search results for a model.
type Fetcher struct {
	client      marketplace.SearchClient
	perModelCap int
	logger      logger.Logger
}

// New creates a fetcher. perModelCap must be positive.
func New(client marketplace.SearchClient, perModelCap int, log logger.Logger) *Fetcher {
	return &Fetcher{
		client:      client,
		perModelCap: perModelCap,
		logger:      log,
	}
}

// FetchCandidates collects up to the per-model cap of validated raw
// listings for the model. Items the marketplace returns in a malformed
// shape (no item ID, no title, non-positive price) are dropped at this
// boundary rather than trusted downstream; they still count against
// the cap, which keeps pagination bounded no matter what the
// collaborator claims. An empty page ends the walk even when the
// response says more results exist.
func (f *Fetcher) FetchCandidates(ctx context.Context, model domain.Model) ([]domain.RawListing, error) {
	candidates := make([]domain.RawListing, 0, f.perModelCap)

	seen := 0
	for page := 0; seen < f.perModelCap; page++ {
		result, err := f.client.Search(ctx, model.Label, page)
		if err != nil {
			return nil, &domain.FetchError{Model: model.Name, Err: err}
		}

		if len(result.Items) == 0 {
			break
		}

		for _, item := range result.Items {
			if seen >= f.perModelCap {
				break
			}
			seen++

			if !validRawListing(item) {
				f.logger.Warn("dropping malformed marketplace item",
					logger.String("model", model.Name),
					logger.String("item_id", item.ItemID),
					logger.Float64("price", item.PriceValue))
				continue
			}
			candidates = append(candidates, item)
		}

		if !result.HasMore {
			break
		}
	}

	return candidates, nil
}

func validRawListing(item domain.RawListing) bool {
	return item.ItemID != "" && item.Title != "" && item.PriceValue > 0
}
