package domain

import (
	"time"

	"github.com/lib/pq"
)

// ExclusionReason is the closed set of causes a listing can be
// archived for. The value is persisted, so additions are append-only.
type ExclusionReason string

const (
	// ExclusionMissingAffiliateLink marks listings without a usable affiliate URL.
	ExclusionMissingAffiliateLink ExclusionReason = "missing-affiliate-link"
	// ExclusionNotFixedPrice marks auction-only listings without a buy-now option.
	ExclusionNotFixedPrice ExclusionReason = "not-fixed-price"
	// ExclusionPriceOutOfRange marks listings priced outside the model's sanity window.
	ExclusionPriceOutOfRange ExclusionReason = "price-out-of-range"
	// ExclusionKeywordMismatch marks listings whose title does not identify the model.
	ExclusionKeywordMismatch ExclusionReason = "keyword-mismatch"
	// ExclusionManualReview marks listings set aside by an operator or a
	// filter evaluation failure.
	ExclusionManualReview ExclusionReason = "manual-review"
	// ExclusionDelisted marks listings that disappeared from the marketplace.
	ExclusionDelisted ExclusionReason = "delisted"
)

// RawListing is one marketplace search result after boundary
// validation. Fields mirror the Browse API item summary shape.
type RawListing struct {
	ItemID              string   `json:"item_id"`
	Title               string   `json:"title"`
	PriceValue          float64  `json:"price_value"`
	Currency            string   `json:"currency"`
	Condition           string   `json:"condition"`
	BuyingOptions       []string `json:"buying_options"`
	SellerUsername      string   `json:"seller_username"`
	SellerFeedbackPct   float64  `json:"seller_feedback_pct"`
	AffiliateWebURL     string   `json:"affiliate_web_url"`
	ItemLocationCountry string   `json:"item_location_country"`
}

// FixedPrice reports whether the listing can be bought outright.
func (r RawListing) FixedPrice() bool {
	for _, opt := range r.BuyingOptions {
		if opt == "FIXED_PRICE" || opt == "BEST_OFFER" {
			return true
		}
	}
	return false
}

// ExcludedListing pairs a rejected candidate with the reason it was
// rejected, so the exclusion can be recorded for audit.
type ExcludedListing struct {
	Listing RawListing
	Reason  ExclusionReason
}

// CachedListing is a marketplace item cached locally for one model.
// At most one active row may exist per ItemID; archived rows are
// retained for history and never deleted.
type CachedListing struct {
	ItemID              string         `db:"item_id"               json:"item_id"`
	ModelName           string         `db:"model_name"            json:"model_name"`
	Title               string         `db:"title"                 json:"title"`
	PriceValue          float64        `db:"price_value"           json:"price_value"`
	Currency            string         `db:"currency"              json:"currency"`
	Condition           string         `db:"condition"             json:"condition"`
	BuyingOptions       pq.StringArray `db:"buying_options"        json:"buying_options"`
	SellerUsername      string         `db:"seller_username"       json:"seller_username"`
	SellerFeedbackPct   float64        `db:"seller_feedback_pct"   json:"seller_feedback_pct"`
	AffiliateWebURL     string         `db:"affiliate_web_url"     json:"affiliate_web_url"`
	ItemLocationCountry string         `db:"item_location_country" json:"item_location_country"`
	Active              bool           `db:"active"                json:"active"`
	ExclusionReason     *string        `db:"exclusion_reason"      json:"exclusion_reason,omitempty"`
	FirstSeenAt         time.Time      `db:"first_seen_at"         json:"first_seen_at"`
	CachedAt            time.Time      `db:"cached_at"             json:"cached_at"`
	ArchivedAt          *time.Time     `db:"archived_at"           json:"archived_at,omitempty"`
}

// Raw converts a cached row back to the raw shape so already-cached
// listings can be re-classified with the same filter used at fetch
// time.
func (l CachedListing) Raw() RawListing {
	return RawListing{
		ItemID:              l.ItemID,
		Title:               l.Title,
		PriceValue:          l.PriceValue,
		Currency:            l.Currency,
		Condition:           l.Condition,
		BuyingOptions:       l.BuyingOptions,
		SellerUsername:      l.SellerUsername,
		SellerFeedbackPct:   l.SellerFeedbackPct,
		AffiliateWebURL:     l.AffiliateWebURL,
		ItemLocationCountry: l.ItemLocationCountry,
	}
}
