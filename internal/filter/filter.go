// Package filter classifies marketplace listings against a model's
// spec sheet. Classification is deterministic and shared between the
// revalidation path (fresh candidates) and the cleanup sweep
// (already-cached rows), so the two can never disagree on the rules.
package filter

import (
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"

	"github.com/gpuhunt/listing-engine/internal/domain"
)

// Classification is the outcome of evaluating one listing.
type Classification struct {
	Keep   bool
	Reason domain.ExclusionReason
	// Anomaly flags a listing whose title matched neither the model's
	// required keywords nor a known accessory pattern. It is an
	// observability signal for manual follow-up, not a distinct state.
	Anomaly bool
}

var keep = Classification{Keep: true}

func exclude(reason domain.ExclusionReason) Classification {
	return Classification{Reason: reason}
}

// Rules is a model's spec sheet compiled into Aho-Corasick keyword
// matchers. Compile once per model and reuse across candidates; the
// matchers scan a title in a single pass regardless of keyword count.
type Rules struct {
	model         domain.Model
	required      *ahocorasick.Matcher
	requiredCount int
	accessory     *ahocorasick.Matcher
}

// Compile builds the keyword matchers for a model.
func Compile(model domain.Model) *Rules {
	required, count := newMatcher(model.RequiredKeywords)
	accessory, _ := newMatcher(model.AccessoryKeywords)

	return &Rules{
		model:         model,
		required:      required,
		requiredCount: count,
		accessory:     accessory,
	}
}

// newMatcher normalizes and dedupes keywords before building the
// automaton. A nil matcher means no keywords.
func newMatcher(keywords []string) (*ahocorasick.Matcher, int) {
	seen := make(map[string]struct{}, len(keywords))
	normalized := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		n := strings.ToLower(strings.TrimSpace(kw))
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		normalized = append(normalized, n)
	}

	if len(normalized) == 0 {
		return nil, 0
	}
	return ahocorasick.NewStringMatcher(normalized), len(normalized)
}

// Classify evaluates a listing. Rules run in fixed precedence so the
// reported reason is stable: affiliate link, fixed price, price
// window, keywords.
func (r *Rules) Classify(listing domain.RawListing) Classification {
	if !validAffiliateURL(listing.AffiliateWebURL) {
		return exclude(domain.ExclusionMissingAffiliateLink)
	}

	if !listing.FixedPrice() {
		return exclude(domain.ExclusionNotFixedPrice)
	}

	if outOfPriceRange(listing.PriceValue, r.model) {
		return exclude(domain.ExclusionPriceOutOfRange)
	}

	title := []byte(strings.ToLower(listing.Title))
	if !r.matchesAllRequired(title) {
		c := exclude(domain.ExclusionKeywordMismatch)
		c.Anomaly = !r.matchesAnyAccessory(title)
		return c
	}

	return keep
}

// ClassifySafe wraps Classify with a panic guard. Evaluation failures
// should not happen for validated input; if one does, the listing is
// excluded for manual review instead of crashing the model's pass.
func (r *Rules) ClassifySafe(listing domain.RawListing) (c Classification) {
	defer func() {
		if rec := recover(); rec != nil {
			c = exclude(domain.ExclusionManualReview)
		}
	}()
	return r.Classify(listing)
}

// matchesAllRequired reports whether every required keyword occurs in
// the title. Match returns the distinct dictionary entries found, so
// a full hit count means all keywords are present.
func (r *Rules) matchesAllRequired(title []byte) bool {
	if r.required == nil {
		return true
	}
	return len(r.required.Match(title)) == r.requiredCount
}

func (r *Rules) matchesAnyAccessory(title []byte) bool {
	if r.accessory == nil {
		return false
	}
	return len(r.accessory.Match(title)) > 0
}

// Classify evaluates a single listing against a model. For classifying
// batches, Compile the model once and reuse the Rules.
func Classify(listing domain.RawListing, model domain.Model) Classification {
	return Compile(model).Classify(listing)
}

// ClassifySafe is the panic-guarded form of Classify.
func ClassifySafe(listing domain.RawListing, model domain.Model) Classification {
	return Compile(model).ClassifySafe(listing)
}

func validAffiliateURL(raw string) bool {
	return strings.HasPrefix(raw, "https://") || strings.HasPrefix(raw, "http://")
}

func outOfPriceRange(price float64, model domain.Model) bool {
	if model.MinPrice > 0 && price < model.MinPrice {
		return true
	}
	if model.MaxPrice > 0 && price > model.MaxPrice {
		return true
	}
	return false
}
