// Package marketplace wraps the third-party marketplace search API.
// The engine depends only on the SearchClient interface; the HTTP
// client in this package is one implementation of it.
package marketplace

import (
	"context"

	"github.com/gpuhunt/listing-engine/internal/domain"
)

// Page is one page of search results.
type Page struct {
	Items   []domain.RawListing
	HasMore bool
}

// SearchClient is the marketplace search collaborator. Page numbers
// are zero-based.
type SearchClient interface {
	Search(ctx context.Context, query string, page int) (Page, error)
}
