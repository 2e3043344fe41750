package fetcher_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpuhunt/listing-engine/internal/domain"
	"github.com/gpuhunt/listing-engine/internal/fetcher"
	"github.com/gpuhunt/listing-engine/internal/logger"
	"github.com/gpuhunt/listing-engine/internal/marketplace"
)

// fakeSearchClient serves canned pages and records requested page
// numbers.
type fakeSearchClient struct {
	pages        []marketplace.Page
	endless      bool
	serve        func(page int) marketplace.Page
	err          error
	pagesFetched []int
}

func (f *fakeSearchClient) Search(_ context.Context, _ string, page int) (marketplace.Page, error) {
	f.pagesFetched = append(f.pagesFetched, page)
	if f.err != nil {
		return marketplace.Page{}, f.err
	}
	if f.serve != nil {
		return f.serve(page), nil
	}
	if f.endless {
		return marketplace.Page{Items: makeListings(page*10, 10), HasMore: true}, nil
	}
	if page >= len(f.pages) {
		return marketplace.Page{}, nil
	}
	return f.pages[page], nil
}

func makeListings(start, n int) []domain.RawListing {
	out := make([]domain.RawListing, 0, n)
	for i := start; i < start+n; i++ {
		out = append(out, domain.RawListing{
			ItemID:          fmt.Sprintf("v1|%d|0", i),
			Title:           fmt.Sprintf("GeForce RTX 4090 listing %d", i),
			PriceValue:      1500,
			BuyingOptions:   []string{"FIXED_PRICE"},
			AffiliateWebURL: "https://market.example.com/itm/1",
		})
	}
	return out
}

func TestFetchCandidatesStopsAtCapOnEndlessPages(t *testing.T) {
	client := &fakeSearchClient{endless: true}
	f := fetcher.New(client, 35, logger.NewNopLogger())

	got, err := f.FetchCandidates(context.Background(), domain.Model{Name: "rtx-4090", Label: "RTX 4090"})

	require.NoError(t, err)
	assert.Len(t, got, 35)
	// 4 pages of 10 suffice; the cap must stop pagination, not just
	// truncate afterwards.
	assert.Equal(t, []int{0, 1, 2, 3}, client.pagesFetched)
}

func TestFetchCandidatesStopsWhenPagesRunOut(t *testing.T) {
	client := &fakeSearchClient{pages: []marketplace.Page{
		{Items: makeListings(0, 10), HasMore: true},
		{Items: makeListings(10, 4), HasMore: false},
	}}
	f := fetcher.New(client, 200, logger.NewNopLogger())

	got, err := f.FetchCandidates(context.Background(), domain.Model{Name: "rtx-4090", Label: "RTX 4090"})

	require.NoError(t, err)
	assert.Len(t, got, 14)
	assert.Equal(t, []int{0, 1}, client.pagesFetched)
}

func TestFetchCandidatesWrapsErrorsAsFetchError(t *testing.T) {
	client := &fakeSearchClient{err: errors.New("upstream 500")}
	f := fetcher.New(client, 200, logger.NewNopLogger())

	_, err := f.FetchCandidates(context.Background(), domain.Model{Name: "rtx-4090", Label: "RTX 4090"})

	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "rtx-4090", fetchErr.Model)
}

func TestFetchCandidatesDropsMalformedItems(t *testing.T) {
	valid := makeListings(0, 2)
	malformed := []domain.RawListing{
		{ItemID: "", Title: "no item id", PriceValue: 100},
		{ItemID: "v1|9|0", Title: "", PriceValue: 100},
		{ItemID: "v1|10|0", Title: "free or broken", PriceValue: 0},
	}
	client := &fakeSearchClient{pages: []marketplace.Page{
		{Items: append(malformed, valid...), HasMore: false},
	}}
	f := fetcher.New(client, 200, logger.NewNopLogger())

	got, err := f.FetchCandidates(context.Background(), domain.Model{Name: "rtx-4090", Label: "RTX 4090"})

	require.NoError(t, err)
	assert.Equal(t, valid, got)
}

func TestFetchCandidatesStopsOnEmptyPageClaimingMore(t *testing.T) {
	// A collaborator that keeps promising more results while serving
	// empty pages must not spin the walk forever.
	client := &fakeSearchClient{serve: func(int) marketplace.Page {
		return marketplace.Page{Items: nil, HasMore: true}
	}}
	f := fetcher.New(client, 10, logger.NewNopLogger())

	got, err := f.FetchCandidates(context.Background(), domain.Model{Name: "rtx-4090", Label: "RTX 4090"})

	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, []int{0}, client.pagesFetched)
}

func TestFetchCandidatesMalformedItemsCountAgainstCap(t *testing.T) {
	// Endless pages of junk items terminate at the cap even though no
	// valid candidate ever accumulates.
	client := &fakeSearchClient{serve: func(int) marketplace.Page {
		junk := make([]domain.RawListing, 10)
		for i := range junk {
			junk[i] = domain.RawListing{ItemID: "", Title: "", PriceValue: 0}
		}
		return marketplace.Page{Items: junk, HasMore: true}
	}}
	f := fetcher.New(client, 35, logger.NewNopLogger())

	got, err := f.FetchCandidates(context.Background(), domain.Model{Name: "rtx-4090", Label: "RTX 4090"})

	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, []int{0, 1, 2, 3}, client.pagesFetched)
}

func TestFetchCandidatesEmptyFirstPage(t *testing.T) {
	client := &fakeSearchClient{pages: []marketplace.Page{{}}}
	f := fetcher.New(client, 200, logger.NewNopLogger())

	got, err := f.FetchCandidates(context.Background(), domain.Model{Name: "rtx-4090", Label: "RTX 4090"})

	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, []int{0}, client.pagesFetched)
}
