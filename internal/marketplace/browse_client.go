package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/gpuhunt/listing-engine/internal/domain"
	"github.com/gpuhunt/listing-engine/internal/logger"
)

const (
	defaultPageSize    = 50
	defaultTimeout     = 15 * time.Second
	maxRequestAttempts = 3
	retryBaseDelay     = 500 * time.Millisecond
	burstSize          = 1
)

// BrowseConfig holds HTTP client configuration for the browse API.
type BrowseConfig struct {
	BaseURL string
	// AuthToken is sent as a bearer token on every request.
	AuthToken string
	// AffiliateCampaign decorates results with affiliate links when set.
	AffiliateCampaign string
	PageSize          int
	RequestTimeout    time.Duration
	// RequestsPerSec paces outbound calls; zero disables pacing.
	RequestsPerSec float64
}

// BrowseClient implements SearchClient against a Browse-style item
// summary search endpoint.
type BrowseClient struct {
	cfg     BrowseConfig
	http    *http.Client
	limiter *rate.Limiter
	logger  logger.Logger
}

// NewBrowseClient creates a browse API client.
func NewBrowseClient(cfg BrowseConfig, log logger.Logger) *BrowseClient {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultTimeout
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), burstSize)
	}

	return &BrowseClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: limiter,
		logger:  log,
	}
}

// searchResponse mirrors the item summary search payload. Numeric
// fields arrive as strings on the wire.
type searchResponse struct {
	Total         int           `json:"total"`
	ItemSummaries []itemSummary `json:"itemSummaries"`
}

type itemSummary struct {
	ItemID string `json:"itemId"`
	Title  string `json:"title"`
	Price  struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	} `json:"price"`
	BuyingOptions []string `json:"buyingOptions"`
	Condition     string   `json:"condition"`
	Seller        struct {
		Username           string `json:"username"`
		FeedbackPercentage string `json:"feedbackPercentage"`
	} `json:"seller"`
	ItemAffiliateWebURL string `json:"itemAffiliateWebUrl"`
	ItemLocation        struct {
		Country string `json:"country"`
	} `json:"itemLocation"`
}

// Search fetches one page of results for the query.
func (c *BrowseClient) Search(ctx context.Context, query string, page int) (Page, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Page{}, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	offset := page * c.cfg.PageSize
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(c.cfg.PageSize))
	params.Set("offset", strconv.Itoa(offset))

	endpoint := c.cfg.BaseURL + "/item_summary/search?" + params.Encode()

	var resp searchResponse
	if err := c.doWithRetry(ctx, endpoint, &resp); err != nil {
		return Page{}, err
	}

	items := make([]domain.RawListing, 0, len(resp.ItemSummaries))
	for _, s := range resp.ItemSummaries {
		items = append(items, s.toRawListing())
	}

	return Page{
		Items:   items,
		HasMore: offset+len(resp.ItemSummaries) < resp.Total && len(resp.ItemSummaries) > 0,
	}, nil
}

// doWithRetry issues the request, retrying 5xx and 429 responses a
// bounded number of times.
func (c *BrowseClient) doWithRetry(ctx context.Context, endpoint string, out any) error {
	var lastErr error

	for attempt := 1; attempt <= maxRequestAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBaseDelay * time.Duration(attempt-1)):
			}
		}

		err := c.doOnce(ctx, endpoint, out)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryableRequest(err) {
			return err
		}
		c.logger.Warn("marketplace request failed, retrying",
			logger.Int("attempt", attempt),
			logger.Error(err))
	}

	return fmt.Errorf("marketplace request failed after %d attempts: %w", maxRequestAttempts, lastErr)
}

func (c *BrowseClient) doOnce(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	req.Header.Set("Accept", "application/json")
	if c.cfg.AffiliateCampaign != "" {
		req.Header.Set("X-MARKETPLACE-ENDUSERCTX", "affiliateCampaignId="+c.cfg.AffiliateCampaign)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &requestError{StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (s itemSummary) toRawListing() domain.RawListing {
	price, _ := strconv.ParseFloat(s.Price.Value, 64)
	feedback, _ := strconv.ParseFloat(s.Seller.FeedbackPercentage, 64)

	return domain.RawListing{
		ItemID:              s.ItemID,
		Title:               s.Title,
		PriceValue:          price,
		Currency:            s.Price.Currency,
		Condition:           s.Condition,
		BuyingOptions:       s.BuyingOptions,
		SellerUsername:      s.Seller.Username,
		SellerFeedbackPct:   feedback,
		AffiliateWebURL:     s.ItemAffiliateWebURL,
		ItemLocationCountry: s.ItemLocation.Country,
	}
}

// requestError is a non-200 response.
type requestError struct {
	StatusCode int
}

func (e *requestError) Error() string {
	return fmt.Sprintf("marketplace returned status %d", e.StatusCode)
}

func isRetryableRequest(err error) bool {
	var re *requestError
	if !errors.As(err, &re) {
		return false
	}
	return re.StatusCode == http.StatusTooManyRequests || re.StatusCode >= http.StatusInternalServerError
}
