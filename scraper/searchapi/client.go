// Package searchapi collects listings from a third-party web search API.
package searchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"repairshop-scraper/models"
	"repairshop-scraper/scraper"
	"repairshop-scraper/utils"
)

// Ensure Client implements the collector contracts.
var (
	_ scraper.Collector = (*Client)(nil)
	_ scraper.Validator = (*Client)(nil)
)

// DefaultTimeout bounds one search request.
const DefaultTimeout = 30 * time.Second

// titleSuffixRegexp matches " - Site" / " | Site" suffixes search engines
// append to page titles.
var titleSuffixRegexp = regexp.MustCompile(`\s+[-|–]\s+[^-|–]*$`)

// Client queries the search API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *utils.RateLimiter
	retry      *utils.RetryConfig
	logger     *utils.Logger
}

type searchRequest struct {
	Query       string `json:"query"`
	Type        string `json:"type"`
	Location    string `json:"location"`
	ResultCount int    `json:"resultCount"`
}

type searchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

// NewClient creates a search API client. limiter may be shared with other
// collectors that must be throttled on the same clock. A nil retry makes a
// single attempt.
func NewClient(baseURL, apiKey string, limiter *utils.RateLimiter, retry *utils.RetryConfig, logger *utils.Logger) *Client {
	if retry == nil {
		retry = scraper.SingleAttempt(logger)
	}
	return &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		limiter:    limiter,
		retry:      retry,
		logger:     logger,
	}
}

// Source implements scraper.Collector.
func (c *Client) Source() models.Source {
	return models.SourceSearchAPI
}

// Validate implements scraper.Validator.
func (c *Client) Validate() error {
	if strings.TrimSpace(c.apiKey) == "" {
		return fmt.Errorf("search api: %w", scraper.ErrMissingCredentials)
	}
	return nil
}

// Collect implements scraper.Collector.
func (c *Client) Collect(ctx context.Context, searchTerm, location string, maxResults int) ([]*models.RawListing, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(searchRequest{
		Query:       searchTerm + " " + location,
		Type:        "search",
		Location:    location,
		ResultCount: maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("search api: encode request: %w", err)
	}

	var decoded searchResponse
	err = c.retry.Do(ctx, "search api", func(ctx context.Context) error {
		decoded = searchResponse{}
		return c.search(ctx, body, &decoded)
	})
	if err != nil {
		return nil, err
	}

	out := make([]*models.RawListing, 0, len(decoded.Results))
	for _, res := range decoded.Results {
		if maxResults > 0 && len(out) >= maxResults {
			break
		}
		if r := toRawListing(res, location); r != nil {
			out = append(out, r)
		}
	}
	c.logger.Info("[search_api] %d results for %q in %s", len(out), searchTerm, location)
	return out, nil
}

// search sends one request. Server and network failures are retryable.
func (c *Client) search(ctx context.Context, body []byte, out *searchResponse) error {
	if err := c.limiter.BeforeRequest(ctx); err != nil {
		return utils.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return utils.Permanent(fmt.Errorf("search api: create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("search api: %w", err)
	}
	defer resp.Body.Close()

	if err := scraper.CheckStatus(resp, "search api"); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return utils.Permanent(fmt.Errorf("search api: decode response: %w", err))
	}
	return nil
}

// toRawListing maps one search hit. Hits without a usable title are dropped.
func toRawListing(res searchResult, location string) *models.RawListing {
	name := cleanTitle(res.Title)
	if name == "" {
		return nil
	}

	snippet := utils.NormaliseText(res.Snippet)
	r := &models.RawListing{
		Name:        name,
		City:        location,
		PostalCode:  models.UnknownPostalCode,
		Website:     strings.TrimSpace(res.Link),
		Description: snippet,
		Phone:       scraper.ExtractPhone(snippet),
		Source:      models.SourceSearchAPI,
	}
	if addr, ok := scraper.ExtractAddress(snippet); ok {
		r.Address = addr.Street
		r.PostalCode = addr.PostalCode
		if addr.City != "" {
			r.City = addr.City
		}
	}
	return r
}

func cleanTitle(title string) string {
	title = utils.NormaliseText(title)
	if stripped := strings.TrimSpace(titleSuffixRegexp.ReplaceAllString(title, "")); stripped != "" {
		return stripped
	}
	return title
}
