// Package ai collects listings from an AI-assisted extraction service and
// optionally screens them through its classification endpoint.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
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

const (
	// DefaultTimeout bounds one extraction or classification call.
	DefaultTimeout = 120 * time.Second

	// rejectConfidence is the confidence at or above which a "not a
	// repairer" verdict removes the record.
	rejectConfidence = 0.5
)

// Config holds the AI service settings.
type Config struct {
	BaseURL  string
	APIKey   string
	Classify bool
	Timeout  time.Duration
}

// Client talks to the AI extraction service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	classify   bool
	limiter    *utils.RateLimiter
	retry      *utils.RetryConfig
	logger     *utils.Logger
}

type extractRequest struct {
	SearchTerm string `json:"searchTerm"`
	Location   string `json:"location"`
	MaxResults int    `json:"maxResults"`
}

type extractResponse struct {
	Results []*models.RawListing `json:"results"`
}

type classifyRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Classification is the service's verdict on one business.
type Classification struct {
	IsRepairer  bool     `json:"isRepairer"`
	Confidence  float64  `json:"confidence"`
	Services    []string `json:"services"`
	Specialties []string `json:"specialties"`
	PriceRange  string   `json:"priceRange"`
}

// NewClient creates an AI client. A nil retry makes a single attempt per
// call.
func NewClient(cfg Config, limiter *utils.RateLimiter, retry *utils.RetryConfig, logger *utils.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if retry == nil {
		retry = scraper.SingleAttempt(logger)
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		classify:   cfg.Classify,
		limiter:    limiter,
		retry:      retry,
		logger:     logger,
	}
}

// Source implements scraper.Collector.
func (c *Client) Source() models.Source {
	return models.SourceAI
}

// Validate implements scraper.Validator.
func (c *Client) Validate() error {
	if strings.TrimSpace(c.apiKey) == "" {
		return fmt.Errorf("ai: %w", scraper.ErrMissingCredentials)
	}
	if c.baseURL == "" {
		return fmt.Errorf("ai: base URL is required")
	}
	return nil
}

// Collect implements scraper.Collector.
func (c *Client) Collect(ctx context.Context, searchTerm, location string, maxResults int) ([]*models.RawListing, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var resp extractResponse
	err := c.post(ctx, "/extract", extractRequest{
		SearchTerm: searchTerm,
		Location:   location,
		MaxResults: maxResults,
	}, &resp)
	if err != nil {
		return nil, err
	}

	out := make([]*models.RawListing, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r == nil || strings.TrimSpace(r.Name) == "" {
			continue
		}
		if maxResults > 0 && len(out) >= maxResults {
			break
		}
		r.Source = models.SourceAI
		if r.City == "" {
			r.City = location
		}
		out = append(out, r)
	}

	if c.classify {
		out = c.screen(ctx, out)
	}
	c.logger.Info("[ai] %d results for %q in %s", len(out), searchTerm, location)
	return out, nil
}

// screen drops records confidently classified as non-repairers and fills
// empty categories from the first specialty. A failed classification keeps
// the record untouched.
func (c *Client) screen(ctx context.Context, in []*models.RawListing) []*models.RawListing {
	out := in[:0]
	for _, r := range in {
		verdict, err := c.Classify(ctx, r.Name, r.Description)
		if err != nil {
			if ctx.Err() != nil {
				return out
			}
			c.logger.Warn("[ai] Classifying %q: %v", r.Name, err)
			out = append(out, r)
			continue
		}
		if !verdict.IsRepairer && verdict.Confidence >= rejectConfidence {
			c.logger.Debug("[ai] Dropping %q (not a repairer, confidence %.2f)", r.Name, verdict.Confidence)
			continue
		}
		if r.Category == "" && len(verdict.Specialties) > 0 {
			r.Category = verdict.Specialties[0]
		}
		out = append(out, r)
	}
	return out
}

// Classify asks the service whether a business is a repairer.
func (c *Client) Classify(ctx context.Context, name, description string) (*Classification, error) {
	var verdict Classification
	if err := c.post(ctx, "/classify", classifyRequest{Name: name, Description: description}, &verdict); err != nil {
		return nil, err
	}
	return &verdict, nil
}

// post sends payload to path under the retry policy and decodes the reply
// into out.
func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ai: encode request: %w", err)
	}
	return c.retry.Do(ctx, "ai "+path, func(ctx context.Context) error {
		return c.send(ctx, path, body, out)
	})
}

func (c *Client) send(ctx context.Context, path string, body []byte, out any) error {
	if err := c.limiter.BeforeRequest(ctx); err != nil {
		return utils.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return utils.Permanent(fmt.Errorf("ai: create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ai %s: %w", path, err)
	}
	defer resp.Body.Close()

	if err := scraper.CheckStatus(resp, "ai "+path); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return utils.Permanent(fmt.Errorf("ai %s: decode response: %w", path, err))
	}
	return nil
}
