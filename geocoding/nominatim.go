// Package geocoding resolves postal addresses to coordinates.
package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"repairshop-scraper/utils"
)

// Result is one geocoding hit.
type Result struct {
	Lat         float64
	Lng         float64
	DisplayName string
}

// Geocoder resolves a free-form address. A nil result with a nil error
// means the address is unknown to the provider.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*Result, error)
}

// DefaultURL is the public Nominatim search endpoint.
const DefaultURL = "https://nominatim.openstreetmap.org/search"

// Nominatim queries an OpenStreetMap Nominatim instance.
type Nominatim struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	email      string
	limiter    *utils.RateLimiter
}

// NewNominatim creates a Nominatim client. The public instance asks for at
// most one request per second and an identifying User-Agent.
func NewNominatim(baseURL, userAgent, email string, limiter *utils.RateLimiter) *Nominatim {
	base := strings.TrimRight(baseURL, "?&")
	if base == "" {
		base = DefaultURL
	}
	return &Nominatim{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    base,
		userAgent:  userAgent,
		email:      email,
		limiter:    limiter,
	}
}

// Geocode implements Geocoder.
func (n *Nominatim) Geocode(ctx context.Context, address string) (*Result, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, nil
	}
	if err := n.limiter.BeforeRequest(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("format", "json")
	params.Set("limit", "1")
	params.Set("countrycodes", "fr")
	params.Set("q", address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("geocoder: create request: %w", err)
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept-Language", "fr")
	if n.email != "" {
		req.Header.Set("From", n.email)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocoder: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoder responded with status %d", resp.StatusCode)
	}

	var payload []struct {
		Lat         string `json:"lat"`
		Lon         string `json:"lon"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("geocoder: decode response: %w", err)
	}
	if len(payload) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(payload[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("geocoder: bad latitude %q: %w", payload[0].Lat, err)
	}
	lng, err := strconv.ParseFloat(payload[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("geocoder: bad longitude %q: %w", payload[0].Lon, err)
	}
	return &Result{Lat: lat, Lng: lng, DisplayName: payload[0].DisplayName}, nil
}
