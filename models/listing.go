package models

import (
	"strings"
	"time"
)

// Source identifies the acquisition strategy that produced a record.
type Source string

const (
	SourceBrowser   Source = "browser"
	SourceSearchAPI Source = "search_api"
	SourceAI        Source = "ai"
)

// Coordinate accuracy markers.
const (
	AccuracySource   = "source"
	AccuracyGeocoded = "geocoded"
	AccuracyFallback = "fallback"
)

// UnknownPostalCode is used when an address could not be split.
const UnknownPostalCode = "00000"

// Coordinates is a geographic point plus how it was obtained.
type Coordinates struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Accuracy string  `json:"accuracy,omitempty"`
}

// RawListing holds one business entry as produced by a collector, before
// any cleaning. Optional fields are empty strings when absent.
type RawListing struct {
	Name        string       `json:"name"`
	Address     string       `json:"address"`
	City        string       `json:"city"`
	PostalCode  string       `json:"postalCode"`
	Phone       string       `json:"phone,omitempty"`
	Email       string       `json:"email,omitempty"`
	Website     string       `json:"website,omitempty"`
	Description string       `json:"description,omitempty"`
	Category    string       `json:"category,omitempty"`
	Source      Source       `json:"sourceTag"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// Listing is a cleaned, deduplicated and enriched record ready for the store.
type Listing struct {
	ID               string
	Name             string
	Address          string
	City             string
	PostalCode       string
	Phone            string
	Email            string
	Website          string
	Description      string
	Category         string
	InferredCategory string
	Source           Source
	CategoryKey      string
	Coordinates      *Coordinates
	QualityScore     int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// FromRaw copies the raw fields into a fresh Listing.
func FromRaw(r *RawListing) *Listing {
	l := &Listing{
		Name:        r.Name,
		Address:     r.Address,
		City:        r.City,
		PostalCode:  r.PostalCode,
		Phone:       r.Phone,
		Email:       r.Email,
		Website:     r.Website,
		Description: r.Description,
		Category:    r.Category,
		Source:      r.Source,
	}
	if r.Coordinates != nil {
		c := *r.Coordinates
		if c.Accuracy == "" {
			c.Accuracy = AccuracySource
		}
		l.Coordinates = &c
	}
	return l
}

// FullAddress joins street, postal code and city for geocoding lookups.
func (l *Listing) FullAddress() string {
	locality := l.City
	if l.PostalCode != "" && l.PostalCode != UnknownPostalCode {
		locality = strings.TrimSpace(l.PostalCode + " " + l.City)
	}
	switch {
	case l.Address == "":
		return locality
	case locality == "":
		return l.Address
	default:
		return l.Address + ", " + locality
	}
}

// RunStatistics summarises one orchestrator run.
type RunStatistics struct {
	TotalFound      int            `json:"totalFound"`
	TotalProcessed  int            `json:"totalProcessed"`
	// TotalInserted counts new records; TotalUpdated counts records that
	// already existed under the same (name, postal code).
	TotalInserted   int            `json:"totalInserted"`
	TotalUpdated    int            `json:"totalUpdated"`
	SourceBreakdown map[Source]int `json:"sourceBreakdown"`
	ElapsedMs       int64          `json:"elapsedMs"`
	Errors          []string       `json:"errorMessages"`
}

// NewRunStatistics returns zeroed statistics with an initialised breakdown.
func NewRunStatistics() *RunStatistics {
	return &RunStatistics{SourceBreakdown: make(map[Source]int)}
}

// InsightReport holds analytics computed over stored listings.
type InsightReport struct {
	TotalListings    int
	AverageQuality   float64
	GeocodedCount    int
	FallbackCount    int
	BySource         map[Source]int
	ByCategory       map[string]int
	ListingsByCity   map[string]int
	TopQuality       []*Listing
	MissingContactPc float64
}
