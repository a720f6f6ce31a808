// Package scraper defines the contract shared by every listing source and
// the address heuristics they have in common.
package scraper

import (
	"context"
	"errors"

	"repairshop-scraper/models"
)

// ErrMissingCredentials is returned by Validate when a source cannot run
// without an API key it was not given.
var ErrMissingCredentials = errors.New("missing credentials")

// Collector acquires raw listing records from one external source.
type Collector interface {
	Source() models.Source
	Collect(ctx context.Context, searchTerm, location string, maxResults int) ([]*models.RawListing, error)
}

// Validator is implemented by collectors that can detect misconfiguration
// before any network call.
type Validator interface {
	Validate() error
}
