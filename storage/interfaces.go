package storage

import (
	"context"
	"errors"

	"repairshop-scraper/models"
)

// ErrNotFound is returned when no listing matches a lookup.
var ErrNotFound = errors.New("listing not found")

// ErrDuplicate is returned by Insert when the (name, postal code) key is
// already taken.
var ErrDuplicate = errors.New("listing already exists")

// ListingStore is the interface any storage backend must satisfy. Listings
// are unique by (Name, PostalCode).
type ListingStore interface {
	FindByKey(ctx context.Context, name, postalCode string) (*models.Listing, error)
	Insert(ctx context.Context, l *models.Listing) (*models.Listing, error)
	Update(ctx context.Context, id string, l *models.Listing) (*models.Listing, error)
	FetchAll(ctx context.Context) ([]*models.Listing, error)
	Close() error
}

// RawListingWriter is the interface for persisting unprocessed scraped data.
type RawListingWriter interface {
	WriteRaw(listings []*models.RawListing) error
	Close() error
}
