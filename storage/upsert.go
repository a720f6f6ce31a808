package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"repairshop-scraper/models"
	"repairshop-scraper/utils"
)

// maxSlugLength bounds the name part of generated IDs.
const maxSlugLength = 48

// Upserter writes processed listings keyed by (name, postal code): known
// keys are updated in place, new ones inserted with a fresh ID.
type Upserter struct {
	store  ListingStore
	logger *utils.Logger
	now    func() time.Time
}

// NewUpserter creates an Upserter over store.
func NewUpserter(store ListingStore, logger *utils.Logger) *Upserter {
	return &Upserter{store: store, logger: logger, now: time.Now}
}

// NewListingID builds "<name-slug>-<base36 millis>-<8 hex chars>".
func NewListingID(name string, at time.Time) string {
	slug := utils.Slugify(name)
	if slug == "" {
		slug = "listing"
	}
	if len(slug) > maxSlugLength {
		slug = slug[:maxSlugLength]
		for len(slug) > 0 && slug[len(slug)-1] == '-' {
			slug = slug[:len(slug)-1]
		}
	}
	return slug + "-" + strconv.FormatInt(at.UnixMilli(), 36) + "-" + uuid.NewString()[:8]
}

// UpsertResult lists the stored records and how many took each branch.
type UpsertResult struct {
	Stored   []*models.Listing
	Inserted int
	Updated  int
}

// Upsert stores every listing under categoryKey. A failing record is logged
// and skipped. An error is returned only when ctx is done or every record
// failed; the result is never nil.
func (u *Upserter) Upsert(ctx context.Context, categoryKey string, listings []*models.Listing) (*UpsertResult, error) {
	res := &UpsertResult{Stored: make([]*models.Listing, 0, len(listings))}
	var lastErr error

	for _, l := range listings {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		s, inserted, err := u.upsertOne(ctx, categoryKey, l)
		if err != nil {
			lastErr = err
			u.logger.Warn("[storage] Skipping %q: %v", l.Name, err)
			continue
		}
		res.Stored = append(res.Stored, s)
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}

	if len(res.Stored) == 0 && lastErr != nil {
		return res, fmt.Errorf("upsert: all %d records failed: %w", len(listings), lastErr)
	}
	return res, nil
}

// upsertOne reports whether the record was inserted rather than updated.
func (u *Upserter) upsertOne(ctx context.Context, categoryKey string, l *models.Listing) (*models.Listing, bool, error) {
	now := u.now().UTC()
	record := *l
	record.CategoryKey = categoryKey
	record.UpdatedAt = now

	existing, err := u.store.FindByKey(ctx, record.Name, record.PostalCode)
	switch {
	case err == nil:
		s, err := u.update(ctx, existing, &record)
		return s, false, err
	case !errors.Is(err, ErrNotFound):
		return nil, false, err
	}

	record.ID = NewListingID(record.Name, now)
	record.CreatedAt = now
	s, err := u.store.Insert(ctx, &record)
	if errors.Is(err, ErrDuplicate) {
		// Another writer took the key between lookup and insert.
		if existing, ferr := u.store.FindByKey(ctx, record.Name, record.PostalCode); ferr == nil {
			s, err := u.update(ctx, existing, &record)
			return s, false, err
		}
	}
	return s, err == nil, err
}

func (u *Upserter) update(ctx context.Context, existing, record *models.Listing) (*models.Listing, error) {
	record.ID = existing.ID
	record.CreatedAt = existing.CreatedAt
	return u.store.Update(ctx, existing.ID, record)
}
