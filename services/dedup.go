package services

import (
	"context"

	"repairshop-scraper/models"
	"repairshop-scraper/utils"
)

// Deduplicator drops listings whose fingerprint was already seen in the
// current run. Call Reset at the start of each run.
type Deduplicator struct {
	seen   *utils.KeySet
	logger *utils.Logger
}

// NewDeduplicator creates an empty Deduplicator.
func NewDeduplicator(logger *utils.Logger) *Deduplicator {
	return &Deduplicator{seen: utils.NewKeySet(), logger: logger}
}

// Fingerprint derives the in-run identity of a cleaned listing from its
// name, address and phone digits.
func Fingerprint(l *models.Listing) string {
	return utils.MatchKey(l.Name) + "|" + utils.MatchKey(l.Address) + "|" + utils.DigitsOnly(l.Phone)
}

// Process implements Stage.
func (d *Deduplicator) Process(_ context.Context, l *models.Listing) *models.Listing {
	if !d.seen.Add(Fingerprint(l)) {
		d.logger.Debug("[dedup] Duplicate skipped: %s (%s)", l.Name, l.Source)
		return nil
	}
	return l
}

// Reset forgets every fingerprint.
func (d *Deduplicator) Reset() {
	d.seen.Reset()
}
