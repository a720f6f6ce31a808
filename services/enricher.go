package services

import (
	"context"
	"math/rand"
	"sync"
	"time"
	"unicode/utf8"

	"repairshop-scraper/geocoding"
	"repairshop-scraper/models"
	"repairshop-scraper/utils"
)

// fallbackJitter is the maximum offset, in degrees, added to a centroid so
// fallback listings do not stack on one point.
const fallbackJitter = 0.01

// Quality weights. They sum to 100.
const (
	weightName        = 20
	weightAddress     = 20
	weightPhone       = 15
	weightEmail       = 10
	weightWebsite     = 10
	weightCoordinates = 10
	weightDescription = 15
)

// Minimum lengths, in runes, for a text field to earn its weight.
const (
	minNameLength        = 2
	minAddressLength     = 5
	minDescriptionLength = 20
)

// Enricher adds coordinates, an inferred category and a quality score.
type Enricher struct {
	geocoder geocoding.Geocoder
	mx       *MXVerifier
	logger   *utils.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// EnricherOption customises an Enricher.
type EnricherOption func(*Enricher)

// WithMXVerifier blanks emails whose domain has no MX record.
func WithMXVerifier(v *MXVerifier) EnricherOption {
	return func(e *Enricher) { e.mx = v }
}

// WithRand sets the source used for centroid jitter.
func WithRand(r *rand.Rand) EnricherOption {
	return func(e *Enricher) { e.rng = r }
}

// NewEnricher creates an Enricher. geocoder may be nil, in which case every
// listing without coordinates gets a fallback centroid.
func NewEnricher(geocoder geocoding.Geocoder, logger *utils.Logger, opts ...EnricherOption) *Enricher {
	e := &Enricher{
		geocoder: geocoder,
		logger:   logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process implements Stage. Enrichment never drops a listing.
func (e *Enricher) Process(ctx context.Context, l *models.Listing) *models.Listing {
	if l.Email != "" && e.mx != nil {
		ok, err := e.mx.HasMX(ctx, l.Email)
		switch {
		case err != nil:
			e.logger.Debug("[enricher] MX check for %s failed: %v", l.Email, err)
		case !ok:
			e.logger.Debug("[enricher] Blanking %s: domain has no MX", l.Email)
			l.Email = ""
		}
	}

	if l.Coordinates == nil {
		l.Coordinates = e.locate(ctx, l)
	}

	l.InferredCategory = InferCategory(l.Name + " " + l.Description)
	l.QualityScore = QualityScore(l)
	return l
}

// locate geocodes the listing's address, falling back to the jittered
// department centroid.
func (e *Enricher) locate(ctx context.Context, l *models.Listing) *models.Coordinates {
	if e.geocoder != nil {
		res, err := e.geocoder.Geocode(ctx, l.FullAddress())
		switch {
		case err != nil:
			e.logger.Warn("[enricher] Geocoding %q failed: %v", l.Name, err)
		case res != nil:
			return &models.Coordinates{Lat: res.Lat, Lng: res.Lng, Accuracy: models.AccuracyGeocoded}
		}
	}

	c := regionCentroid(l.PostalCode)
	return &models.Coordinates{
		Lat:      c.lat + e.jitter(),
		Lng:      c.lng + e.jitter(),
		Accuracy: models.AccuracyFallback,
	}
}

func (e *Enricher) jitter() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return (e.rng.Float64()*2 - 1) * fallbackJitter
}

// QualityScore sums the weights of the fields that are present and long
// enough. Each field counts fully or not at all.
func QualityScore(l *models.Listing) int {
	score := 0
	if utf8.RuneCountInString(l.Name) >= minNameLength {
		score += weightName
	}
	if utf8.RuneCountInString(l.Address) >= minAddressLength {
		score += weightAddress
	}
	if l.Phone != "" {
		score += weightPhone
	}
	if l.Email != "" {
		score += weightEmail
	}
	if l.Website != "" {
		score += weightWebsite
	}
	if l.Coordinates != nil {
		score += weightCoordinates
	}
	if utf8.RuneCountInString(l.Description) >= minDescriptionLength {
		score += weightDescription
	}
	return score
}
