package services

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"repairshop-scraper/geocoding"
	"repairshop-scraper/models"
)

// stubGeocoder returns a fixed result or error and counts calls.
type stubGeocoder struct {
	result *geocoding.Result
	err    error
	calls  []string
}

func (g *stubGeocoder) Geocode(_ context.Context, address string) (*geocoding.Result, error) {
	g.calls = append(g.calls, address)
	return g.result, g.err
}

func newTestPipeline(g geocoding.Geocoder) *Pipeline {
	enricher := NewEnricher(g, newTestLogger(), WithRand(rand.New(rand.NewSource(1))))
	return NewDefaultPipeline(enricher, newTestLogger())
}

func TestPipelineDropsCrossSourceDuplicates(t *testing.T) {
	p := newTestPipeline(&stubGeocoder{})
	raws := []*models.RawListing{
		{Name: "ABC Repair", Address: "1 Rue X", Phone: "0600000000", Source: models.SourceBrowser},
		{Name: " abc  repair", Address: "1 rue x", Phone: "06 00 00 00 00", Source: models.SourceSearchAPI},
	}

	got, err := p.Run(context.Background(), raws)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d listings, want 1", len(got))
	}
	if got[0].Source != models.SourceBrowser {
		t.Errorf("survivor source = %s, want the first record (browser)", got[0].Source)
	}
}

func TestPipelineResetForgetsFingerprints(t *testing.T) {
	p := newTestPipeline(&stubGeocoder{})
	raw := []*models.RawListing{{Name: "ABC Repair", Address: "1 Rue X"}}

	if got, _ := p.Run(context.Background(), raw); len(got) != 1 {
		t.Fatalf("first run kept %d, want 1", len(got))
	}
	if got, _ := p.Run(context.Background(), raw); len(got) != 0 {
		t.Fatalf("second run without reset kept %d, want 0", len(got))
	}
	p.Reset()
	if got, _ := p.Run(context.Background(), raw); len(got) != 1 {
		t.Fatalf("run after reset kept %d, want 1", len(got))
	}
}

func TestPipelineFallbackCentroidWhenGeocoderEmpty(t *testing.T) {
	g := &stubGeocoder{}
	p := newTestPipeline(g)

	got, _ := p.Run(context.Background(), []*models.RawListing{
		{Name: "Lyon Fix", Address: "3 rue Mercière", PostalCode: "69000", City: "Lyon"},
	})
	if len(got) != 1 {
		t.Fatalf("got %d listings, want 1", len(got))
	}
	c := got[0].Coordinates
	if c == nil {
		t.Fatal("coordinates should be set")
	}
	if c.Accuracy != models.AccuracyFallback {
		t.Errorf("Accuracy = %q, want fallback", c.Accuracy)
	}
	lyon := departmentCentroids["69"]
	if math.Abs(c.Lat-lyon.lat) > fallbackJitter || math.Abs(c.Lng-lyon.lng) > fallbackJitter {
		t.Errorf("coordinates %v,%v not within jitter of Lyon centroid", c.Lat, c.Lng)
	}
	if len(g.calls) != 1 || g.calls[0] != "3 rue Mercière, 69000 Lyon" {
		t.Errorf("geocoder calls = %v", g.calls)
	}
}

func TestPipelineGeocoderErrorFallsBackToNational(t *testing.T) {
	p := newTestPipeline(&stubGeocoder{err: errors.New("503")})

	got, _ := p.Run(context.Background(), []*models.RawListing{{Name: "Somewhere Fix"}})
	c := got[0].Coordinates
	if c.Accuracy != models.AccuracyFallback {
		t.Errorf("Accuracy = %q, want fallback", c.Accuracy)
	}
	if math.Abs(c.Lat-nationalCentroid.lat) > fallbackJitter {
		t.Errorf("lat %v not near national centroid", c.Lat)
	}
}

func TestPipelineKeepsSourceCoordinates(t *testing.T) {
	g := &stubGeocoder{result: &geocoding.Result{Lat: 1, Lng: 2}}
	p := newTestPipeline(g)

	got, _ := p.Run(context.Background(), []*models.RawListing{
		{Name: "Has Coords", Coordinates: &models.Coordinates{Lat: 48.1, Lng: -1.6}},
		{Name: "Needs Coords", Address: "5 place Bellecour", PostalCode: "69002", City: "Lyon"},
	})
	if len(got) != 2 {
		t.Fatalf("got %d listings, want 2", len(got))
	}
	if got[0].Coordinates.Accuracy != models.AccuracySource || got[0].Coordinates.Lat != 48.1 {
		t.Errorf("source coordinates changed: %+v", got[0].Coordinates)
	}
	if got[1].Coordinates.Accuracy != models.AccuracyGeocoded || got[1].Coordinates.Lat != 1 {
		t.Errorf("geocoded coordinates wrong: %+v", got[1].Coordinates)
	}
	if len(g.calls) != 1 {
		t.Errorf("geocoder called %d times, want 1", len(g.calls))
	}
}

func TestPipelineQualityScoreBounds(t *testing.T) {
	p := newTestPipeline(nil)
	raws := []*models.RawListing{
		{Name: "X"},
		{Name: "Full Record Repair", Address: "10 rue de Rivoli", PostalCode: "75004", City: "Paris",
			Phone: "0140000000", Email: "a@full.fr", Website: "full.fr",
			Description: "Réparation de smartphones et tablettes toutes marques"},
		{Name: "Partial", Address: "1 rue", Phone: "bad", Description: "short"},
	}

	got, _ := p.Run(context.Background(), raws)
	if len(got) != 3 {
		t.Fatalf("got %d listings, want 3", len(got))
	}
	for _, l := range got {
		if l.QualityScore < 0 || l.QualityScore > 100 {
			t.Errorf("%s: QualityScore %d out of bounds", l.Name, l.QualityScore)
		}
	}
	if got[0].QualityScore != weightCoordinates {
		t.Errorf("minimal record score = %d, want %d", got[0].QualityScore, weightCoordinates)
	}
	if got[1].QualityScore != 100 {
		t.Errorf("full record score = %d, want 100", got[1].QualityScore)
	}
	if got[1].InferredCategory != "phone_repair" {
		t.Errorf("InferredCategory = %q, want phone_repair", got[1].InferredCategory)
	}
}

func TestPipelineStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := newTestPipeline(nil).Run(ctx, []*models.RawListing{{Name: "A"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d listings, want 0", len(got))
	}
}
