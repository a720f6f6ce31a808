package services

import (
	"context"
	"testing"

	"repairshop-scraper/models"
)

func TestQualityScoreWeightsSumTo100(t *testing.T) {
	sum := weightName + weightAddress + weightPhone + weightEmail +
		weightWebsite + weightCoordinates + weightDescription
	if sum != 100 {
		t.Errorf("weights sum to %d, want 100", sum)
	}
}

func TestQualityScoreNoPartialCredit(t *testing.T) {
	tests := []struct {
		name string
		l    models.Listing
		want int
	}{
		{"empty", models.Listing{}, 0},
		{"one-letter name", models.Listing{Name: "A"}, 0},
		{"name only", models.Listing{Name: "AB"}, weightName},
		{"short address", models.Listing{Address: "1 r"}, 0},
		{"address", models.Listing{Address: "1 rue"}, weightAddress},
		{"short description", models.Listing{Description: "too short"}, 0},
		{"contact fields", models.Listing{Phone: "0600000000", Email: "a@b.fr", Website: "https://b.fr"},
			weightPhone + weightEmail + weightWebsite},
		{"coordinates", models.Listing{Coordinates: &models.Coordinates{}}, weightCoordinates},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := QualityScore(&tt.l); got != tt.want {
				t.Errorf("QualityScore = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestInferCategory(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Réparation Téléphone et Ordinateur", "phone_repair"},
		{"Dépannage informatique", "computer_repair"},
		{"Atelier PS5 & Xbox", "console_repair"},
		{"Réparation lave-linge", "appliance_repair"},
		{"Machine à laver", DefaultCategory},
		{"Le Cycle Parisien", "bike_repair"},
		{"Recyclage", DefaultCategory},
		{"Horlogerie Dupont", "watch_jewelry_repair"},
		{"Cordonnerie du Marché", "shoe_repair"},
		{"Retouches express", "clothing_repair"},
		{"", DefaultCategory},
	}

	for _, tt := range tests {
		if got := InferCategory(tt.text); got != tt.want {
			t.Errorf("InferCategory(%q) = %q; want %q", tt.text, got, tt.want)
		}
	}
}

func TestRegionCentroid(t *testing.T) {
	if got := regionCentroid("69000"); got != departmentCentroids["69"] {
		t.Errorf("69000 → %v, want Lyon", got)
	}
	if got := regionCentroid("06200"); got != departmentCentroids["06"] {
		t.Errorf("06200 → %v, want Nice", got)
	}
	for _, pc := range []string{models.UnknownPostalCode, "97400", "", "12"} {
		if got := regionCentroid(pc); got != nationalCentroid {
			t.Errorf("%q → %v, want national centroid", pc, got)
		}
	}
}

func TestEnricherBlanksEmailWithoutMX(t *testing.T) {
	addr := startTestDNS(t)
	e := NewEnricher(nil, newTestLogger(), WithMXVerifier(NewMXVerifier(addr, 0)))

	withMX := e.Process(context.Background(), &models.Listing{Name: "A", Email: "shop@example.fr"})
	if withMX.Email != "shop@example.fr" {
		t.Errorf("email with MX was blanked")
	}
	noMX := e.Process(context.Background(), &models.Listing{Name: "B", Email: "shop@nomx.fr"})
	if noMX.Email != "" {
		t.Errorf("email without MX kept: %q", noMX.Email)
	}
}
