package services

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"repairshop-scraper/models"
	"repairshop-scraper/utils"
)

func newTestLogger() *utils.Logger { return utils.NewDiscardLogger() }

func TestCleanerTrimsNameAndPhone(t *testing.T) {
	c := NewCleaner(newTestLogger())
	l := models.FromRaw(&models.RawListing{Name: "  Répar Phone  ", Phone: "06 12 34 56 78"})

	got := c.Process(context.Background(), l)
	if got == nil {
		t.Fatal("listing should survive cleaning")
	}
	if got.Name != "Répar Phone" {
		t.Errorf("Name = %q, want %q", got.Name, "Répar Phone")
	}
	if got.Phone != "0612345678" {
		t.Errorf("Phone = %q, want %q", got.Phone, "0612345678")
	}
}

func TestCleanerPhone(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"06 12 34 56 78", "0612345678"},
		{"01.23.45.67.89", "0123456789"},
		{"+33 6 12 34 56 78", "0612345678"},
		{"0033 1 23 45 67 89", "0123456789"},
		{"00 12 34 56 78", ""},
		{"06 12 34", ""},
		{"+44 20 7946 0958", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := cleanPhone(tt.raw); got != tt.want {
			t.Errorf("cleanPhone(%q) = %q; want %q", tt.raw, got, tt.want)
		}
	}
}

func TestCleanerEmail(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{" Contact@Repar.FR ", "contact@repar.fr"},
		{"mailto:info@shop.com", "info@shop.com"},
		{"not-an-email", ""},
		{"a@b", ""},
	}

	for _, tt := range tests {
		if got := cleanEmail(tt.raw); got != tt.want {
			t.Errorf("cleanEmail(%q) = %q; want %q", tt.raw, got, tt.want)
		}
	}
}

func TestCleanerWebsite(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://phonedoctor.fr/contact", "https://phonedoctor.fr/contact"},
		{"www.Repar.fr", "https://www.repar.fr"},
		{"repar.fr/atelier", "https://repar.fr/atelier"},
		{"ftp://files.repar.fr", ""},
		{"mailto:a@b.fr", ""},
		{"tel:+33142000000", ""},
		{"javascript:void(0)", ""},
		{"https://user@evil.fr", ""},
		{"repar.fr:8080/atelier", "https://repar.fr:8080/atelier"},
		{"localhost", ""},
		{"not a url", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := cleanWebsite(tt.raw); got != tt.want {
			t.Errorf("cleanWebsite(%q) = %q; want %q", tt.raw, got, tt.want)
		}
	}
}

func TestCleanerTextRules(t *testing.T) {
	if got := cleanText("Fix <b>It</b> ★ & Co", 200); got != "Fix bIt/b & Co" {
		t.Errorf("cleanText stripped to %q", got)
	}
	if got := cleanText("Cafe\u0301  Re\u0301paration", 200); got != "Café Réparation" {
		t.Errorf("cleanText should compose to NFC, got %q", got)
	}
	long := strings.Repeat("é", MaxNameLength+50)
	if got := cleanText(long, MaxNameLength); len([]rune(got)) != MaxNameLength {
		t.Errorf("cleanText kept %d runes, want %d", len([]rune(got)), MaxNameLength)
	}
}

func TestCleanerPostalCode(t *testing.T) {
	for raw, want := range map[string]string{
		"75001":  "75001",
		" 69002": "69002",
		"7500":   models.UnknownPostalCode,
		"":       models.UnknownPostalCode,
		"ABCDE":  models.UnknownPostalCode,
	} {
		if got := cleanPostalCode(raw); got != want {
			t.Errorf("cleanPostalCode(%q) = %q; want %q", raw, got, want)
		}
	}
}

func TestCleanerDropsEmptyName(t *testing.T) {
	c := NewCleaner(newTestLogger())
	for _, name := range []string{"", "   ", "★★★"} {
		l := models.FromRaw(&models.RawListing{Name: name, Address: "1 rue X"})
		if c.Process(context.Background(), l) != nil {
			t.Errorf("listing named %q should be dropped", name)
		}
	}
}

func TestCleanerIsIdempotent(t *testing.T) {
	c := NewCleaner(newTestLogger())
	inputs := []*models.RawListing{
		{
			Name:        "  L'Atelier   du Smartphone™  ",
			Address:     "12,  Rue de  Paris ",
			City:        " Paris ",
			PostalCode:  "75001",
			Phone:       "+33 6 12 34 56 78",
			Email:       "CONTACT@Atelier.fr",
			Website:     "atelier.fr",
			Description: strings.Repeat("Réparation d'écrans ", 150),
			Category:    "Réparation • mobile",
		},
		{Name: "A", Phone: "bad", Email: "bad", Website: "bad", PostalCode: "x"},
	}

	for _, raw := range inputs {
		once := c.Process(context.Background(), models.FromRaw(raw))
		if once == nil {
			t.Fatalf("listing %q unexpectedly dropped", raw.Name)
		}
		snapshot := *once
		twice := c.Process(context.Background(), once)
		if !reflect.DeepEqual(snapshot, *twice) {
			t.Errorf("cleaning is not idempotent:\nonce:  %+v\ntwice: %+v", snapshot, *twice)
		}
	}
}
