package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repairshop-scraper/models"
	"repairshop-scraper/utils"
)

func newSQLite(t *testing.T) ListingStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleListing(name, postal string) *models.Listing {
	return &models.Listing{
		Name:             name,
		Address:          "12 rue de la Paix",
		City:             "Paris",
		PostalCode:       postal,
		Phone:            "0142000000",
		Email:            "contact@example.fr",
		Website:          "https://example.fr",
		Description:      "Réparation d'écrans et de batteries",
		InferredCategory: "phone_repair",
		Source:           models.SourceSearchAPI,
		Coordinates:      &models.Coordinates{Lat: 48.8686, Lng: 2.3314, Accuracy: models.AccuracyGeocoded},
		QualityScore:     100,
	}
}

func stores(t *testing.T) map[string]ListingStore {
	return map[string]ListingStore{
		"sqlite": newSQLite(t),
		"memory": NewMemoryStore(),
	}
}

func TestUpsertIsIdempotentOnNaturalKey(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u := NewUpserter(store, utils.NewDiscardLogger())

			first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
			u.now = func() time.Time { return first }
			res, err := u.Upsert(ctx, "phones", []*models.Listing{sampleListing("Atelier Mobile", "75002")})
			require.NoError(t, err)
			require.Len(t, res.Stored, 1)
			assert.Equal(t, 1, res.Inserted)
			assert.Zero(t, res.Updated)
			id := res.Stored[0].ID

			second := first.Add(time.Hour)
			u.now = func() time.Time { return second }
			again := sampleListing("Atelier Mobile", "75002")
			again.Phone = "0143000000"
			res, err = u.Upsert(ctx, "phones", []*models.Listing{again})
			require.NoError(t, err)
			require.Len(t, res.Stored, 1)
			assert.Zero(t, res.Inserted)
			assert.Equal(t, 1, res.Updated)

			all, err := store.FetchAll(ctx)
			require.NoError(t, err)
			require.Len(t, all, 1)

			got := all[0]
			assert.Equal(t, id, got.ID)
			assert.Equal(t, "0143000000", got.Phone)
			assert.Equal(t, "phones", got.CategoryKey)
			assert.True(t, got.CreatedAt.Equal(first), "created_at %v", got.CreatedAt)
			assert.True(t, got.UpdatedAt.Equal(second), "updated_at %v", got.UpdatedAt)
		})
	}
}

func TestUpsertDistinguishesPostalCodes(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u := NewUpserter(store, utils.NewDiscardLogger())

			_, err := u.Upsert(ctx, "", []*models.Listing{
				sampleListing("Atelier Mobile", "75002"),
				sampleListing("Atelier Mobile", "69001"),
			})
			require.NoError(t, err)

			all, err := store.FetchAll(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 2)
			assert.NotEqual(t, all[0].ID, all[1].ID)
		})
	}
}

func TestStoreRoundTripsFields(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := sampleListing("Répar'Phone", "75011")
			l.ID = "repar-phone-1"
			l.CreatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			l.UpdatedAt = l.CreatedAt

			_, err := store.Insert(ctx, l)
			require.NoError(t, err)

			got, err := store.FindByKey(ctx, "Répar'Phone", "75011")
			require.NoError(t, err)
			assert.Equal(t, l.Name, got.Name)
			assert.Equal(t, l.Description, got.Description)
			assert.Equal(t, l.Source, got.Source)
			require.NotNil(t, got.Coordinates)
			assert.InDelta(t, 48.8686, got.Coordinates.Lat, 1e-9)
			assert.Equal(t, models.AccuracyGeocoded, got.Coordinates.Accuracy)
			assert.True(t, got.CreatedAt.Equal(l.CreatedAt))
		})
	}
}

func TestStoreWithoutCoordinates(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := sampleListing("Sans GPS", "00000")
			l.ID = "sans-gps"
			l.Coordinates = nil

			_, err := store.Insert(ctx, l)
			require.NoError(t, err)

			got, err := store.FindByKey(ctx, "Sans GPS", "00000")
			require.NoError(t, err)
			assert.Nil(t, got.Coordinates)
		})
	}
}

func TestStoreErrors(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.FindByKey(ctx, "missing", "75001")
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = store.Update(ctx, "missing-id", sampleListing("x", "75001"))
			assert.ErrorIs(t, err, ErrNotFound)

			l := sampleListing("Twice", "75001")
			l.ID = "a"
			_, err = store.Insert(ctx, l)
			require.NoError(t, err)
			l.ID = "b"
			_, err = store.Insert(ctx, l)
			assert.ErrorIs(t, err, ErrDuplicate)
		})
	}
}

type failingStore struct {
	*MemoryStore
}

func (f failingStore) Insert(context.Context, *models.Listing) (*models.Listing, error) {
	return nil, errors.New("disk full")
}

func TestUpsertSkipsFailedRecords(t *testing.T) {
	u := NewUpserter(failingStore{NewMemoryStore()}, utils.NewDiscardLogger())

	res, err := u.Upsert(context.Background(), "", []*models.Listing{sampleListing("A", "75001")})
	assert.Empty(t, res.Stored)
	assert.Zero(t, res.Inserted+res.Updated)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	res, err = u.Upsert(context.Background(), "", nil)
	assert.NoError(t, err)
	assert.Empty(t, res.Stored)
}

func TestUpsertStopsOnCancelledContext(t *testing.T) {
	u := NewUpserter(NewMemoryStore(), utils.NewDiscardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := u.Upsert(ctx, "", []*models.Listing{sampleListing("A", "75001")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewListingID(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	id := NewListingID("Atelier Réparation Écran", at)
	assert.Regexp(t, regexp.MustCompile(`^atelier-reparation-ecran-[0-9a-z]+-[0-9a-f]{8}$`), id)
	assert.NotEqual(t, id, NewListingID("Atelier Réparation Écran", at))

	assert.True(t, strings.HasPrefix(NewListingID("!!!", at), "listing-"))

	long := NewListingID(strings.Repeat("abc ", 40), at)
	slug := long[:strings.LastIndex(long[:strings.LastIndex(long, "-")], "-")]
	assert.LessOrEqual(t, len(slug), maxSlugLength)
	assert.False(t, strings.HasSuffix(slug, "-"))
}

func TestRebind(t *testing.T) {
	pg := &sqlStore{dialect: postgresDialect()}
	assert.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))

	lite := &sqlStore{dialect: sqliteDialect()}
	assert.Equal(t, "a = ? AND b = ?", lite.rebind("a = ? AND b = ?"))
}

func TestTimestampScan(t *testing.T) {
	want := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	for _, src := range []any{want, want.Format(time.RFC3339Nano), []byte("2026-05-06 07:08:09"), want.UnixNano()} {
		var ts timestamp
		require.NoError(t, ts.Scan(src), "%T", src)
		assert.True(t, ts.Equal(want), "%T gave %v", src, ts.Time)
	}

	var ts timestamp
	assert.Error(t, ts.Scan("yesterday"))
	assert.Error(t, ts.Scan(3.5))
}

func TestCSVWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "raw.csv")
	w, err := NewCSVWriter(path)
	require.NoError(t, err)

	err = w.WriteRaw([]*models.RawListing{
		{Source: models.SourceBrowser, Name: "Atelier, \"Mobile\"", PostalCode: "75002", City: "Paris",
			Coordinates: &models.Coordinates{Lat: 48.5, Lng: 2.25}},
		{Source: models.SourceAI, Name: "Fix Lyon", City: "Lyon"},
	})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, rawCSVHeader, rows[0])
	assert.Equal(t, "Atelier, \"Mobile\"", rows[1][1])
	assert.Equal(t, "48.5", rows[1][10])
	assert.Equal(t, "ai", rows[2][0])
	assert.Equal(t, "", rows[2][11])
}
