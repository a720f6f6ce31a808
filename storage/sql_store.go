package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"repairshop-scraper/models"
)

const listingColumns = `id, category_key, name, address, city, postal_code, phone, email,
	website, description, category, inferred_category, source,
	lat, lng, accuracy, quality_score, created_at, updated_at`

// dialect captures the differences between the SQL backends.
type dialect struct {
	name string
	// placeholder renders the n-th (1-based) bind parameter.
	placeholder func(n int) string
	// timeArg converts a timestamp into a bind value.
	timeArg func(t time.Time) any
	schema  []string
}

// sqlStore implements ListingStore over database/sql. Queries are written
// with "?" placeholders and rebound for the dialect.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
}

func (s *sqlStore) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind replaces every "?" with the dialect's placeholder.
func (s *sqlStore) rebind(query string) string {
	if s.dialect.placeholder == nil {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(s.dialect.placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) FindByKey(ctx context.Context, name, postalCode string) (*models.Listing, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+listingColumns+` FROM listings WHERE name = ? AND postal_code = ?`),
		name, postalCode)

	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: find: %w", s.dialect.name, err)
	}
	return l, nil
}

func (s *sqlStore) Insert(ctx context.Context, l *models.Listing) (*models.Listing, error) {
	args := append([]any{l.ID}, s.values(l)...)
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO listings (`+listingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%s: insert %q: %w", s.dialect.name, l.Name, ErrDuplicate)
		}
		return nil, fmt.Errorf("%s: insert %q: %w", s.dialect.name, l.Name, err)
	}
	stored := *l
	return &stored, nil
}

func (s *sqlStore) Update(ctx context.Context, id string, l *models.Listing) (*models.Listing, error) {
	args := append(s.values(l), id)
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE listings SET
			category_key = ?, name = ?, address = ?, city = ?, postal_code = ?,
			phone = ?, email = ?, website = ?, description = ?, category = ?,
			inferred_category = ?, source = ?, lat = ?, lng = ?, accuracy = ?,
			quality_score = ?, created_at = ?, updated_at = ?
		WHERE id = ?
	`), args...)
	if err != nil {
		return nil, fmt.Errorf("%s: update %s: %w", s.dialect.name, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	stored := *l
	stored.ID = id
	return &stored, nil
}

// FetchAll retrieves all stored listings, used by the insight service.
func (s *sqlStore) FetchAll(ctx context.Context) ([]*models.Listing, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+listingColumns+` FROM listings ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch all: %w", s.dialect.name, err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", s.dialect.name, err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

// values returns every column after id, in listingColumns order.
func (s *sqlStore) values(l *models.Listing) []any {
	var lat, lng sql.NullFloat64
	var accuracy string
	if l.Coordinates != nil {
		lat = sql.NullFloat64{Float64: l.Coordinates.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: l.Coordinates.Lng, Valid: true}
		accuracy = l.Coordinates.Accuracy
	}
	return []any{
		l.CategoryKey, l.Name, l.Address, l.City, l.PostalCode,
		l.Phone, l.Email, l.Website, l.Description, l.Category,
		l.InferredCategory, string(l.Source), lat, lng, accuracy,
		l.QualityScore, s.dialect.timeArg(l.CreatedAt), s.dialect.timeArg(l.UpdatedAt),
	}
}

// isUniqueViolation recognises unique-constraint errors from either driver.
func isUniqueViolation(err error) bool {
	return isPQUniqueViolation(err) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*models.Listing, error) {
	var (
		l                  models.Listing
		source, accuracy   string
		lat, lng           sql.NullFloat64
		createdAt, updated timestamp
	)
	if err := row.Scan(
		&l.ID, &l.CategoryKey, &l.Name, &l.Address, &l.City, &l.PostalCode,
		&l.Phone, &l.Email, &l.Website, &l.Description, &l.Category,
		&l.InferredCategory, &source, &lat, &lng, &accuracy,
		&l.QualityScore, &createdAt, &updated,
	); err != nil {
		return nil, err
	}
	l.Source = models.Source(source)
	if lat.Valid && lng.Valid {
		l.Coordinates = &models.Coordinates{Lat: lat.Float64, Lng: lng.Float64, Accuracy: accuracy}
	}
	l.CreatedAt = createdAt.Time
	l.UpdatedAt = updated.Time
	return &l, nil
}

// timestamp scans native time values as well as the text and integer forms
// SQLite hands back.
type timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (t *timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v
		return nil
	case int64:
		t.Time = time.Unix(0, v).UTC()
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("timestamp: unsupported type %T", src)
	}
}

func (t *timestamp) parse(s string) error {
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		t.Time = time.Unix(0, n).UTC()
		return nil
	}
	return fmt.Errorf("timestamp: cannot parse %q", s)
}
