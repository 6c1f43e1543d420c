// Package index implements the persistent, normalized store of every
// listing the aggregator has ever ingested, upserted idempotently by
// (source, source_listing_id). The Postgres-backed Store layers
// github.com/jmoiron/sqlx for struct scanning over database/sql via the
// pgx stdlib driver.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/thetangstr/vehiclesearch/domain"
)

// Store is the Local Index contract. Both the Postgres-backed and
// in-memory implementations satisfy it, so the orchestrator never knows
// which is behind the interface.
type Store interface {
	Upsert(ctx context.Context, listing domain.Listing) (changed bool, err error)
	Get(ctx context.Context, source, sourceID string) (*domain.Listing, error)
	GetByID(ctx context.Context, id string) (*domain.Listing, error)
	Query(ctx context.Context, query string, filters domain.FilterSet, page, perPage int) ([]domain.Listing, int, error)
	MarkInactive(ctx context.Context, source, sourceID string) error
	StaleSince(ctx context.Context, since time.Time, limit int) ([]domain.Listing, error)
	Close() error
}

// PostgresStore persists listings to Postgres via sqlx over the pgx
// stdlib driver.
type PostgresStore struct {
	db *sqlx.DB
}

// Open connects to Postgres using dsn, wrapped in sqlx for the
// Query/Upsert scans below.
func Open(dsn string) (*PostgresStore, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := Migrate(db.DB); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

// Upsert inserts or updates a listing keyed by (source, source_id).
// changed reports whether the stored row was updated, which happens only
// when its title, price, mileage or active flag differed.
func (s *PostgresStore) Upsert(ctx context.Context, l domain.Listing) (bool, error) {
	const q = `
INSERT INTO listings (
	id, source, source_id, ingested_via, title, make, model, year, trim,
	price_minor_units, mileage, body_style, exterior_color, transmission,
	drivetrain, fuel_type, vin, location, zip, dealer_name, listing_url,
	image_urls, description, attributes, features, history,
	created_at, updated_at, last_seen_at, active
) VALUES (
	:id, :source, :source_id, :ingested_via, :title, :make, :model, :year, :trim,
	:price_minor_units, :mileage, :body_style, :exterior_color, :transmission,
	:drivetrain, :fuel_type, :vin, :location, :zip, :dealer_name, :listing_url,
	:image_urls, :description, :attributes, :features, :history,
	:created_at, :updated_at, :last_seen_at, :active
)
ON CONFLICT (source, source_id) DO UPDATE SET
	title = EXCLUDED.title,
	price_minor_units = EXCLUDED.price_minor_units,
	mileage = EXCLUDED.mileage,
	exterior_color = EXCLUDED.exterior_color,
	description = EXCLUDED.description,
	attributes = EXCLUDED.attributes,
	features = EXCLUDED.features,
	history = EXCLUDED.history,
	updated_at = EXCLUDED.updated_at,
	last_seen_at = EXCLUDED.last_seen_at,
	active = EXCLUDED.active
WHERE listings.title IS DISTINCT FROM EXCLUDED.title
   OR listings.price_minor_units IS DISTINCT FROM EXCLUDED.price_minor_units
   OR listings.mileage IS DISTINCT FROM EXCLUDED.mileage
   OR listings.active IS DISTINCT FROM EXCLUDED.active`

	row := toRow(l)
	res, err := s.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return false, fmt.Errorf("upsert listing %s/%s: %w", l.Source, l.SourceID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Get returns the stored listing for (source, sourceID), or
// domain.ErrNotFound when absent.
func (s *PostgresStore) Get(ctx context.Context, source, sourceID string) (*domain.Listing, error) {
	var row listingRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM listings WHERE source = $1 AND source_id = $2`, source, sourceID)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get listing %s/%s: %w", source, sourceID, err)
	}
	l := row.toListing()
	return &l, nil
}

// GetByID returns the stored listing for its stable id, regardless of
// which source originally produced it.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (*domain.Listing, error) {
	var row listingRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM listings WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get listing by id %s: %w", id, err)
	}
	l := row.toListing()
	return &l, nil
}

// Query runs a filtered, paginated scan over the index. buildWhere pushes
// the cheap scalar predicates (make, year, price, mileage) into SQL; the remaining
// FilterSet predicates, shared verbatim with InMemoryStore via
// matchesFilters, are applied in Go over the narrowed row set so both
// backends agree on exactly which listings match.
func (s *PostgresStore) Query(ctx context.Context, query string, filters domain.FilterSet, page, perPage int) ([]domain.Listing, int, error) {
	where, args := buildWhere(filters)
	listQ := "SELECT * FROM listings WHERE active = true" + where + " ORDER BY last_seen_at DESC"
	var rows []listingRow
	if err := s.db.SelectContext(ctx, &rows, listQ, args...); err != nil {
		return nil, 0, fmt.Errorf("query listings: %w", err)
	}

	matches := make([]domain.Listing, 0, len(rows))
	for _, r := range rows {
		l := r.toListing()
		if matchesFilters(l, query, filters) {
			matches = append(matches, l)
		}
	}

	total := len(matches)
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return append([]domain.Listing(nil), matches[start:end]...), total, nil
}

// MarkInactive flags a listing as no longer live without deleting it.
func (s *PostgresStore) MarkInactive(ctx context.Context, source, sourceID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE listings SET active = false, updated_at = now() WHERE source = $1 AND source_id = $2`,
		source, sourceID)
	return err
}

// StaleSince returns active listings last seen before the given time, the
// feed the Freshness Manager's background refresh scheduler consumes.
func (s *PostgresStore) StaleSince(ctx context.Context, since time.Time, limit int) ([]domain.Listing, error) {
	var rows []listingRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM listings WHERE active = true AND last_seen_at < $1 ORDER BY last_seen_at ASC LIMIT $2`,
		since, limit)
	if err != nil {
		return nil, fmt.Errorf("query stale listings: %w", err)
	}
	out := make([]domain.Listing, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toListing())
	}
	return out, nil
}

func buildWhere(f domain.FilterSet) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	add := func(clause string, val interface{}) {
		args = append(args, val)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.Make != "" {
		add("LOWER(make) = LOWER($%d)", f.Make)
	}
	if f.YearMin != 0 {
		add("year >= $%d", f.YearMin)
	}
	if f.YearMax != 0 {
		add("year <= $%d", f.YearMax)
	}
	if f.PriceMin != 0 {
		add("price_minor_units >= $%d", int64(f.PriceMin))
	}
	if f.PriceMax != 0 {
		add("price_minor_units <= $%d", int64(f.PriceMax))
	}
	if f.MileageMax != 0 {
		add("mileage <= $%d", f.MileageMax)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(clauses, " AND "), args
}

// matchesFilters is the single source of truth for FilterSet predicate
// semantics, shared by PostgresStore.Query (applied over the SQL-narrowed
// row set) and InMemoryStore.Query. query is the residual free-text query,
// matched case-insensitively against title and description.
func matchesFilters(l domain.Listing, query string, f domain.FilterSet) bool {
	if query != "" &&
		!strings.Contains(strings.ToLower(l.Title), strings.ToLower(query)) &&
		!strings.Contains(strings.ToLower(l.Description), strings.ToLower(query)) {
		return false
	}
	if f.Make != "" && !strings.EqualFold(l.Make, f.Make) {
		return false
	}
	if len(f.Model) > 0 {
		found := false
		for _, m := range f.Model {
			if strings.EqualFold(l.Model, m) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.YearMin != 0 && l.Year < f.YearMin {
		return false
	}
	if f.YearMax != 0 && l.Year > f.YearMax {
		return false
	}
	if f.PriceMin != 0 && l.Price < f.PriceMin {
		return false
	}
	if f.PriceMax != 0 && l.Price > f.PriceMax {
		return false
	}
	if f.MileageMin != 0 && l.Mileage < f.MileageMin {
		return false
	}
	if f.MileageMax != 0 && l.Mileage > f.MileageMax {
		return false
	}
	if f.BodyStyle != "" && !strings.EqualFold(l.BodyStyle, f.BodyStyle) {
		return false
	}
	if len(f.ExteriorColor) > 0 {
		found := false
		for _, c := range f.ExteriorColor {
			if strings.EqualFold(l.ExteriorColor, c) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	// A null color never matches an exclusion: only a listing that
	// actually names a color can be excluded by it.
	if l.ExteriorColor != "" {
		for _, excluded := range f.ExcludeColors {
			if excluded != "" && strings.Contains(strings.ToLower(l.ExteriorColor), strings.ToLower(excluded)) {
				return false
			}
		}
	}
	if f.Transmission != "" && !strings.EqualFold(l.Transmission, f.Transmission) {
		return false
	}
	if f.Drivetrain != "" && !strings.EqualFold(l.Drivetrain, f.Drivetrain) {
		return false
	}
	if f.FuelType != "" && !strings.EqualFold(l.FuelType, f.FuelType) {
		return false
	}
	for _, feat := range f.RequiredFeatures {
		if !l.Features[feat] {
			return false
		}
	}
	if f.CleanTitleOnly && l.History["salvage_title"] {
		return false
	}
	if f.NoAccidents && l.History["accident"] {
		return false
	}
	if f.OneOwnerOnly && !l.History["one_owner"] {
		return false
	}
	if f.CertifiedOnly && !l.Features["certified"] {
		return false
	}
	return true
}

// InMemoryStore is a lightweight Store used by tests and local
// development when POSTGRES_DSN is unset, satisfying the same interface
// as PostgresStore.
type InMemoryStore struct {
	mu       sync.RWMutex
	byKey    map[string]domain.Listing
}

// NewInMemoryStore builds an empty in-memory index.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byKey: make(map[string]domain.Listing)}
}

func indexKey(source, sourceID string) string { return source + "::" + sourceID }

func (s *InMemoryStore) Upsert(ctx context.Context, l domain.Listing) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := indexKey(l.Source, l.SourceID)
	existing, ok := s.byKey[k]
	if ok && existing.Price == l.Price && existing.Mileage == l.Mileage &&
		existing.Title == l.Title && existing.Active == l.Active {
		existing.LastSeenAt = l.LastSeenAt
		s.byKey[k] = existing
		return false, nil
	}
	s.byKey[k] = l
	return true, nil
}

func (s *InMemoryStore) Get(ctx context.Context, source, sourceID string) (*domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.byKey[indexKey(source, sourceID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := l
	return &cp, nil
}

func (s *InMemoryStore) GetByID(ctx context.Context, id string) (*domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.byKey {
		if l.ID == id {
			cp := l
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *InMemoryStore) Query(ctx context.Context, query string, filters domain.FilterSet, page, perPage int) ([]domain.Listing, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]domain.Listing, 0, len(s.byKey))
	for _, l := range s.byKey {
		if !l.Active {
			continue
		}
		if matchesFilters(l, query, filters) {
			matches = append(matches, l)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].LastSeenAt.After(matches[j].LastSeenAt) })

	total := len(matches)
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return append([]domain.Listing(nil), matches[start:end]...), total, nil
}

func (s *InMemoryStore) MarkInactive(ctx context.Context, source, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := indexKey(source, sourceID)
	l, ok := s.byKey[k]
	if !ok {
		return domain.ErrNotFound
	}
	l.Active = false
	s.byKey[k] = l
	return nil
}

func (s *InMemoryStore) StaleSince(ctx context.Context, since time.Time, limit int) ([]domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Listing
	for _, l := range s.byKey {
		if l.Active && l.LastSeenAt.Before(since) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeenAt.Before(out[j].LastSeenAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
