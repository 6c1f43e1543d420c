package index

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/thetangstr/vehiclesearch/domain"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return &PostgresStore{db: sqlx.NewDb(db, "pgx")}, mock
}

func TestPostgresStore_GetReturnsNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT \\* FROM listings").
		WithArgs("ebay", "missing").
		WillReturnRows(sqlmock.NewRows(nil))

	_, err := store.Get(context.Background(), "ebay", "missing")
	require.Error(t, err)
}

func TestPostgresStore_GetScansRow(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	cols := []string{
		"id", "source", "source_id", "ingested_via", "title", "make", "model", "year", "trim",
		"price_minor_units", "mileage", "body_style", "exterior_color", "transmission",
		"drivetrain", "fuel_type", "vin", "location", "zip", "dealer_name", "listing_url",
		"image_urls", "description", "attributes", "features", "history",
		"created_at", "updated_at", "last_seen_at", "active",
	}
	rows := sqlmock.NewRows(cols).AddRow(
		domain.StableID("ebay", "1"), "ebay", "1", "api", "2019 Honda Civic", "Honda", "Civic", 2019, nil,
		int64(1899900), 32000, nil, nil, nil,
		nil, nil, nil, nil, nil, nil, "https://example.com/1",
		[]byte("[]"), nil, []byte("{}"), []byte("{}"), []byte("{}"),
		now, now, now, true,
	)
	mock.ExpectQuery("SELECT \\* FROM listings").WithArgs("ebay", "1").WillReturnRows(rows)

	l, err := store.Get(context.Background(), "ebay", "1")
	require.NoError(t, err)
	require.Equal(t, "Honda", l.Make)
	require.Equal(t, domain.PriceMinorUnits(1899900), l.Price)
}
