package index

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thetangstr/vehiclesearch/domain"
)

func sampleListing(source, id string) domain.Listing {
	now := time.Now()
	return domain.Listing{
		ID:         domain.StableID(source, id),
		Source:     source,
		SourceID:   id,
		Title:      "2019 Honda Civic EX",
		Make:       "Honda",
		Model:      "Civic",
		Year:       2019,
		Price:      1899900,
		Mileage:    32000,
		CreatedAt:  now,
		UpdatedAt:  now,
		LastSeenAt: now,
		Active:     true,
	}
}

func TestInMemoryStore_UpsertIsIdempotent(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	l := sampleListing("ebay", "123")
	changed, err := s.Upsert(ctx, l)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.Upsert(ctx, l)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestInMemoryStore_UpsertDetectsChange(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	l := sampleListing("ebay", "123")
	_, err := s.Upsert(ctx, l)
	require.NoError(t, err)

	l.Price = 1799900
	changed, err := s.Upsert(ctx, l)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestInMemoryStore_GetNotFound(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Get(context.Background(), "ebay", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInMemoryStore_QueryFiltersByMakeAndYear(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	s.Upsert(ctx, sampleListing("ebay", "1"))
	toyota := sampleListing("ebay", "2")
	toyota.Make = "Toyota"
	toyota.Model = "Camry"
	s.Upsert(ctx, toyota)

	results, total, err := s.Query(ctx, "", domain.FilterSet{Make: "Honda"}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, results, 1)
	assert.Equal(t, "Honda", results[0].Make)
}

func TestInMemoryStore_QueryPaginates(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		l := sampleListing("ebay", string(rune('a'+i)))
		s.Upsert(ctx, l)
	}

	page1, total, err := s.Query(ctx, "", domain.FilterSet{}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, page1, 2)

	page3, _, err := s.Query(ctx, "", domain.FilterSet{}, 3, 2)
	require.NoError(t, err)
	assert.Len(t, page3, 1)
}

func TestInMemoryStore_MarkInactiveExcludesFromQuery(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	l := sampleListing("ebay", "1")
	s.Upsert(ctx, l)

	require.NoError(t, s.MarkInactive(ctx, "ebay", "1"))

	_, total, err := s.Query(ctx, "", domain.FilterSet{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestInMemoryStore_StaleSinceOrdersByLastSeenAscending(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	old := sampleListing("ebay", "old")
	old.LastSeenAt = time.Now().Add(-2 * time.Hour)
	s.Upsert(ctx, old)

	fresh := sampleListing("ebay", "fresh")
	fresh.LastSeenAt = time.Now()
	s.Upsert(ctx, fresh)

	stale, err := s.StaleSince(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].SourceID)
}
