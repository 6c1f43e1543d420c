package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thetangstr/vehiclesearch/domain"
)

func priority(source string) int {
	p := map[string]int{"local": 0, "ebay": 10, "marketcheck": 20}
	return p[source]
}

func TestScore_OrdersByDescendingWeightedSum(t *testing.T) {
	now := time.Now()
	cheap := domain.Listing{Source: "ebay", SourceID: "1", Title: "Honda Civic", Price: 1000000, Mileage: 20000, LastSeenAt: now}
	expensive := domain.Listing{Source: "ebay", SourceID: "2", Title: "Honda Civic", Price: 3000000, Mileage: 20000, LastSeenAt: now}

	s := NewScorer(DefaultWeights)
	scored := s.Score([]domain.Listing{expensive, cheap}, QueryContext{MedianPrice: 1500000, MedianMileage: 20000, Now: now}, priority)

	require.Len(t, scored, 2)
	assert.Equal(t, "1", scored[0].Listing.SourceID)
}

func TestScore_EmptyInputReturnsNil(t *testing.T) {
	s := NewScorer(DefaultWeights)
	scored := s.Score(nil, QueryContext{}, priority)
	assert.Nil(t, scored)
}

func TestScore_TieBreaksByLastSeenThenStableID(t *testing.T) {
	now := time.Now()
	newer := domain.Listing{ID: "b", Source: "marketcheck", SourceID: "z", LastSeenAt: now}
	older := domain.Listing{ID: "a", Source: "ebay", SourceID: "a", LastSeenAt: now.Add(-time.Hour)}

	s := NewScorer(DefaultWeights)
	scored := s.Score([]domain.Listing{older, newer}, QueryContext{Now: now}, priority)
	require.Len(t, scored, 2)
	assert.Equal(t, "marketcheck", scored[0].Listing.Source) // more recently seen wins regardless of source priority

	tiedA := domain.Listing{ID: "a", Source: "marketcheck", LastSeenAt: now}
	tiedB := domain.Listing{ID: "b", Source: "ebay", LastSeenAt: now}
	scored = s.Score([]domain.Listing{tiedB, tiedA}, QueryContext{Now: now}, priority)
	require.Len(t, scored, 2)
	assert.Equal(t, "a", scored[0].Listing.ID) // equal last_seen_at, lower stable id wins
}

func TestScore_IsDeterministic(t *testing.T) {
	now := time.Now()
	listings := []domain.Listing{
		{Source: "ebay", SourceID: "1", Title: "civic", Price: 1000000, Mileage: 10000, LastSeenAt: now},
		{Source: "ebay", SourceID: "2", Title: "civic", Price: 1000000, Mileage: 10000, LastSeenAt: now},
	}
	s := NewScorer(DefaultWeights)
	qc := QueryContext{ResidualQuery: "civic", MedianPrice: 1000000, MedianMileage: 10000, Now: now}

	r1 := s.Score(listings, qc, priority)
	r2 := s.Score(listings, qc, priority)
	assert.Equal(t, r1[0].Components.WeightedSum, r2[0].Components.WeightedSum)
	assert.Equal(t, r1[1].Components.WeightedSum, r2[1].Components.WeightedSum)
}

func TestPaginate_PagePastEndReturnsNil(t *testing.T) {
	scored := make([]Scored, 5)
	result := Paginate(scored, 10, 20)
	assert.Nil(t, result)
}

func TestPaginate_ReturnsRequestedSlice(t *testing.T) {
	scored := make([]Scored, 25)
	page := Paginate(scored, 2, 10)
	assert.Len(t, page, 10)
}

func TestPaginate_DefaultsInvalidInputs(t *testing.T) {
	scored := make([]Scored, 5)
	page := Paginate(scored, 0, 0)
	assert.Len(t, page, 5)
}
