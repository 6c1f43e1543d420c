package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thetangstr/vehiclesearch/domain"
)

func defaultPriority(source string) int {
	p := map[string]int{"local": 0, "ebay": 10, "marketcheck": 20, "autotrader": 40}
	return p[source]
}

func TestFingerprint_SameVINCollides(t *testing.T) {
	a := domain.Listing{VIN: "1hgcm82633a004352"}
	b := domain.Listing{VIN: "1HGCM82633A004352"}
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprint_BucketsWithoutVIN(t *testing.T) {
	a := domain.Listing{Year: 2019, Make: "Honda", Model: "Civic", Price: 1899900, Mileage: 32000}
	b := domain.Listing{Year: 2019, Make: "Honda", Model: "Civic", Price: 1899999, Mileage: 33000}
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprint_DifferentBucketsDoNotCollide(t *testing.T) {
	a := domain.Listing{Year: 2019, Make: "Honda", Model: "Civic", Price: 1899900, Mileage: 32000}
	b := domain.Listing{Year: 2019, Make: "Honda", Model: "Civic", Price: 2999900, Mileage: 32000}
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}

func TestMerge_VINPresenceWinsOverCompleteness(t *testing.T) {
	now := time.Now()
	withVIN := domain.Listing{Source: "ebay", SourceID: "1", VIN: "1HGCM82633A004352", Year: 2019, Make: "Honda", Model: "Civic", Price: 1899900, LastSeenAt: now}
	withoutVIN := domain.Listing{
		Source: "marketcheck", SourceID: "2", Year: 2019, Make: "Honda", Model: "Civic", Price: 1899900,
		Title: "very complete listing", Trim: "EX", BodyStyle: "Sedan", Description: "great car", LastSeenAt: now,
	}
	withoutVIN.VIN = "" // no VIN, so it keys into a bucket rather than a VIN fingerprint

	// A VIN key and a bucket key never land in the same Merge group, so the
	// winner rule is exercised on the pair directly.
	require.NotEqual(t, Fingerprint(withVIN), Fingerprint(withoutVIN))
	merged := resolveGroup([]domain.Listing{withoutVIN, withVIN}, defaultPriority)
	assert.Equal(t, "ebay", merged.Source)
	assert.Equal(t, "great car", merged.Description) // merged from loser
}

func TestMerge_RecencyBreaksTieWhenCompletenessEqual(t *testing.T) {
	older := domain.Listing{Source: "ebay", SourceID: "1", Year: 2019, Make: "Honda", Model: "Civic", Price: 1899900, LastSeenAt: time.Now().Add(-time.Hour)}
	newer := domain.Listing{Source: "marketcheck", SourceID: "2", Year: 2019, Make: "Honda", Model: "Civic", Price: 1899900, LastSeenAt: time.Now()}

	merged := Merge([]domain.Listing{older, newer}, defaultPriority)
	require.Len(t, merged, 1)
	assert.Equal(t, "marketcheck", merged[0].Source)
}

func TestMerge_SourcePriorityBreaksFinalTie(t *testing.T) {
	now := time.Now()
	a := domain.Listing{Source: "autotrader", SourceID: "1", Year: 2019, Make: "Honda", Model: "Civic", Price: 1899900, LastSeenAt: now}
	b := domain.Listing{Source: "ebay", SourceID: "2", Year: 2019, Make: "Honda", Model: "Civic", Price: 1899900, LastSeenAt: now}

	merged := Merge([]domain.Listing{a, b}, defaultPriority)
	require.Len(t, merged, 1)
	assert.Equal(t, "ebay", merged[0].Source)
}

func TestMerge_AttributesOnlyFillNulls(t *testing.T) {
	winner := domain.Listing{
		Source: "ebay", SourceID: "1", VIN: "1HGCM82633A004352",
		Attributes: map[string]string{"color_code": "NH737M"},
		LastSeenAt: time.Now(),
	}
	loser := domain.Listing{
		Source: "marketcheck", SourceID: "2", VIN: "1HGCM82633A004352",
		Attributes: map[string]string{"color_code": "SHOULD_NOT_OVERWRITE", "interior": "cloth"},
		LastSeenAt: time.Now().Add(-time.Minute),
	}

	merged := Merge([]domain.Listing{winner, loser}, defaultPriority)
	require.Len(t, merged, 1)
	assert.Equal(t, "NH737M", merged[0].Attributes["color_code"])
	assert.Equal(t, "cloth", merged[0].Attributes["interior"])
}

func TestMerge_FillsNullCoreFieldsFromLoser(t *testing.T) {
	now := time.Now()
	winner := domain.Listing{
		Source: "api_A", SourceID: "1", VIN: "1HGCM82633A004352",
		Year: 2019, Make: "Honda", Model: "Civic", Price: 9500, Mileage: 0, LastSeenAt: now,
	}
	loser := domain.Listing{
		Source: "scrape_B", SourceID: "2", VIN: "1HGCM82633A004352",
		Year: 2019, Make: "Honda", Model: "Civic", Price: 0, Mileage: 182000, LastSeenAt: now.Add(-time.Minute),
	}

	merged := Merge([]domain.Listing{winner, loser}, defaultPriority)
	require.Len(t, merged, 1)
	assert.EqualValues(t, 9500, merged[0].Price)
	assert.Equal(t, 182000, merged[0].Mileage)
}

func TestMerge_NoCollisionPassesThroughUnchanged(t *testing.T) {
	a := domain.Listing{Source: "ebay", SourceID: "1", Year: 2019, Make: "Honda", Model: "Civic"}
	b := domain.Listing{Source: "ebay", SourceID: "2", Year: 2020, Make: "Toyota", Model: "Camry"}
	merged := Merge([]domain.Listing{a, b}, defaultPriority)
	assert.Len(t, merged, 2)
}

func TestMerge_IsDeterministicAcrossInputOrder(t *testing.T) {
	now := time.Now()
	a := domain.Listing{Source: "ebay", SourceID: "1", VIN: "1HGCM82633A004352", Year: 2019, Make: "Honda", Model: "Civic", LastSeenAt: now}
	b := domain.Listing{Source: "marketcheck", SourceID: "2", VIN: "1HGCM82633A004352", Year: 2019, Make: "Honda", Model: "Civic", LastSeenAt: now.Add(-time.Minute)}

	m1 := Merge([]domain.Listing{a, b}, defaultPriority)
	m2 := Merge([]domain.Listing{b, a}, defaultPriority)
	require.Len(t, m1, 1)
	require.Len(t, m2, 1)
	assert.Equal(t, m1[0].Source, m2[0].Source)
}
