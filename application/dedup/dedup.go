// Package dedup resolves identity across sources via a FingerprintKey,
// picks a winner among colliding listings, and merges the losers'
// null-only attributes into it.
package dedup

import (
	"fmt"
	"sort"

	"github.com/thetangstr/vehiclesearch/domain"
)

// FingerprintKey identifies candidate-duplicate listings across sources.
// Two listings collapse into one group when their keys are equal.
type FingerprintKey string

const priceBucketWidth = domain.PriceMinorUnits(100000) // $1,000 in cents
const mileageBucketWidth = 5000

// Fingerprint computes l's identity key: VIN when present (normalized
// upper-case), otherwise a bucketed tuple of year/make/model/price/mileage
// so near-duplicate postings don't spuriously fail to merge across
// sources.
func Fingerprint(l domain.Listing) FingerprintKey {
	if l.VIN != "" {
		return FingerprintKey("vin:" + normalizeVIN(l.VIN))
	}
	priceBucket := int64(l.Price) / int64(priceBucketWidth)
	mileageBucket := l.Mileage / mileageBucketWidth
	return FingerprintKey(fmt.Sprintf("bkt:%d:%s:%s:%d:%d", l.Year, l.Make, l.Model, priceBucket, mileageBucket))
}

func normalizeVIN(vin string) string {
	out := make([]byte, 0, len(vin))
	for i := 0; i < len(vin); i++ {
		c := vin[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// SourcePriority resolves a source tag to its tie-break rank; lower wins.
// Callers typically supply domain SourceDescriptor priorities loaded from
// config.
type SourcePriority func(source string) int

// Merge groups listings by fingerprint, resolves one winner per group, and
// merges every loser's null-only attributes into the winner, returning one
// deduplicated listing per group. Output order is not guaranteed; callers
// sort independently (the Relevance Scorer does this next).
func Merge(listings []domain.Listing, priority SourcePriority) []domain.Listing {
	groups := make(map[FingerprintKey][]domain.Listing)
	order := make([]FingerprintKey, 0)
	for _, l := range listings {
		key := Fingerprint(l)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], l)
	}

	out := make([]domain.Listing, 0, len(order))
	for _, key := range order {
		out = append(out, resolveGroup(groups[key], priority))
	}
	return out
}

// resolveGroup picks the winner and merges attributes from the rest.
func resolveGroup(group []domain.Listing, priority SourcePriority) domain.Listing {
	if len(group) == 1 {
		return group[0]
	}

	sorted := append([]domain.Listing(nil), group...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return winnerLess(sorted[i], sorted[j], priority)
	})
	winner := sorted[0]

	for _, loser := range sorted[1:] {
		mergeAttributes(&winner, loser)
	}
	return winner
}

// winnerLess reports whether a should rank ahead of b as the group's
// winner: VIN presence, then completeness, then recency, then source
// priority.
func winnerLess(a, b domain.Listing, priority SourcePriority) bool {
	aHasVIN, bHasVIN := a.VIN != "", b.VIN != ""
	if aHasVIN != bHasVIN {
		return aHasVIN
	}

	aCount, bCount := a.NonNullCoreFieldCount(), b.NonNullCoreFieldCount()
	if aCount != bCount {
		return aCount > bCount
	}

	if !a.LastSeenAt.Equal(b.LastSeenAt) {
		return a.LastSeenAt.After(b.LastSeenAt)
	}

	return priority(a.Source) < priority(b.Source)
}

// mergeAttributes folds loser's null core columns, open attributes, and
// feature flags into winner wherever winner has no value, per the
// null-only merge rule: a present winner field is never overwritten.
func mergeAttributes(winner *domain.Listing, loser domain.Listing) {
	if winner.Price == 0 {
		winner.Price = loser.Price
	}
	if winner.Mileage == 0 {
		winner.Mileage = loser.Mileage
	}
	if winner.Make == "" {
		winner.Make = loser.Make
	}
	if winner.Model == "" {
		winner.Model = loser.Model
	}
	if winner.Year == 0 {
		winner.Year = loser.Year
	}
	if winner.Trim == "" {
		winner.Trim = loser.Trim
	}
	if winner.VIN == "" {
		winner.VIN = loser.VIN
	}
	if winner.BodyStyle == "" {
		winner.BodyStyle = loser.BodyStyle
	}
	if winner.ExteriorColor == "" {
		winner.ExteriorColor = loser.ExteriorColor
	}
	if winner.Transmission == "" {
		winner.Transmission = loser.Transmission
	}
	if winner.Drivetrain == "" {
		winner.Drivetrain = loser.Drivetrain
	}
	if winner.FuelType == "" {
		winner.FuelType = loser.FuelType
	}
	if winner.Location == "" {
		winner.Location = loser.Location
	}
	if winner.ZIP == "" {
		winner.ZIP = loser.ZIP
	}
	if winner.DealerName == "" {
		winner.DealerName = loser.DealerName
	}
	if winner.ListingURL == "" {
		winner.ListingURL = loser.ListingURL
	}
	if winner.Title == "" {
		winner.Title = loser.Title
	}

	for k, v := range loser.Attributes {
		winner.SetAttributeIfAbsent(k, v)
	}
	if winner.Features == nil {
		winner.Features = make(map[string]bool)
	}
	for k, v := range loser.Features {
		if _, exists := winner.Features[k]; !exists {
			winner.Features[k] = v
		}
	}
	if winner.History == nil {
		winner.History = make(map[string]bool)
	}
	for k, v := range loser.History {
		if _, exists := winner.History[k]; !exists {
			winner.History[k] = v
		}
	}
	if winner.Description == "" {
		winner.Description = loser.Description
	}
	if len(winner.ImageURLs) == 0 {
		winner.ImageURLs = loser.ImageURLs
	}
}
