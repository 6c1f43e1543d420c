// Package scoring ranks listings by a weighted composite relevance score:
// per-factor normalization to a 0-100 range, a weighted composite sum,
// and deterministic ranking via sort.SliceStable.
package scoring

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thetangstr/vehiclesearch/domain"
)

// Weights configures each factor's contribution to the composite score.
type Weights struct {
	QueryMatch   float64
	Price        float64
	Mileage      float64
	Freshness    float64
	Completeness float64
}

// DefaultWeights puts query relevance first, price and mileage
// competitiveness next, with smaller adjustments for freshness and
// listing completeness.
var DefaultWeights = Weights{
	QueryMatch:   0.45,
	Price:        0.20,
	Mileage:      0.15,
	Freshness:    0.10,
	Completeness: 0.10,
}

// Components breaks the composite score down per factor, for debugging
// and for the admin surface.
type Components struct {
	QueryMatchScore   float64
	PriceScore        float64
	MileageScore      float64
	FreshnessScore    float64
	CompletenessScore float64
	WeightedSum       float64
}

// Scored pairs a listing with its computed score breakdown.
type Scored struct {
	Listing    domain.Listing
	Components Components
}

// Scorer computes deterministic relevance scores for a result set.
type Scorer struct {
	weights Weights
}

// NewScorer builds a Scorer with the given weights.
func NewScorer(w Weights) *Scorer {
	return &Scorer{weights: w}
}

// QueryContext carries the inputs a per-listing query-match score needs
// beyond the listing itself.
type QueryContext struct {
	ResidualQuery string
	MedianPrice   domain.PriceMinorUnits
	MedianMileage int
	Now           time.Time
}

// Score computes and ranks every listing in the set, returning them
// sorted by descending composite score with a stable tie-break on
// (last_seen_at desc, stable id asc) so repeated calls over the same
// input always yield the same order.
func (s *Scorer) Score(listings []domain.Listing, qc QueryContext, sourcePriority func(string) int) []Scored {
	if len(listings) == 0 {
		return nil
	}

	log.Debug().Int("count", len(listings)).Msg("scoring: computing composite relevance scores")

	scored := make([]Scored, 0, len(listings))
	for _, l := range listings {
		components := s.computeComponents(l, qc)
		scored = append(scored, Scored{Listing: l, Components: components})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Components.WeightedSum != scored[j].Components.WeightedSum {
			return scored[i].Components.WeightedSum > scored[j].Components.WeightedSum
		}
		if !scored[i].Listing.LastSeenAt.Equal(scored[j].Listing.LastSeenAt) {
			return scored[i].Listing.LastSeenAt.After(scored[j].Listing.LastSeenAt)
		}
		return scored[i].Listing.ID < scored[j].Listing.ID
	})

	for i := range scored {
		scored[i].Listing.RelevanceScore = int(scored[i].Components.WeightedSum)
	}

	return scored
}

func (s *Scorer) computeComponents(l domain.Listing, qc QueryContext) Components {
	queryMatch := normalizeQueryMatchScore(l, qc.ResidualQuery)
	price := normalizePriceScore(l.Price, qc.MedianPrice)
	mileage := normalizeMileageScore(l.Mileage, qc.MedianMileage)
	freshness := normalizeFreshnessScore(l, qc.Now)
	completeness := normalizeCompletenessScore(l)

	weightedSum := queryMatch*s.weights.QueryMatch +
		price*s.weights.Price +
		mileage*s.weights.Mileage +
		freshness*s.weights.Freshness +
		completeness*s.weights.Completeness

	return Components{
		QueryMatchScore:   queryMatch,
		PriceScore:        price,
		MileageScore:      mileage,
		FreshnessScore:    freshness,
		CompletenessScore: completeness,
		WeightedSum:       weightedSum,
	}
}

// normalizeQueryMatchScore scores how many residual-query tokens appear
// in the listing's title or description, scaled to 0-100.
func normalizeQueryMatchScore(l domain.Listing, residualQuery string) float64 {
	if residualQuery == "" {
		return 50 // neutral when the query was fully consumed by filters
	}
	tokens := tokenize(residualQuery)
	if len(tokens) == 0 {
		return 50
	}
	haystack := tokenize(l.Title + " " + l.Description)
	haystackSet := make(map[string]bool, len(haystack))
	for _, h := range haystack {
		haystackSet[h] = true
	}
	matches := 0
	for _, t := range tokens {
		if haystackSet[t] {
			matches++
		}
	}
	return 100 * float64(matches) / float64(len(tokens))
}

// normalizePriceScore rewards listings priced at or below the result
// set's median, penalizing above-median prices proportionally.
func normalizePriceScore(price, median domain.PriceMinorUnits) float64 {
	if median <= 0 || price <= 0 {
		return 50
	}
	ratio := float64(price) / float64(median)
	score := 100 - (ratio-1)*100
	return clamp(score, 0, 100)
}

// normalizeMileageScore mirrors normalizePriceScore for mileage: lower
// than median mileage scores higher.
func normalizeMileageScore(mileage, median int) float64 {
	if median <= 0 || mileage <= 0 {
		return 50
	}
	ratio := float64(mileage) / float64(median)
	score := 100 - (ratio-1)*100
	return clamp(score, 0, 100)
}

// normalizeFreshnessScore decays linearly from 100 at zero age to 0 at a
// week old, floored at 0 for anything staler.
func normalizeFreshnessScore(l domain.Listing, now time.Time) float64 {
	if now.IsZero() {
		return 100
	}
	age := l.Age(now)
	const maxAge = 7 * 24 * time.Hour
	if age <= 0 {
		return 100
	}
	score := 100 * (1 - float64(age)/float64(maxAge))
	return clamp(score, 0, 100)
}

func normalizeCompletenessScore(l domain.Listing) float64 {
	const maxFields = 18 // matches the field count NonNullCoreFieldCount can return
	count := l.NonNullCoreFieldCount()
	return clamp(100*float64(count)/float64(maxFields), 0, 100)
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func tokenize(s string) []string {
	var tokens []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			tokens = append(tokens, string(current))
			current = nil
		}
	}
	for _, r := range s {
		lr := toLowerRune(r)
		if isAlnum(lr) {
			current = append(current, lr)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

func toLowerRune(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

// Paginate slices a scored, already-sorted set into the requested page,
// clamping out-of-range page/perPage values and never panicking on a page
// past the end.
func Paginate(scored []Scored, page, perPage int) []Scored {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	start := (page - 1) * perPage
	if start >= len(scored) {
		return nil
	}
	end := start + perPage
	if end > len(scored) {
		end = len(scored)
	}
	return scored[start:end]
}
