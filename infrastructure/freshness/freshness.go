// Package freshness implements age-based classification of stored
// listings and the hybrid refresh-decision policy that drives the
// background refresh scheduler.
package freshness

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thetangstr/vehiclesearch/domain"
)

// Band is the age classification applied to a listing.
type Band string

const (
	BandRealTime Band = "real_time"
	BandFresh    Band = "fresh"
	BandRecent   Band = "recent"
	BandStale    Band = "stale"
	BandExpired  Band = "expired"
)

// Thresholds configures the age boundaries between bands.
type Thresholds struct {
	RealTime time.Duration
	Fresh    time.Duration
	Recent   time.Duration
	Stale    time.Duration
}

// DefaultThresholds returns the baseline age bands.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RealTime: 5 * time.Minute,
		Fresh:    1 * time.Hour,
		Recent:   24 * time.Hour,
		Stale:    7 * 24 * time.Hour,
	}
}

// Classify maps a listing's age into a freshness band.
func Classify(age time.Duration, t Thresholds) Band {
	switch {
	case age <= t.RealTime:
		return BandRealTime
	case age <= t.Fresh:
		return BandFresh
	case age <= t.Recent:
		return BandRecent
	case age <= t.Stale:
		return BandStale
	default:
		return BandExpired
	}
}

// FieldVolatility weights how quickly a field class changes, used by the
// refresh-decision policy to prioritize price/availability checks over
// static spec fields.
type FieldVolatility float64

const (
	VolatilityHigh   FieldVolatility = 1.0 // price, availability
	VolatilityMedium FieldVolatility = 0.5 // mileage, description
	VolatilityLow    FieldVolatility = 0.1 // make, model, VIN
)

// RefreshDecision is the outcome of evaluating whether a listing needs a
// live re-fetch.
type RefreshDecision struct {
	ShouldRefresh bool
	Priority      float64
	Band          Band
}

// Manager evaluates listings against the configured thresholds and
// produces refresh decisions and a priority score the scheduler uses to
// order its work queue.
type Manager struct {
	thresholds Thresholds
}

// NewManager builds a Manager with the given thresholds.
func NewManager(t Thresholds) *Manager {
	return &Manager{thresholds: t}
}

// Evaluate classifies l's age and decides whether it should be queued for
// refresh. The priority formula favors older and higher source-priority
// listings; volatility_weight is VolatilityHigh for every listing, so that
// term adds the same constant to each:
//
//	priority = age_hours * 1.0 + volatility_weight * 10 + (100 - source_priority) * 0.1
func (m *Manager) Evaluate(l domain.Listing, now time.Time, sourcePriority int) RefreshDecision {
	age := l.Age(now)
	band := Classify(age, m.thresholds)

	shouldRefresh := band == BandRecent || band == BandStale || band == BandExpired
	if !shouldRefresh {
		return RefreshDecision{ShouldRefresh: false, Band: band}
	}

	ageHours := age.Hours()
	priority := ageHours*1.0 + float64(VolatilityHigh)*10 + (100-float64(sourcePriority))*0.1

	log.Debug().Str("source", l.Source).Str("source_id", l.SourceID).
		Str("band", string(band)).Float64("priority", priority).
		Msg("freshness: listing queued for refresh")

	return RefreshDecision{ShouldRefresh: true, Priority: priority, Band: band}
}

// Prioritize sorts candidates by descending refresh priority, for the
// scheduler to pop work off in the right order.
func Prioritize(candidates []domain.Listing, decisions []RefreshDecision) []domain.Listing {
	type pair struct {
		listing  domain.Listing
		priority float64
	}
	pairs := make([]pair, 0, len(candidates))
	for i, c := range candidates {
		if i < len(decisions) && decisions[i].ShouldRefresh {
			pairs = append(pairs, pair{listing: c, priority: decisions[i].Priority})
		}
	}
	for i := 1; i < len(pairs); i++ {
		j := i
		for j > 0 && pairs[j-1].priority < pairs[j].priority {
			pairs[j-1], pairs[j] = pairs[j], pairs[j-1]
			j--
		}
	}
	out := make([]domain.Listing, len(pairs))
	for i, p := range pairs {
		out[i] = p.listing
	}
	return out
}
