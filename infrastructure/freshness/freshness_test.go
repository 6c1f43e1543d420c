package freshness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/thetangstr/vehiclesearch/domain"
)

func TestClassify_Bands(t *testing.T) {
	th := DefaultThresholds()
	assert.Equal(t, BandRealTime, Classify(time.Minute, th))
	assert.Equal(t, BandFresh, Classify(30*time.Minute, th))
	assert.Equal(t, BandRecent, Classify(6*time.Hour, th))
	assert.Equal(t, BandStale, Classify(3*24*time.Hour, th))
	assert.Equal(t, BandExpired, Classify(30*24*time.Hour, th))
}

func TestManager_EvaluateSkipsFreshListings(t *testing.T) {
	m := NewManager(DefaultThresholds())
	l := domain.Listing{LastSeenAt: time.Now().Add(-time.Minute)}
	d := m.Evaluate(l, time.Now(), 10)
	assert.False(t, d.ShouldRefresh)
}

func TestManager_EvaluateFlagsStaleListings(t *testing.T) {
	m := NewManager(DefaultThresholds())
	l := domain.Listing{LastSeenAt: time.Now().Add(-3 * 24 * time.Hour)}
	d := m.Evaluate(l, time.Now(), 10)
	assert.True(t, d.ShouldRefresh)
	assert.Equal(t, BandStale, d.Band)
	assert.Greater(t, d.Priority, 0.0)
}

func TestPrioritize_OrdersByDescendingPriority(t *testing.T) {
	now := time.Now()
	m := NewManager(DefaultThresholds())

	older := domain.Listing{Source: "ebay", SourceID: "old", LastSeenAt: now.Add(-10 * 24 * time.Hour)}
	newer := domain.Listing{Source: "ebay", SourceID: "new", LastSeenAt: now.Add(-2 * 24 * time.Hour)}

	listings := []domain.Listing{newer, older}
	decisions := []RefreshDecision{m.Evaluate(newer, now, 10), m.Evaluate(older, now, 10)}

	ordered := Prioritize(listings, decisions)
	assert.Equal(t, "old", ordered[0].SourceID)
}
