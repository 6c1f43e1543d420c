package preprocessor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thetangstr/vehiclesearch/domain"
)

func TestParseChassisCode_MatchesKnownCode(t *testing.T) {
	match, ok := ParseChassisCode("looking for a clean ek9 hatch")
	assert.True(t, ok)
	assert.Equal(t, "Honda", match.Make)
	assert.Equal(t, "Civic", match.Model)
	assert.Equal(t, 1997, match.YearMin)
}

func TestParseChassisCode_NoMatch(t *testing.T) {
	_, ok := ParseChassisCode("family sedan with good mpg")
	assert.False(t, ok)
}

func TestProcess_ChassisCodeDrivesFilters(t *testing.T) {
	r := Process("r34 skyline under $50k")
	assert.Equal(t, "Nissan", r.Filters.Make)
	assert.Equal(t, domain.PriceMinorUnits(5000000), r.Filters.PriceMax)
}

func TestProcess_MakeAndModelKeywords(t *testing.T) {
	r := Process("honda civic 2019 under 30000 miles")
	assert.Equal(t, "Honda", r.Filters.Make)
	assert.Contains(t, r.Filters.Model, "Civic")
	assert.Equal(t, 2019, r.Filters.YearMin)
	assert.Equal(t, 30000, r.Filters.MileageMax)
}

func TestProcess_YearRange(t *testing.T) {
	r := Process("toyota supra 1993-1998")
	assert.Equal(t, 1993, r.Filters.YearMin)
	assert.Equal(t, 1998, r.Filters.YearMax)
}

func TestProcess_PriceUnderK(t *testing.T) {
	r := Process("mazda miata under 15k")
	assert.Equal(t, domain.PriceMinorUnits(1500000), r.Filters.PriceMax)
}

func TestProcess_ResidualQueryStripsMatchedTokens(t *testing.T) {
	r := Process("honda civic 2019")
	assert.NotContains(t, r.ResidualQuery, "2019")
}

func TestProcess_NoMatchesReturnsOriginalAsResidual(t *testing.T) {
	r := Process("family sedan")
	assert.Equal(t, "family sedan", r.ResidualQuery)
	assert.Equal(t, "", r.Filters.Make)
}
