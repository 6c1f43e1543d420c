package domain

import "time"

// FilterSet mirrors the recognized query filter keys. Zero values mean
// "not specified" except for the boolean flags, which default false.
type FilterSet struct {
	Make    string   `json:"make,omitempty"`
	Model   []string `json:"model,omitempty"`
	YearMin int      `json:"year_min,omitempty"`
	YearMax int      `json:"year_max,omitempty"`

	PriceMin   PriceMinorUnits `json:"price_min,omitempty"`
	PriceMax   PriceMinorUnits `json:"price_max,omitempty"`
	MileageMin int             `json:"mileage_min,omitempty"`
	MileageMax int             `json:"mileage_max,omitempty"`

	BodyStyle      string   `json:"body_style,omitempty"`
	ExteriorColor  []string `json:"exterior_color,omitempty"`
	ExcludeColors  []string `json:"exclude_colors,omitempty"`
	Transmission   string   `json:"transmission,omitempty"`
	Drivetrain     string   `json:"drivetrain,omitempty"`
	FuelType       string   `json:"fuel_type,omitempty"`
	RequiredFeatures []string `json:"required_features,omitempty"`

	// Attributes holds open key -> minimum-numeric-value predicates.
	Attributes map[string]float64 `json:"attributes,omitempty"`

	CleanTitleOnly bool `json:"clean_title_only,omitempty"`
	NoAccidents    bool `json:"no_accidents,omitempty"`
	OneOwnerOnly   bool `json:"one_owner_only,omitempty"`
	CertifiedOnly  bool `json:"certified_only,omitempty"`

	// Corrections records server-side adjustments made to an out-of-range
	// request value (e.g. an over-large per_page clamped to the maximum),
	// so the caller can see what was actually applied.
	Corrections []string `json:"corrections,omitempty"`
}

// Merge overlays caller-supplied filters on top of preprocessor-derived
// ones; caller values win on every field that is non-zero.
func (f FilterSet) Merge(caller FilterSet) FilterSet {
	out := f
	if caller.Make != "" {
		out.Make = caller.Make
	}
	if len(caller.Model) > 0 {
		out.Model = caller.Model
	}
	if caller.YearMin != 0 {
		out.YearMin = caller.YearMin
	}
	if caller.YearMax != 0 {
		out.YearMax = caller.YearMax
	}
	if caller.PriceMin != 0 {
		out.PriceMin = caller.PriceMin
	}
	if caller.PriceMax != 0 {
		out.PriceMax = caller.PriceMax
	}
	if caller.MileageMin != 0 {
		out.MileageMin = caller.MileageMin
	}
	if caller.MileageMax != 0 {
		out.MileageMax = caller.MileageMax
	}
	if caller.BodyStyle != "" {
		out.BodyStyle = caller.BodyStyle
	}
	if len(caller.ExteriorColor) > 0 {
		out.ExteriorColor = caller.ExteriorColor
	}
	if len(caller.ExcludeColors) > 0 {
		out.ExcludeColors = caller.ExcludeColors
	}
	if caller.Transmission != "" {
		out.Transmission = caller.Transmission
	}
	if caller.Drivetrain != "" {
		out.Drivetrain = caller.Drivetrain
	}
	if caller.FuelType != "" {
		out.FuelType = caller.FuelType
	}
	if len(caller.RequiredFeatures) > 0 {
		out.RequiredFeatures = caller.RequiredFeatures
	}
	if len(caller.Attributes) > 0 {
		out.Attributes = caller.Attributes
	}
	if caller.CleanTitleOnly {
		out.CleanTitleOnly = true
	}
	if caller.NoAccidents {
		out.NoAccidents = true
	}
	if caller.OneOwnerOnly {
		out.OneOwnerOnly = true
	}
	if caller.CertifiedOnly {
		out.CertifiedOnly = true
	}
	return out
}

// SearchRequest bundles the inputs to the top-level orchestrator entry point.
type SearchRequest struct {
	Query    string
	Filters  FilterSet
	Page     int
	PerPage  int
	UserID   string

	// Deadline, when non-zero, is the absolute time by which Search must
	// return. A Deadline already in the past is honored by returning
	// immediately rather than attempting any dispatch.
	Deadline time.Time
}

// SearchResponse is the payload returned from Search.
type SearchResponse struct {
	Listings        []Listing `json:"listings"`
	Total           int       `json:"total"`
	Page            int       `json:"page"`
	PerPage         int       `json:"per_page"`
	LocalCount      int       `json:"local_count"`
	LiveCount       int       `json:"live_count"`
	SourcesSearched []string  `json:"sources_searched"`
	SourcesFailed   []string  `json:"sources_failed"`
	SearchTimeMS    int64     `json:"search_time_ms"`
	Partial         bool      `json:"partial"`
	AppliedFilters  FilterSet `json:"applied_filters"`
}
