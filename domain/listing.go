// Package domain holds the core entities shared by every layer of the
// aggregator: listings, sources, and the error taxonomy adapters speak.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// SourceKind classifies an upstream by how it is reached.
type SourceKind string

const (
	SourceKindAPI    SourceKind = "api"
	SourceKindScrape SourceKind = "scrape"
	SourceKindFeed   SourceKind = "feed"
	SourceKindLocal  SourceKind = "local"
)

// PriceMinorUnits is an integer amount of currency minor units (cents).
type PriceMinorUnits int64

// Listing is the normalized vehicle record every adapter must produce.
type Listing struct {
	ID             string `json:"id"`
	Source         string `json:"source"`
	SourceID       string `json:"source_listing_id"`
	IngestedVia    string `json:"ingested_via,omitempty"`

	Title        string          `json:"title"`
	Make         string          `json:"make"`
	Model        string          `json:"model"`
	Year         int             `json:"year"`
	Trim         string          `json:"trim,omitempty"`
	Price        PriceMinorUnits `json:"price"`
	Mileage      int             `json:"mileage"`
	BodyStyle    string          `json:"body_style,omitempty"`
	ExteriorColor string         `json:"exterior_color,omitempty"`
	Transmission string          `json:"transmission,omitempty"`
	Drivetrain   string          `json:"drivetrain,omitempty"`
	FuelType     string          `json:"fuel_type,omitempty"`
	VIN          string          `json:"vin,omitempty"`

	Location   string `json:"location,omitempty"`
	ZIP        string `json:"zip,omitempty"`
	DealerName string `json:"dealer_name,omitempty"`
	ListingURL string `json:"listing_url,omitempty"`

	ImageURLs   []string          `json:"image_urls,omitempty"`
	Description string            `json:"description,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Features    map[string]bool   `json:"features,omitempty"`
	History     map[string]bool   `json:"history,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	Active     bool      `json:"active"`

	RelevanceScore int `json:"relevance_score,omitempty"`
}

// StableID derives the synthetic id for a (source, sourceID) pair. It is a
// pure function: the same pair always yields the same id, and the id never
// changes once assigned.
func StableID(source, sourceID string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(source) + "\x1f" + sourceID))
	return hex.EncodeToString(sum[:16])
}

// Validate checks the structural invariants that every Listing must hold
// regardless of which adapter produced it.
func (l *Listing) Validate(now time.Time) error {
	minYear, maxYear := 1900, now.Year()+2
	if l.Year < minYear || l.Year > maxYear {
		return fmt.Errorf("listing %s/%s: year %d out of range [%d,%d]", l.Source, l.SourceID, l.Year, minYear, maxYear)
	}
	if l.Price < 0 {
		return fmt.Errorf("listing %s/%s: negative price", l.Source, l.SourceID)
	}
	if l.Mileage < 0 {
		return fmt.Errorf("listing %s/%s: negative mileage", l.Source, l.SourceID)
	}
	if l.LastSeenAt.Before(l.CreatedAt) {
		return fmt.Errorf("listing %s/%s: last_seen_at before created_at", l.Source, l.SourceID)
	}
	return nil
}

// SetAttributeIfAbsent merges a value into the open attributes map only if
// no value is already present.
func (l *Listing) SetAttributeIfAbsent(key, value string) {
	if value == "" {
		return
	}
	if l.Attributes == nil {
		l.Attributes = make(map[string]string)
	}
	if _, exists := l.Attributes[key]; !exists {
		l.Attributes[key] = value
	}
}

// NonNullCoreFieldCount counts populated core columns, used by the
// deduplicator's completeness tie-break.
func (l *Listing) NonNullCoreFieldCount() int {
	count := 0
	strFields := []string{l.Title, l.Make, l.Model, l.Trim, l.BodyStyle, l.ExteriorColor,
		l.Transmission, l.Drivetrain, l.FuelType, l.VIN, l.Location, l.DealerName, l.ListingURL, l.Description}
	for _, f := range strFields {
		if f != "" {
			count++
		}
	}
	if l.Year != 0 {
		count++
	}
	if l.Price > 0 {
		count++
	}
	if l.Mileage > 0 {
		count++
	}
	if len(l.ImageURLs) > 0 {
		count++
	}
	return count
}

// Age returns how long it has been since the listing was last refreshed.
func (l *Listing) Age(now time.Time) time.Duration {
	return now.Sub(l.LastSeenAt)
}
