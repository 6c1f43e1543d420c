package index

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/thetangstr/vehiclesearch/domain"
)

// listingRow mirrors the listings table for sqlx scanning. Nullable core
// fields are sql.Null* so a listing missing a trim or VIN round-trips
// without losing the null-ness dedup relies on (domain.Listing.Validate).
type listingRow struct {
	ID              string         `db:"id"`
	Source          string         `db:"source"`
	SourceID        string         `db:"source_id"`
	IngestedVia     string         `db:"ingested_via"`
	Title           string         `db:"title"`
	Make            string         `db:"make"`
	Model           string         `db:"model"`
	Year            int            `db:"year"`
	Trim            sql.NullString `db:"trim"`
	PriceMinorUnits int64          `db:"price_minor_units"`
	Mileage         int            `db:"mileage"`
	BodyStyle       sql.NullString `db:"body_style"`
	ExteriorColor   sql.NullString `db:"exterior_color"`
	Transmission    sql.NullString `db:"transmission"`
	Drivetrain      sql.NullString `db:"drivetrain"`
	FuelType        sql.NullString `db:"fuel_type"`
	VIN             sql.NullString `db:"vin"`
	Location        sql.NullString `db:"location"`
	ZIP             sql.NullString `db:"zip"`
	DealerName      sql.NullString `db:"dealer_name"`
	ListingURL      string         `db:"listing_url"`
	ImageURLs       []byte         `db:"image_urls"`
	Description     sql.NullString `db:"description"`
	Attributes      []byte         `db:"attributes"`
	Features        []byte         `db:"features"`
	History         []byte         `db:"history"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
	LastSeenAt      time.Time      `db:"last_seen_at"`
	Active          bool           `db:"active"`
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func toRow(l domain.Listing) listingRow {
	imageURLs, _ := json.Marshal(l.ImageURLs)
	attrs, _ := json.Marshal(l.Attributes)
	features, _ := json.Marshal(l.Features)
	history, _ := json.Marshal(l.History)

	return listingRow{
		ID:              l.ID,
		Source:          l.Source,
		SourceID:        l.SourceID,
		IngestedVia:     l.IngestedVia,
		Title:           l.Title,
		Make:            l.Make,
		Model:           l.Model,
		Year:            l.Year,
		Trim:            nullStr(l.Trim),
		PriceMinorUnits: int64(l.Price),
		Mileage:         l.Mileage,
		BodyStyle:       nullStr(l.BodyStyle),
		ExteriorColor:   nullStr(l.ExteriorColor),
		Transmission:    nullStr(l.Transmission),
		Drivetrain:      nullStr(l.Drivetrain),
		FuelType:        nullStr(l.FuelType),
		VIN:             nullStr(l.VIN),
		Location:        nullStr(l.Location),
		ZIP:             nullStr(l.ZIP),
		DealerName:      nullStr(l.DealerName),
		ListingURL:      l.ListingURL,
		ImageURLs:       imageURLs,
		Description:     nullStr(l.Description),
		Attributes:      attrs,
		Features:        features,
		History:         history,
		CreatedAt:       l.CreatedAt,
		UpdatedAt:       l.UpdatedAt,
		LastSeenAt:      l.LastSeenAt,
		Active:          l.Active,
	}
}

func (r listingRow) toListing() domain.Listing {
	var imageURLs []string
	_ = json.Unmarshal(r.ImageURLs, &imageURLs)
	attrs := map[string]string{}
	_ = json.Unmarshal(r.Attributes, &attrs)
	features := map[string]bool{}
	_ = json.Unmarshal(r.Features, &features)
	history := map[string]bool{}
	_ = json.Unmarshal(r.History, &history)

	return domain.Listing{
		ID:             r.ID,
		Source:         r.Source,
		SourceID:       r.SourceID,
		IngestedVia:    r.IngestedVia,
		Title:          r.Title,
		Make:           r.Make,
		Model:          r.Model,
		Year:           r.Year,
		Trim:           r.Trim.String,
		Price:          domain.PriceMinorUnits(r.PriceMinorUnits),
		Mileage:        r.Mileage,
		BodyStyle:      r.BodyStyle.String,
		ExteriorColor:  r.ExteriorColor.String,
		Transmission:   r.Transmission.String,
		Drivetrain:     r.Drivetrain.String,
		FuelType:       r.FuelType.String,
		VIN:            r.VIN.String,
		Location:       r.Location.String,
		ZIP:            r.ZIP.String,
		DealerName:     r.DealerName.String,
		ListingURL:     r.ListingURL,
		ImageURLs:      imageURLs,
		Description:    r.Description.String,
		Attributes:     attrs,
		Features:       features,
		History:        history,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		LastSeenAt:     r.LastSeenAt,
		Active:         r.Active,
	}
}
