package models

import (
	"time"
)

// ListingStatus is the lifecycle state of a canonical listing
type ListingStatus string

const (
	ListingStatusActive  ListingStatus = "active"
	ListingStatusRemoved ListingStatus = "removed" // delisted at the source; kept for history
)

// Listing is the deduplicated canonical record produced by ingestion.
// Optional numeric fields are pointers: nil means the source page did not
// expose the value, which the similarity engine treats as "unknown".
type Listing struct {
	ID          string        `json:"id" badgerhold:"key"`
	SourceURL   string        `json:"source_url" badgerhold:"index"`
	Domain      string        `json:"domain"`
	ContentHash string        `json:"content_hash" badgerhold:"index"`
	Status      ListingStatus `json:"status"`

	Title     string   `json:"title"`
	Price     *float64 `json:"price,omitempty"`
	Currency  string   `json:"currency,omitempty"`
	AreaM2    *float64 `json:"area_m2,omitempty"`
	Rooms     *float64 `json:"rooms,omitempty"`
	Floor     *int     `json:"floor,omitempty"`
	YearBuilt *int     `json:"year_built,omitempty"`
	Address   string   `json:"address,omitempty"`
	City      string   `json:"city,omitempty" badgerhold:"index"`
	AreaSlug  string   `json:"area_slug,omitempty"`
	Lat       *float64 `json:"lat,omitempty"`
	Lng       *float64 `json:"lng,omitempty"`
	PhotoCount int     `json:"photo_count"`

	GroupID   string    `json:"group_id,omitempty" badgerhold:"index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PricePerArea returns price divided by area, or 0 when either is unknown
func (l *Listing) PricePerArea() float64 {
	if l.Price == nil || l.AreaM2 == nil || *l.AreaM2 <= 0 {
		return 0
	}
	return *l.Price / *l.AreaM2
}

// HasCoordinates reports whether both latitude and longitude are known
func (l *Listing) HasCoordinates() bool {
	return l.Lat != nil && l.Lng != nil
}

// ExtractedFields is the structured output of the extraction collaborator.
// Malformed or missing fields are nil/empty, never an extraction error.
type ExtractedFields struct {
	Title     string   `json:"title"`
	Price     *float64 `json:"price,omitempty"`
	Currency  string   `json:"currency,omitempty"`
	AreaM2    *float64 `json:"area_m2,omitempty"`
	Rooms     *float64 `json:"rooms,omitempty"`
	Floor     *int     `json:"floor,omitempty"`
	YearBuilt *int     `json:"year_built,omitempty"`
	Address   string   `json:"address,omitempty"`
	City      string   `json:"city,omitempty"`
	AreaSlug  string   `json:"area_slug,omitempty"`
	Lat       *float64 `json:"lat,omitempty"`
	Lng       *float64 `json:"lng,omitempty"`
	PhotoURLs []string `json:"photo_urls,omitempty"`
	Links     []string `json:"links,omitempty"` // listing links found on discover pages
}
