package models

import (
	"time"
)

// DedupGroup is a cluster of listings believed to represent the same
// physical property across source sites. Stats are recomputed whenever
// membership changes.
type DedupGroup struct {
	ID          string    `json:"id" badgerhold:"key"`
	Signature   string    `json:"signature"`
	City        string    `json:"city,omitempty"`
	AreaSlug    string    `json:"area_slug,omitempty"`
	CentroidLat float64   `json:"centroid_lat"`
	CentroidLng float64   `json:"centroid_lng"`
	CanonicalURL string   `json:"canonical_url,omitempty"` // oldest member's source URL
	ItemCount   int       `json:"item_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CompMatch is a scored pairwise link from a subject listing to a candidate
// comparable. Rows for a subject are fully replaced on every resolution
// pass: a snapshot, not an incremental diff.
type CompMatch struct {
	ID             string    `json:"id" badgerhold:"key"`
	SubjectID      string    `json:"subject_id" badgerhold:"index"`
	CandidateID    string    `json:"candidate_id"`
	DistanceMeters float64   `json:"distance_meters"`
	PricePerArea   float64   `json:"price_per_area"`
	Score          float64   `json:"score"` // 0..1
	CreatedAt      time.Time `json:"created_at"`
}
