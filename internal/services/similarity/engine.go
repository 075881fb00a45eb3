// Package similarity scores how likely two listings describe the same
// property, and maintains comparable sets and dedup groups.
package similarity

import (
	"math"

	"github.com/casaval/casaval/internal/models"
)

// Scoring constants. Fixed by product decision, not tuned at runtime.
const (
	// DistanceCapMeters is the radius beyond which geo proximity
	// contributes nothing.
	DistanceCapMeters = 1500.0

	// PricePerAreaTolerance is the relative price-per-area difference at
	// which the price signal falls to zero.
	PricePerAreaTolerance = 0.18

	weightDistance     = 0.35
	weightPricePerArea = 0.35
	weightRooms        = 0.20
	weightYear         = 0.10

	earthRadiusMeters = 6371000.0
)

// Score returns the pairwise similarity of two listings in [0,1].
// Pure function: no I/O, no clock, no mutation.
func Score(subject, candidate *models.Listing) float64 {
	distance := distanceScore(subject, candidate)
	price := relDiffScore(subject.PricePerArea(), candidate.PricePerArea())
	rooms := roomScore(subject.Rooms, candidate.Rooms)
	year := yearScore(subject.YearBuilt, candidate.YearBuilt)

	return weightDistance*distance +
		weightPricePerArea*price +
		weightRooms*rooms +
		weightYear*year
}

// DistanceMeters returns the haversine distance between two listings, or
// -1 when either side lacks coordinates.
func DistanceMeters(subject, candidate *models.Listing) float64 {
	if !subject.HasCoordinates() || !candidate.HasCoordinates() {
		return -1
	}
	return haversine(*subject.Lat, *subject.Lng, *candidate.Lat, *candidate.Lng)
}

func distanceScore(subject, candidate *models.Listing) float64 {
	meters := DistanceMeters(subject, candidate)
	if meters < 0 {
		return 0
	}
	return 1 - math.Min(meters, DistanceCapMeters)/DistanceCapMeters
}

// relDiffScore falls off linearly from 1 at equality to 0 at the tolerance
// boundary. Zero or unknown values score 0.
func relDiffScore(a, b float64) float64 {
	if a <= 0 || b <= 0 {
		return 0
	}
	rel := math.Abs(a-b) / math.Max(a, b)
	if rel >= PricePerAreaTolerance {
		return 0
	}
	return 1 - rel/PricePerAreaTolerance
}

func roomScore(a, b *float64) float64 {
	if a == nil || b == nil {
		return 0
	}
	diff := math.Abs(*a - *b)
	switch {
	case diff == 0:
		return 1.0
	case diff <= 0.5:
		return 0.8
	case diff <= 1.0:
		return 0.5
	default:
		return 0
	}
}

// yearScore never reaches 0: construction year is a weak signal and always
// contributes something.
func yearScore(a, b *int) float64 {
	if a == nil || b == nil {
		return 0.2
	}
	diff := *a - *b
	if diff < 0 {
		diff = -diff
	}
	switch {
	case diff <= 5:
		return 1.0
	case diff <= 10:
		return 0.7
	case diff <= 20:
		return 0.4
	default:
		return 0.2
	}
}

func haversine(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
