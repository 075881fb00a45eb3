package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/casaval/casaval/internal/models"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func TestHashFields_StableAcrossCaseAndWhitespace(t *testing.T) {
	price := 100.0
	a := &models.ExtractedFields{Title: "Foo ", Price: &price}
	b := &models.ExtractedFields{Title: "foo", Price: &price}

	assert.Equal(t, HashFields(a), HashFields(b))
}

func TestHashFields_CollapsesInnerWhitespace(t *testing.T) {
	a := &models.ExtractedFields{Title: "Two  Bedroom\tFlat"}
	b := &models.ExtractedFields{Title: "two bedroom flat"}

	assert.Equal(t, HashFields(a), HashFields(b))
}

func TestHashFields_PriceChangeChangesHash(t *testing.T) {
	a := &models.ExtractedFields{Title: "flat", Price: floatPtr(100)}
	b := &models.ExtractedFields{Title: "flat", Price: floatPtr(101)}

	assert.NotEqual(t, HashFields(a), HashFields(b))
}

func TestHashFields_CurrencyCaseInsensitive(t *testing.T) {
	a := &models.ExtractedFields{Currency: "eur"}
	b := &models.ExtractedFields{Currency: "EUR"}

	assert.Equal(t, HashFields(a), HashFields(b))
}

func TestHashFields_CoordinateJitterBeyondSixDecimals(t *testing.T) {
	a := &models.ExtractedFields{Lat: floatPtr(44.4267890), Lng: floatPtr(26.1025430)}
	b := &models.ExtractedFields{Lat: floatPtr(44.42678904), Lng: floatPtr(26.10254301)}
	c := &models.ExtractedFields{Lat: floatPtr(44.4267900), Lng: floatPtr(26.1025430)}

	assert.Equal(t, HashFields(a), HashFields(b), "jitter past 6 decimals must not change the hash")
	assert.NotEqual(t, HashFields(a), HashFields(c), "a change in the 6th decimal must change the hash")
}

func TestHashFields_PhotoURLChurnIgnored(t *testing.T) {
	a := &models.ExtractedFields{PhotoURLs: []string{"https://cdn.a/1.jpg", "https://cdn.a/2.jpg"}}
	b := &models.ExtractedFields{PhotoURLs: []string{"https://cdn.b/x.jpg", "https://cdn.b/y.jpg"}}
	c := &models.ExtractedFields{PhotoURLs: []string{"https://cdn.a/1.jpg"}}

	assert.Equal(t, HashFields(a), HashFields(b), "only the photo count contributes")
	assert.NotEqual(t, HashFields(a), HashFields(c), "photo count change must change the hash")
}

func TestHashFields_AbsentAndZeroDiffer(t *testing.T) {
	a := &models.ExtractedFields{Title: "flat", Floor: intPtr(0)}
	b := &models.ExtractedFields{Title: "flat"}

	assert.NotEqual(t, HashFields(a), HashFields(b))
}

func TestHashFields_FullFieldSetDeterministic(t *testing.T) {
	fields := &models.ExtractedFields{
		Title:     "Spacious 3-room apartment",
		Price:     floatPtr(125000),
		Currency:  "EUR",
		AreaM2:    floatPtr(72.5),
		Rooms:     floatPtr(3),
		Floor:     intPtr(4),
		YearBuilt: intPtr(2011),
		Address:   "Str. Exemplu 10",
		City:      "Bucuresti",
		AreaSlug:  "titan",
		Lat:       floatPtr(44.43),
		Lng:       floatPtr(26.10),
		PhotoURLs: []string{"https://cdn/1.jpg"},
	}

	assert.Equal(t, HashFields(fields), HashFields(fields))
	assert.Len(t, HashFields(fields), 64, "hex-encoded sha-256")
}
