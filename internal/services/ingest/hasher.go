// Package ingest turns extracted fields into canonical listings. The
// content hash is the idempotency key: identical substance hashes
// identically regardless of field order, title casing or photo URL churn.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/casaval/casaval/internal/models"
)

// HashFields computes the canonical SHA-256 content hash of extracted
// fields. Normalization before hashing:
//   - title lowercased with whitespace runs collapsed
//   - currency uppercased
//   - coordinates rounded to 6 decimal places (~11 cm)
//   - photos contribute their count only, not their URLs
//
// Keys are serialized in sorted order; nil fields are omitted entirely so
// "absent" and "zero" hash differently.
func HashFields(fields *models.ExtractedFields) string {
	parts := map[string]string{}

	if title := normalizeTitle(fields.Title); title != "" {
		parts["title"] = title
	}
	if fields.Price != nil {
		parts["price"] = formatFloat(*fields.Price)
	}
	if currency := strings.ToUpper(strings.TrimSpace(fields.Currency)); currency != "" {
		parts["currency"] = currency
	}
	if fields.AreaM2 != nil {
		parts["area_m2"] = formatFloat(*fields.AreaM2)
	}
	if fields.Rooms != nil {
		parts["rooms"] = formatFloat(*fields.Rooms)
	}
	if fields.Floor != nil {
		parts["floor"] = strconv.Itoa(*fields.Floor)
	}
	if fields.YearBuilt != nil {
		parts["year_built"] = strconv.Itoa(*fields.YearBuilt)
	}
	if addr := collapseWhitespace(fields.Address); addr != "" {
		parts["address"] = addr
	}
	if city := strings.ToLower(collapseWhitespace(fields.City)); city != "" {
		parts["city"] = city
	}
	if slug := strings.ToLower(strings.TrimSpace(fields.AreaSlug)); slug != "" {
		parts["area_slug"] = slug
	}
	if fields.Lat != nil {
		parts["lat"] = formatCoordinate(*fields.Lat)
	}
	if fields.Lng != nil {
		parts["lng"] = formatCoordinate(*fields.Lng)
	}
	if len(fields.PhotoURLs) > 0 {
		parts["photo_count"] = strconv.Itoa(len(fields.PhotoURLs))
	}

	keys := make([]string, 0, len(parts))
	for k := range parts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var builder strings.Builder
	for _, k := range keys {
		builder.WriteString(k)
		builder.WriteByte('=')
		builder.WriteString(parts[k])
		builder.WriteByte('\n')
	}

	digest := sha256.Sum256([]byte(builder.String()))
	return hex.EncodeToString(digest[:])
}

func normalizeTitle(title string) string {
	return strings.ToLower(collapseWhitespace(title))
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// formatCoordinate rounds to 6 decimals so provider-side jitter past that
// precision does not change the hash
func formatCoordinate(f float64) string {
	rounded := math.Round(f*1e6) / 1e6
	return fmt.Sprintf("%.6f", rounded)
}
