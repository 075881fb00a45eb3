// Package extract turns fetched HTML into structured listing fields. It
// prefers JSON-LD structured data and falls back to OpenGraph metadata;
// fields that cannot be recovered stay nil rather than failing the page.
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/casaval/casaval/internal/interfaces"
	"github.com/casaval/casaval/internal/models"
)

// Extractor parses listing pages and discover pages
type Extractor struct {
	logger arbor.ILogger
}

// New creates an Extractor
func New(logger arbor.ILogger) *Extractor {
	return &Extractor{logger: logger}
}

var _ interfaces.Extractor = (*Extractor)(nil)

// Extract parses one HTML page. An error here means the document itself is
// unparseable; individual missing fields are not errors.
func (e *Extractor) Extract(pageURL string, body []byte) (*models.ExtractedFields, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("extract: parse html: %w", err)
	}

	fields := &models.ExtractedFields{}

	e.applyJSONLD(doc, fields)
	e.applyOpenGraph(doc, fields)

	if fields.Title == "" {
		fields.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	fields.Links = e.extractLinks(doc, pageURL)

	return fields, nil
}

// applyJSONLD walks every application/ld+json script and fills fields from
// the first real-estate shaped object it finds.
func (e *Extractor) applyJSONLD(doc *goquery.Document, fields *models.ExtractedFields) {
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var raw interface{}
		if err := json.Unmarshal([]byte(sel.Text()), &raw); err != nil {
			return true // malformed block, try the next one
		}
		for _, obj := range flattenJSONLD(raw) {
			if e.applyListingObject(obj, fields) {
				return false
			}
		}
		return true
	})
}

// flattenJSONLD unwraps arrays and @graph containers into a flat object list
func flattenJSONLD(raw interface{}) []map[string]interface{} {
	var out []map[string]interface{}
	switch v := raw.(type) {
	case []interface{}:
		for _, item := range v {
			out = append(out, flattenJSONLD(item)...)
		}
	case map[string]interface{}:
		out = append(out, v)
		if graph, ok := v["@graph"].([]interface{}); ok {
			for _, item := range graph {
				out = append(out, flattenJSONLD(item)...)
			}
		}
	}
	return out
}

var listingTypes = map[string]bool{
	"RealEstateListing":     true,
	"Product":               true,
	"Offer":                 true,
	"Apartment":             true,
	"House":                 true,
	"SingleFamilyResidence": true,
	"Residence":             true,
	"Place":                 true,
}

func (e *Extractor) applyListingObject(obj map[string]interface{}, fields *models.ExtractedFields) bool {
	if !listingTypes[jsonString(obj["@type"])] {
		return false
	}

	if title := jsonString(obj["name"]); title != "" {
		fields.Title = title
	}

	if offers, ok := obj["offers"].(map[string]interface{}); ok {
		if price := jsonFloat(offers["price"]); price != nil {
			fields.Price = price
		}
		if currency := jsonString(offers["priceCurrency"]); currency != "" {
			fields.Currency = currency
		}
	}
	if price := jsonFloat(obj["price"]); price != nil && fields.Price == nil {
		fields.Price = price
		fields.Currency = jsonString(obj["priceCurrency"])
	}

	if size, ok := obj["floorSize"].(map[string]interface{}); ok {
		fields.AreaM2 = jsonFloat(size["value"])
	}
	if rooms := jsonFloat(obj["numberOfRooms"]); rooms != nil {
		fields.Rooms = rooms
	}
	if year := jsonFloat(obj["yearBuilt"]); year != nil {
		y := int(*year)
		fields.YearBuilt = &y
	}

	if addr, ok := obj["address"].(map[string]interface{}); ok {
		fields.Address = jsonString(addr["streetAddress"])
		fields.City = jsonString(addr["addressLocality"])
	}
	if geo, ok := obj["geo"].(map[string]interface{}); ok {
		fields.Lat = jsonFloat(geo["latitude"])
		fields.Lng = jsonFloat(geo["longitude"])
	}

	switch photos := obj["image"].(type) {
	case string:
		fields.PhotoURLs = []string{photos}
	case []interface{}:
		for _, p := range photos {
			if s := jsonString(p); s != "" {
				fields.PhotoURLs = append(fields.PhotoURLs, s)
			}
		}
	}

	return true
}

// applyOpenGraph fills gaps left by JSON-LD from og: meta tags
func (e *Extractor) applyOpenGraph(doc *goquery.Document, fields *models.ExtractedFields) {
	metaContent := func(property string) string {
		content, _ := doc.Find(`meta[property="` + property + `"]`).First().Attr("content")
		return strings.TrimSpace(content)
	}

	if fields.Title == "" {
		fields.Title = metaContent("og:title")
	}
	if len(fields.PhotoURLs) == 0 {
		if img := metaContent("og:image"); img != "" {
			fields.PhotoURLs = []string{img}
		}
	}
	if fields.Lat == nil {
		fields.Lat = parseFloatPtr(metaContent("place:location:latitude"))
		fields.Lng = parseFloatPtr(metaContent("place:location:longitude"))
	}
	if fields.Price == nil {
		fields.Price = parseFloatPtr(metaContent("product:price:amount"))
		if fields.Price != nil {
			fields.Currency = metaContent("product:price:currency")
		}
	}
}

// extractLinks collects same-host absolute links for discover pages
func (e *Extractor) extractLinks(doc *goquery.Document, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		if !strings.EqualFold(resolved.Host, base.Host) {
			return
		}
		resolved.Fragment = ""
		link := resolved.String()
		if !seen[link] {
			seen[link] = true
			links = append(links, link)
		}
	})
	return links
}

func jsonString(v interface{}) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func jsonFloat(v interface{}) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case string:
		return parseFloatPtr(n)
	}
	return nil
}

func parseFloatPtr(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return nil
	}
	return &f
}
