package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

const jsonLDPage = `<html><head><title>Fallback Title</title>
<script type="application/ld+json">
{"@context":"https://schema.org","@type":"Apartment","name":"Apartament 3 camere Titan",
 "numberOfRooms":3,"floorSize":{"value":72.5,"unitCode":"MTK"},"yearBuilt":2011,
 "geo":{"latitude":44.4268,"longitude":26.1025},
 "offers":{"@type":"Offer","price":125000,"priceCurrency":"EUR"},
 "address":{"@type":"PostalAddress","streetAddress":"Str. Exemplu 10","addressLocality":"Bucuresti"},
 "image":["https://cdn.example.com/1.jpg","https://cdn.example.com/2.jpg"]}
</script></head><body></body></html>`

func TestExtract_JSONLD(t *testing.T) {
	extractor := New(arbor.NewLogger())

	fields, err := extractor.Extract("https://example.com/listing/1", []byte(jsonLDPage))
	require.NoError(t, err)

	assert.Equal(t, "Apartament 3 camere Titan", fields.Title)
	require.NotNil(t, fields.Price)
	assert.Equal(t, 125000.0, *fields.Price)
	assert.Equal(t, "EUR", fields.Currency)
	require.NotNil(t, fields.AreaM2)
	assert.Equal(t, 72.5, *fields.AreaM2)
	require.NotNil(t, fields.Rooms)
	assert.Equal(t, 3.0, *fields.Rooms)
	require.NotNil(t, fields.YearBuilt)
	assert.Equal(t, 2011, *fields.YearBuilt)
	assert.Equal(t, "Str. Exemplu 10", fields.Address)
	assert.Equal(t, "Bucuresti", fields.City)
	require.NotNil(t, fields.Lat)
	assert.Equal(t, 44.4268, *fields.Lat)
	assert.Len(t, fields.PhotoURLs, 2)
}

func TestExtract_OpenGraphFallback(t *testing.T) {
	page := `<html><head>
<meta property="og:title" content="Garsoniera centrala" />
<meta property="og:image" content="https://cdn.example.com/og.jpg" />
<meta property="product:price:amount" content="45000" />
<meta property="product:price:currency" content="EUR" />
</head><body></body></html>`

	extractor := New(arbor.NewLogger())
	fields, err := extractor.Extract("https://example.com/listing/2", []byte(page))
	require.NoError(t, err)

	assert.Equal(t, "Garsoniera centrala", fields.Title)
	require.NotNil(t, fields.Price)
	assert.Equal(t, 45000.0, *fields.Price)
	assert.Equal(t, "EUR", fields.Currency)
	assert.Equal(t, []string{"https://cdn.example.com/og.jpg"}, fields.PhotoURLs)
}

func TestExtract_MissingFieldsAreNotErrors(t *testing.T) {
	page := `<html><head><title>Bare page</title></head><body><p>no structured data</p></body></html>`

	extractor := New(arbor.NewLogger())
	fields, err := extractor.Extract("https://example.com/listing/3", []byte(page))
	require.NoError(t, err)

	assert.Equal(t, "Bare page", fields.Title)
	assert.Nil(t, fields.Price)
	assert.Nil(t, fields.AreaM2)
	assert.Nil(t, fields.Lat)
}

func TestExtract_MalformedJSONLDIsSkipped(t *testing.T) {
	page := `<html><head><title>Broken</title>
<script type="application/ld+json">{not valid json</script>
</head><body></body></html>`

	extractor := New(arbor.NewLogger())
	fields, err := extractor.Extract("https://example.com/listing/4", []byte(page))
	require.NoError(t, err)
	assert.Equal(t, "Broken", fields.Title)
}

func TestExtract_LinksSameHostOnly(t *testing.T) {
	page := `<html><body>
<a href="/listing/1">One</a>
<a href="/listing/1">One again</a>
<a href="https://example.com/listing/2#photos">Two</a>
<a href="https://elsewhere.example.net/listing/3">External</a>
<a href="mailto:agent@example.com">Mail</a>
</body></html>`

	extractor := New(arbor.NewLogger())
	fields, err := extractor.Extract("https://example.com/search?city=bucuresti", []byte(page))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://example.com/listing/1",
		"https://example.com/listing/2",
	}, fields.Links)
}
