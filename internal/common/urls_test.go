package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "lowercases scheme and host",
			input: "HTTPS://Example.COM/Listing/42",
			want:  "https://example.com/Listing/42",
		},
		{
			name:  "strips fragment",
			input: "https://example.com/listing/42#photos",
			want:  "https://example.com/listing/42",
		},
		{
			name:  "strips default https port",
			input: "https://example.com:443/listing/42",
			want:  "https://example.com/listing/42",
		},
		{
			name:  "strips default http port",
			input: "http://example.com:80/listing/42",
			want:  "http://example.com/listing/42",
		},
		{
			name:  "keeps non-default port",
			input: "http://example.com:8080/listing/42",
			want:  "http://example.com:8080/listing/42",
		},
		{
			name:  "drops tracking params and sorts the rest",
			input: "https://example.com/search?utm_source=mail&rooms=2&city=cluj&gclid=xyz",
			want:  "https://example.com/search?city=cluj&rooms=2",
		},
		{
			name:  "trims trailing slash",
			input: "https://example.com/listing/42/",
			want:  "https://example.com/listing/42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeURL_EquivalentURLsNormalizeIdentically(t *testing.T) {
	a, err := NormalizeURL("https://Example.com/listing/42?b=2&a=1#top")
	require.NoError(t, err)
	b, err := NormalizeURL("HTTPS://example.COM:443/listing/42/?a=1&b=2")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNormalizeURL_Invalid(t *testing.T) {
	_, err := NormalizeURL("://not-a-url")
	assert.Error(t, err)
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "example.com", DomainOf("https://Example.COM:8443/listing"))
	assert.Equal(t, "www.example.com", DomainOf("http://www.example.com/"))
	assert.Equal(t, "", DomainOf("not a url at all \x00"))
}
