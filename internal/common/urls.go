package common

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// trackingParams are query parameters stripped during normalization.
// They vary per visitor and would defeat the unique-URL enqueue check.
var trackingParams = map[string]bool{
	"fbclid":       true,
	"gclid":        true,
	"utm_campaign": true,
	"utm_content":  true,
	"utm_medium":   true,
	"utm_source":   true,
	"utm_term":     true,
}

// NormalizeURL canonicalizes a raw URL so that logically identical URLs
// map to the same string: lowercased scheme and host, default ports and
// fragments removed, tracking parameters stripped, remaining query
// parameters sorted, trailing slash trimmed from non-root paths.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("failed to parse url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q in url %q", u.Scheme, rawURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in url %q", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	// Strip default ports
	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	} else {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	// Drop tracking params, sort the rest for stable ordering
	if u.RawQuery != "" {
		values := u.Query()
		for param := range values {
			if trackingParams[strings.ToLower(param)] {
				values.Del(param)
			}
		}
		u.RawQuery = encodeSorted(values)
	}

	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	return u.String(), nil
}

// DomainOf extracts the lowercased host (without port) from a URL.
// Returns an empty string for unparseable input.
func DomainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// encodeSorted encodes query values with deterministic key order
func encodeSorted(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range values[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
