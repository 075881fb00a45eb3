package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/casaval/casaval/internal/interfaces"
	badgerstore "github.com/casaval/casaval/internal/storage/badger"
)

func newTestFetcher(t *testing.T, opts Options) (*Fetcher, interfaces.FetchStorage) {
	t.Helper()
	logger := arbor.NewLogger()
	manager, err := badgerstore.NewManagerInMemory(logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	if opts.UserAgent == "" {
		opts.UserAgent = "CasavalBot/1.0"
	}
	return New(manager.Fetch(), opts, logger), manager.Fetch()
}

func TestFetcher_ConditionalGetRoundTrip(t *testing.T) {
	const etag = `"v1"`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		w.Write([]byte("<html>listing</html>"))
	}))
	defer server.Close()

	f, fetchStorage := newTestFetcher(t, Options{})
	ctx := context.Background()

	// First fetch: full body, validators cached
	result, err := f.Fetch(ctx, server.URL)
	require.NoError(t, err)
	assert.False(t, result.NotModified)
	assert.Equal(t, "<html>listing</html>", string(result.Body))

	cached, err := fetchStorage.GetHostCache(ctx, server.URL)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, etag, cached.ETag)

	// Second fetch: validators replayed, server answers 304
	result, err = f.Fetch(ctx, server.URL)
	require.NoError(t, err)
	assert.True(t, result.NotModified)
	assert.Empty(t, result.Body)
}

func TestFetcher_SendsConfiguredUserAgent(t *testing.T) {
	var gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	f, _ := newTestFetcher(t, Options{UserAgent: "CasavalBot/1.0 (+https://casaval.example/bot)"})
	_, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "CasavalBot/1.0 (+https://casaval.example/bot)", gotAgent)
}

func TestFetcher_BodySizeCap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer server.Close()

	f, _ := newTestFetcher(t, Options{MaxBodySize: 1024})
	result, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Len(t, result.Body, 1024)
}

func TestFetcher_ServerErrorIsReturned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	f, fetchStorage := newTestFetcher(t, Options{})
	_, err := f.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	// The failed attempt still lands in the audit log
	logs, err := fetchStorage.ListFetchLogs(context.Background(), server.URL, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, http.StatusBadGateway, logs[0].StatusCode)
	assert.NotEmpty(t, logs[0].Error)
}

func TestFetcher_TimeoutIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte("too late"))
	}))
	defer server.Close()

	f, _ := newTestFetcher(t, Options{Timeout: 50 * time.Millisecond})
	_, err := f.Fetch(context.Background(), server.URL)
	assert.Error(t, err)
}

func TestFetcher_SuccessLoggedWithByteSize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer server.Close()

	f, fetchStorage := newTestFetcher(t, Options{})
	_, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)

	logs, err := fetchStorage.ListFetchLogs(context.Background(), server.URL, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, http.StatusOK, logs[0].StatusCode)
	assert.Equal(t, 5, logs[0].ByteSize)
	assert.Empty(t, logs[0].Error)
}
