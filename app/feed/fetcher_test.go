package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcherModified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "RSS Merge/test", r.Header.Get("User-Agent"))
		assert.Empty(t, r.Header.Get("If-None-Match"))
		assert.Empty(t, r.Header.Get("If-Modified-Since"))

		w.Header().Set("Content-Type", "application/rss+xml; charset=ISO-8859-1")
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Last-Modified", "Mon, 03 Jul 2023 12:00:00 GMT")
		w.Write([]byte("<rss/>"))
	}))
	defer server.Close()

	fetcher := NewFetcher(server.Client(), "RSS Merge/test", 0)
	result, err := fetcher.Fetch(context.Background(), server.URL, "", "")
	require.NoError(t, err)

	assert.False(t, result.NotModified)
	assert.Equal(t, "<rss/>", string(result.Body))
	assert.Equal(t, `"v1"`, result.ETag)
	assert.Equal(t, "Mon, 03 Jul 2023 12:00:00 GMT", result.LastModified)
	assert.Equal(t, "ISO-8859-1", result.Encoding)
}

func TestFetcherNotModified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` && r.Header.Get("If-Modified-Since") == "Mon, 03 Jul 2023 12:00:00 GMT" {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Write([]byte("<rss/>"))
	}))
	defer server.Close()

	fetcher := NewFetcher(server.Client(), "test", 0)
	result, err := fetcher.Fetch(context.Background(), server.URL, `"v1"`, "Mon, 03 Jul 2023 12:00:00 GMT")
	require.NoError(t, err)

	assert.True(t, result.NotModified)
	assert.Nil(t, result.Body)
}

func TestFetcherErrors(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		maxBody  int64
		contains string
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			contains: "HTTP error: 500",
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			contains: "HTTP error: 404",
		},
		{
			name: "body too large",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(strings.Repeat("x", 2048)))
			},
			maxBody:  1024,
			contains: "exceeds maximum size of 1024 bytes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			fetcher := NewFetcher(server.Client(), "test", tt.maxBody)
			result, err := fetcher.Fetch(context.Background(), server.URL, "", "")
			require.Error(t, err)
			assert.Nil(t, result)

			var fetchErr *FetchError
			require.True(t, errors.As(err, &fetchErr))
			assert.Equal(t, server.URL, fetchErr.URL)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestFetcherBodyAtLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 1024)))
	}))
	defer server.Close()

	fetcher := NewFetcher(server.Client(), "test", 1024)
	result, err := fetcher.Fetch(context.Background(), server.URL, "", "")
	require.NoError(t, err)
	assert.Len(t, result.Body, 1024)
}

func TestFetcherTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	fetcher := NewFetcher(nil, "test", 0)
	_, err := fetcher.Fetch(context.Background(), url, "", "")

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "failed to fetch feed", fetchErr.Cause)
}
