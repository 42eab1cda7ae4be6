package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"
)

const DefaultMaxBodySize = 2 * 1024 * 1024

// FetchResult is the outcome of a successful conditional fetch. When
// NotModified is set the other fields are empty.
type FetchResult struct {
	NotModified  bool
	Body         []byte
	ETag         string
	LastModified string
	Encoding     string
}

// FetchError reports a failed fetch of a single feed.
type FetchError struct {
	URL   string
	Cause string
	Err   error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Cause, e.Err)
	}
	return e.Cause
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type Fetcher struct {
	httpClient  *http.Client
	userAgent   string
	maxBodySize int64
}

func NewFetcher(httpClient *http.Client, userAgent string, maxBodySize int64) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	return &Fetcher{
		httpClient:  httpClient,
		userAgent:   userAgent,
		maxBodySize: maxBodySize,
	}
}

// Fetch downloads url, sending the known cache validators so that an
// unchanged feed answers 304 without a body.
func (f *Fetcher) Fetch(ctx context.Context, url, etag, lastModified string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Cause: "failed to create request", Err: err}
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5")
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Cause: "failed to fetch feed", Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		slog.Debug("Feed not modified", "url", url)
		return &FetchResult{NotModified: true}, nil
	case http.StatusOK:
	default:
		return nil, &FetchError{URL: url, Cause: fmt.Sprintf("HTTP error: %s", resp.Status)}
	}

	body, err := f.readBody(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: url, Cause: "failed to read response body", Err: err}
	}

	return &FetchResult{
		Body:         body,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		Encoding:     charsetOf(resp.Header.Get("Content-Type")),
	}, nil
}

// FetchPage downloads an article page with the same client and size limit.
func (f *Fetcher) FetchPage(ctx context.Context, url string) ([]byte, error) {
	result, err := f.Fetch(ctx, url, "", "")
	if err != nil {
		return nil, err
	}
	return result.Body, nil
}

func (f *Fetcher) readBody(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxBodySize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.maxBodySize {
		return nil, fmt.Errorf("response body exceeds maximum size of %d bytes", f.maxBodySize)
	}
	return data, nil
}

func charsetOf(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}
