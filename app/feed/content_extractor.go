package feed

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
)

type pageFetcher interface {
	FetchPage(ctx context.Context, url string) ([]byte, error)
}

// ContentExtractor builds content for entries that ship without a body by
// downloading the linked article and extracting its readable part.
type ContentExtractor struct {
	fetcher pageFetcher
}

func NewContentExtractor(fetcher pageFetcher) *ContentExtractor {
	return &ContentExtractor{fetcher: fetcher}
}

func (e *ContentExtractor) Extract(ctx context.Context, link string) (string, error) {
	pageURL, err := url.Parse(link)
	if err != nil || !strings.HasPrefix(pageURL.Scheme, "http") {
		return "", fmt.Errorf("invalid article link %q", link)
	}

	data, err := e.fetcher.FetchPage(ctx, link)
	if err != nil {
		return "", err
	}

	return e.Run(data, pageURL)
}

// Run extracts the article body from an HTML page.
func (e *ContentExtractor) Run(data []byte, pageURL *url.URL) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("HTML data is empty")
	}

	article, err := readability.FromReader(bytes.NewReader(data), pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	if strings.TrimSpace(article.Content) == "" {
		return "", fmt.Errorf("no content extracted from HTML data")
	}

	slog.Debug("Article content extracted", "title", article.Title, "content_length", len(article.Content))

	return article.Content, nil
}
