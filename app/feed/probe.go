package feed

import (
	"context"
	"fmt"
)

// Prober checks that a URL serves a parseable feed.
type Prober struct {
	fetcher *Fetcher
	parser  *Parser
}

func NewProber(fetcher *Fetcher, parser *Parser) *Prober {
	return &Prober{fetcher: fetcher, parser: parser}
}

// Probe fetches url unconditionally and parses it, returning the number of
// entries found.
func (p *Prober) Probe(ctx context.Context, url string) (int, error) {
	result, err := p.fetcher.Fetch(ctx, url, "", "")
	if err != nil {
		return 0, err
	}

	_, entries, err := p.parser.Run(result.Body, result.Encoding)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", url, err)
	}

	return len(entries), nil
}
