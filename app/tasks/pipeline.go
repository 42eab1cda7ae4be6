package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lysyi3m/rss-merge/app/database"
	"github.com/lysyi3m/rss-merge/app/feed"
)

const NoActiveFeeds = "there are no active feeds to fetch"

type FeedStatus string

const (
	FeedNotModified FeedStatus = "not_modified"
	FeedUpdated     FeedStatus = "updated"
	FeedFailed      FeedStatus = "failed"
)

type FeedReport struct {
	FeedID   int64      `json:"feed_id"`
	URL      string     `json:"url"`
	Status   FeedStatus `json:"status"`
	Items    int        `json:"items"`
	NewItems int        `json:"new_items"`
	Error    string     `json:"error,omitempty"`
	Lines    []string   `json:"lines"`
}

// Report is the outcome of one pipeline run.
type Report struct {
	RunID       string        `json:"run_id"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Feeds       []FeedReport  `json:"feeds"`
	Lines       []string      `json:"lines"`
	Items       int           `json:"items"`
	NewItems    int           `json:"new_items"`
	FailedFeeds int           `json:"failed_feeds"`
}

type SettingsProvider interface {
	Get() *feed.Settings
}

// Pipeline fetches feeds, stores their new items and keeps the cache
// validators of every feed current.
type Pipeline struct {
	feedRepo  database.FeedRepository
	itemRepo  database.ItemRepository
	eventRepo database.EventRepository
	fetcher   *feed.Fetcher
	parser    *feed.Parser
	extractor *feed.ContentExtractor
	settings  SettingsProvider
}

func NewPipeline(feedRepo database.FeedRepository, itemRepo database.ItemRepository, eventRepo database.EventRepository,
	fetcher *feed.Fetcher, parser *feed.Parser, extractor *feed.ContentExtractor, settings SettingsProvider) *Pipeline {
	return &Pipeline{
		feedRepo:  feedRepo,
		itemRepo:  itemRepo,
		eventRepo: eventRepo,
		fetcher:   fetcher,
		parser:    parser,
		extractor: extractor,
		settings:  settings,
	}
}

// Run processes feeds one at a time. A failing feed is recorded on the
// report and never stops the run.
func (p *Pipeline) Run(ctx context.Context, feeds []database.Feed, now time.Time, reporter Reporter) (*Report, error) {
	if reporter == nil {
		reporter = nopReporter{}
	}

	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: now,
	}
	started := time.Now()

	if len(feeds) == 0 {
		report.Lines = append(report.Lines, NoActiveFeeds)
		reporter.Line(NoActiveFeeds)
		return report, nil
	}

	settings := p.settings.Get()
	for _, f := range feeds {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		result := p.processFeed(ctx, f, settings, now, reporter)
		report.Feeds = append(report.Feeds, result)
		report.Lines = append(report.Lines, result.Lines...)
		report.Items += result.Items
		report.NewItems += result.NewItems
		if result.Status == FeedFailed {
			report.FailedFeeds++
		}
	}

	report.Duration = time.Since(started)
	return report, nil
}

func (p *Pipeline) processFeed(ctx context.Context, f database.Feed, settings *feed.Settings,
	now time.Time, reporter Reporter) FeedReport {
	result := FeedReport{FeedID: f.ID, URL: f.URL}
	lines := &feedLines{reporter: reporter, report: &result}

	fail := func(err error) FeedReport {
		slog.Warn("Failed to process feed", "url", f.URL, "error", err)
		result.Status = FeedFailed
		result.Error = err.Error()
		lines.Line(err.Error())
		return result
	}

	lines.Line("Fetching " + f.URL)

	fetched, err := p.fetcher.Fetch(ctx, f.URL, f.ETag, f.LastModified)
	if err != nil {
		return fail(err)
	}
	if fetched.NotModified {
		result.Status = FeedNotModified
		lines.Line("Not modified")
		return result
	}

	_, entries, err := p.parser.Run(fetched.Body, fetched.Encoding)
	if err != nil {
		return fail(err)
	}

	for i := range entries {
		entry := &entries[i]
		result.Items++
		if entry.ID == "" {
			lines.Line(fmt.Sprintf("Skipped item %d for feed %s without an identifier", i+1, f.URL))
			continue
		}

		inserted, err := p.storeEntry(ctx, f, entry, settings, now)
		if err != nil {
			slog.Warn("Failed to add item", "feed", f.URL, "uid", entry.ID, "error", err)
			message := fmt.Sprintf("Unable to add item %s for feed %s: %v", entry.ID, f.URL, err)
			if err := p.eventRepo.AddEvent(ctx, message); err != nil {
				slog.Warn("Failed to write event log", "feed", f.URL, "error", err)
			}
			lines.Line(message)
			continue
		}

		if inserted {
			result.NewItems++
		}
	}

	if err := p.feedRepo.UpdateCacheHeaders(ctx, f.ID, fetched.ETag, fetched.LastModified); err != nil {
		return fail(err)
	}

	result.Status = FeedUpdated
	summary := fmt.Sprintf("%d items, %d new items", result.Items, result.NewItems)
	lines.Line(summary)

	if result.NewItems > 0 {
		if err := p.eventRepo.AddEvent(ctx, fmt.Sprintf("Feed %s %s", f.URL, summary)); err != nil {
			slog.Warn("Failed to write event log", "feed", f.URL, "error", err)
		}
	}

	slog.Info("Feed processed", "url", f.URL, "items", result.Items, "new", result.NewItems)
	return result
}

// storeEntry inserts the entry when its uid is new for the feed and then
// writes its properties. It reports whether the entry was new.
func (p *Pipeline) storeEntry(ctx context.Context, f database.Feed, entry *feed.Entry,
	settings *feed.Settings, now time.Time) (bool, error) {
	published := now
	switch {
	case entry.Published != nil:
		published = *entry.Published
	case entry.Updated != nil:
		published = *entry.Updated
	default:
		slog.Debug("Item has no date, using fetch time", "feed", f.URL, "uid", entry.ID)
	}

	itemID, inserted, err := p.itemRepo.AddItem(ctx, f.ID, entry.ID, published, now)
	if err != nil || !inserted {
		return false, err
	}

	properties := p.properties(ctx, entry, settings)
	if err := p.itemRepo.AddItemProperties(ctx, itemID, properties); err != nil {
		return false, err
	}

	return true, nil
}

func (p *Pipeline) properties(ctx context.Context, entry *feed.Entry, settings *feed.Settings) map[string]string {
	content := feed.EffectiveContent(*entry, settings.UseSummary)
	if content == "" && settings.ExtractContent && entry.Link != "" && p.extractor != nil {
		extracted, err := p.extractor.Extract(ctx, entry.Link)
		if err != nil {
			slog.Debug("Content extraction failed", "link", entry.Link, "error", err)
		} else {
			content = extracted
		}
	}
	if settings.ContentFiltering {
		sanitized, err := feed.Sanitize(content)
		if err != nil {
			slog.Debug("Content filtering failed", "uid", entry.ID, "error", err)
		} else {
			content = sanitized
		}
	}

	properties := map[string]string{
		"title":         entry.Title,
		"url":           entry.Link,
		"language":      entry.Language,
		"author":        entry.Author,
		"content":       content,
		"enclosureurl":  entry.EnclosureURL,
		"enclosuretype": entry.EnclosureType,
	}
	if feed.IsRTL(entry.Language) {
		properties["rtl"] = "1"
	}

	for _, spec := range settings.Elements() {
		if value, ok := entry.Lookup(spec); ok {
			properties[spec.Property()] = value
		}
	}

	for name, value := range properties {
		if value == "" {
			delete(properties, name)
			continue
		}
		properties[name] = feed.EncodeSupplementary(value)
	}

	return properties
}
