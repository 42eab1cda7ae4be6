package campaign

import "time"

// SampleItems are placeholder items for previews of a feed that has no
// stored items yet. They are never persisted.
func SampleItems(now time.Time) []MergedItem {
	samples := []struct {
		age     time.Duration
		title   string
		content string
		url     string
	}{
		{10000 * time.Second, "These are sample entries for the test RSS message",
			"<p>Real feed items replace these entries once the feed has been fetched.</p>", "https://example.com/rss/sample-1"},
		{8000 * time.Second, "Adding subscribers",
			"<p>A short description of the second sample entry.</p>", "https://example.com/rss/sample-2"},
		{6000 * time.Second, "Composing a campaign",
			"<p>A short description of the third sample entry.</p>", "https://example.com/rss/sample-3"},
		{4000 * time.Second, "Sending a campaign",
			"<p>A short description of the fourth sample entry.</p>", "https://example.com/rss/sample-4"},
		{0, "Campaign statistics",
			"<p>A short description of the newest sample entry.</p>", "https://example.com/rss/sample-5"},
	}

	items := make([]MergedItem, 0, len(samples))
	for i, sample := range samples {
		published := now.Add(-sample.age)
		items = append(items, MergedItem{
			ID:        int64(-(i + 1)),
			Published: published,
			Properties: map[string]string{
				"title":   sample.title,
				"content": sample.content,
				"url":     sample.url,
			},
		})
	}
	return items
}
