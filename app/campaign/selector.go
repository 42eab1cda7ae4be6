package campaign

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/lysyi3m/rss-merge/app/database"
	"github.com/lysyi3m/rss-merge/app/feed"
)

const (
	WarningOlderItems  = "There are no feed items that will be included in the first campaign. A test message will include only items with earlier published dates."
	WarningSampleItems = "There are no feed items. A test message will include the sample items."
)

// Window bounds item timestamps to [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

type Criteria struct {
	FeedURL  string
	Window   *Window
	MaxCount int
	Order    database.ItemOrder
	Field    database.SelectField
}

// MergedItem is a stored item with its properties gathered into one record.
type MergedItem struct {
	ID         int64
	Published  time.Time
	Properties map[string]string
}

func (m MergedItem) Get(name string) string {
	return m.Properties[name]
}

func (m MergedItem) Title() string    { return m.Properties["title"] }
func (m MergedItem) URL() string      { return m.Properties["url"] }
func (m MergedItem) Content() string  { return m.Properties["content"] }
func (m MergedItem) Language() string { return m.Properties["language"] }

type SettingsProvider interface {
	Get() *feed.Settings
}

// Selector picks the stored items that go into a message.
type Selector struct {
	items database.ItemRepository
	now   func() time.Time
}

func NewSelector(items database.ItemRepository) *Selector {
	return &Selector{items: items, now: time.Now}
}

// SelectForMessage returns at most MaxCount of the newest qualifying items,
// in ascending order unless latest-first ordering is requested.
func (s *Selector) SelectForMessage(ctx context.Context, c Criteria) ([]MergedItem, error) {
	query := database.ItemQuery{
		FeedURL: c.FeedURL,
		Field:   c.Field,
		Limit:   c.MaxCount,
	}
	if c.Window != nil {
		query.Start = &c.Window.Start
		query.End = &c.Window.End
	}

	records, err := s.items.SelectItems(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select items for %s: %w", c.FeedURL, err)
	}

	items := make([]MergedItem, 0, len(records))
	for _, record := range records {
		items = append(items, MergedItem{
			ID:         record.ID,
			Published:  record.Published,
			Properties: record.Properties,
		})
	}

	if c.Order == database.OrderLatestFirst {
		slices.Reverse(items)
	}

	return items, nil
}

// LiveWindow is the range of item timestamps a send of message may include.
func LiveWindow(message *database.Message) *Window {
	interval := time.Duration(message.RepeatInterval) * time.Minute
	return &Window{
		Start: message.Embargo.Add(-interval),
		End:   message.Embargo,
	}
}

func criteriaFor(message *database.Message, settings *feed.Settings, window *Window) Criteria {
	return Criteria{
		FeedURL:  message.RSSFeed,
		Window:   window,
		MaxCount: settings.Maximum,
		Order:    message.RSSOrder,
		Field:    message.RSSSelectField,
	}
}

// ItemsForSend returns the items of the live window.
func (s *Selector) ItemsForSend(ctx context.Context, message *database.Message, settings *feed.Settings) ([]MergedItem, error) {
	return s.SelectForMessage(ctx, criteriaFor(message, settings, LiveWindow(message)))
}

// ItemsForTest returns items for a test send or preview. When the live
// window is empty it falls back to any items published before the embargo
// and then to sample items, reporting which fallback was used.
func (s *Selector) ItemsForTest(ctx context.Context, message *database.Message, settings *feed.Settings) ([]MergedItem, string, error) {
	items, err := s.ItemsForSend(ctx, message, settings)
	if err != nil {
		return nil, "", err
	}
	if len(items) > 0 {
		return items, "", nil
	}

	items, err = s.SelectForMessage(ctx, criteriaFor(message, settings, &Window{End: message.Embargo}))
	if err != nil {
		return nil, "", err
	}
	if len(items) > 0 {
		return items, WarningOlderItems, nil
	}

	items = SampleItems(s.now())
	if len(items) > settings.Maximum {
		items = items[len(items)-settings.Maximum:]
	}
	if message.RSSOrder == database.OrderLatestFirst {
		slices.Reverse(items)
	}
	return items, WarningSampleItems, nil
}
