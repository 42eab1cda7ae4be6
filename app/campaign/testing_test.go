package campaign

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/rss-merge/app/database"
	"github.com/lysyi3m/rss-merge/app/feed"
)

const testFeedURL = "https://example.com/feed.xml"

type store struct {
	feeds    *database.FeedRepo
	items    *database.ItemRepo
	messages *database.MessageRepo
	events   *database.EventRepo
}

func newStore(t *testing.T) *store {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "campaign.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, _, err = database.RunMigrations(db)
	require.NoError(t, err)

	return &store{
		feeds:    database.NewFeedRepo(db),
		items:    database.NewItemRepo(db),
		messages: database.NewMessageRepo(db),
		events:   database.NewEventRepo(db),
	}
}

func (s *store) addFeed(t *testing.T, url string) int64 {
	t.Helper()
	f, err := s.feeds.AddFeed(context.Background(), url)
	require.NoError(t, err)
	return f.ID
}

func (s *store) addItem(t *testing.T, feedID int64, title string, published time.Time) {
	t.Helper()
	ctx := context.Background()

	id, inserted, err := s.items.AddItem(ctx, feedID, title, published, published)
	require.NoError(t, err)
	require.True(t, inserted)

	require.NoError(t, s.items.AddItemProperties(ctx, id, map[string]string{
		"title":   title,
		"url":     "https://example.com/" + title,
		"content": "<p>" + title + " body</p>",
	}))
}

func (s *store) addMessage(t *testing.T, m database.Message) *database.Message {
	t.Helper()
	id, err := s.messages.CreateMessage(context.Background(), &m)
	require.NoError(t, err)

	message, err := s.messages.GetMessage(context.Background(), id)
	require.NoError(t, err)
	return message
}

func at(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := database.ParseTime(value)
	require.NoError(t, err)
	return ts
}

func titles(items []MergedItem) []string {
	result := make([]string, 0, len(items))
	for _, item := range items {
		result = append(result, item.Title())
	}
	return result
}

type staticSettings struct {
	settings *feed.Settings
}

func (s staticSettings) Get() *feed.Settings {
	return s.settings
}

func testSettings(minimum, maximum int) *feed.Settings {
	settings := feed.DefaultSettings()
	settings.Minimum = minimum
	settings.Maximum = maximum
	return settings
}

type MockProbe struct {
	err   error
	calls []string
}

func (m *MockProbe) Probe(ctx context.Context, url string) (int, error) {
	m.calls = append(m.calls, url)
	if m.err != nil {
		return 0, m.err
	}
	return 3, nil
}

var errUnreachable = errors.New("connection refused")
