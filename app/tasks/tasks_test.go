package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/rss-merge/app/cache"
	"github.com/lysyi3m/rss-merge/app/campaign"
	"github.com/lysyi3m/rss-merge/app/database"
	"github.com/lysyi3m/rss-merge/app/feed"
)

func TestFetchFeedsTask(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	server := newFeedServer(t, rssDocument("en", threeItems()...), `"v1"`)
	s.addFeed(t, server.URL)
	idle := s.addFeed(t, "https://example.com/unused.xml")

	_, err := s.messages.CreateMessage(ctx, &database.Message{
		Body:           "[RSS]",
		Status:         database.StatusSubmitted,
		Embargo:        fetchTime,
		RepeatInterval: 60,
		RepeatUntil:    fetchTime.Add(24 * time.Hour),
		RSSFeed:        server.URL,
	})
	require.NoError(t, err)

	task := NewFetchFeedsTask("manual", s.feeds, newPipeline(s, feed.DefaultSettings()), cache.NewLocalLocker(), nil)
	require.NoError(t, task.Execute(ctx))
	require.NotNil(t, task.Report)
	require.Len(t, task.Report.Feeds, 1)
	assert.Equal(t, server.URL, task.Report.Feeds[0].URL)
	assert.Equal(t, 3, task.Report.NewItems)

	count, err := s.items.GetItemCount(ctx, idle.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestFetchFeedsTaskSkipsWhenLocked(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	locker := cache.NewLocalLocker()

	lock, err := locker.TryLock(ctx, string(TaskTypeFetchFeeds), time.Minute)
	require.NoError(t, err)
	defer lock.Release(ctx)

	task := NewFetchFeedsTask("manual", s.feeds, newPipeline(s, feed.DefaultSettings()), locker, nil)
	require.NoError(t, task.Execute(ctx))
	assert.Nil(t, task.Report)
}

func TestFetchFeedsTaskWithoutActiveFeeds(t *testing.T) {
	s := newStore(t)
	reporter := &recordingReporter{}

	task := NewFetchFeedsTask("manual", s.feeds, newPipeline(s, feed.DefaultSettings()), cache.NewLocalLocker(), reporter)
	require.NoError(t, task.Execute(context.Background()))
	assert.Equal(t, []string{NoActiveFeeds}, reporter.lines)
}

func TestProcessQueueTask(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	s.addFeed(t, "https://example.com/feed.xml")

	id, err := s.messages.CreateMessage(ctx, &database.Message{
		Body:           "[RSS]",
		Status:         database.StatusSubmitted,
		Embargo:        time.Now().UTC().Add(-90 * time.Minute),
		RepeatInterval: 60,
		RepeatUntil:    time.Now().UTC().Add(24 * time.Hour),
		RSSFeed:        "https://example.com/feed.xml",
	})
	require.NoError(t, err)

	settings := staticSettings{feed.DefaultSettings()}
	selector := campaign.NewSelector(s.items)
	hooks := campaign.NewHooks(s.messages, s.feeds, selector, campaign.NewRenderer(),
		campaign.NewRepeatScheduler(s.messages, s.events, selector, settings), nil, settings)

	task := NewProcessQueueTask("manual", hooks, cache.NewLocalLocker())
	require.NoError(t, task.Execute(ctx))
	require.Len(t, task.Outcomes, 1)
	assert.Equal(t, campaign.OutcomeAdvanced, task.Outcomes[0].Outcome)

	message, err := s.messages.GetMessage(ctx, id)
	require.NoError(t, err)
	assert.True(t, message.Embargo.After(time.Now().UTC()))
}

func TestPurgeTask(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	old := s.addFeed(t, "https://example.com/old.xml")
	_, _, err := s.items.AddItem(ctx, old.ID, "stale", time.Now().UTC().AddDate(0, 0, -40), time.Now().UTC())
	require.NoError(t, err)
	_, _, err = s.items.AddItem(ctx, old.ID, "fresh", time.Now().UTC().AddDate(0, 0, -2), time.Now().UTC())
	require.NoError(t, err)

	task := NewPurgeTask("manual", s.feeds, s.items, 30, true)
	require.NoError(t, task.Execute(ctx))
	assert.Equal(t, PurgeResult{Days: 30, DeletedItems: 1, DeletedFeeds: 1}, task.Result)

	f, err := s.feeds.GetFeed(ctx, old.ID)
	require.NoError(t, err)
	assert.Nil(t, f)

	assert.Error(t, NewPurgeTask("manual", s.feeds, s.items, -1, false).Execute(ctx))
}
