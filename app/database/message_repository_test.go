package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRepoAdvanceEmbargo(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepo(db)
	ctx := context.Background()

	embargo := mustTime(t, "2024-05-01 09:00:00")
	interval := 60

	tests := []struct {
		name     string
		now      time.Time
		expected string
	}{
		{"two and a half intervals late", embargo.Add(150 * time.Minute), "2024-05-01 12:00:00"},
		{"exactly on a boundary", embargo.Add(120 * time.Minute), "2024-05-01 12:00:00"},
		{"seconds past embargo", embargo.Add(30 * time.Second), "2024-05-01 10:00:00"},
		{"at embargo", embargo, "2024-05-01 10:00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := createMessage(t, repo, Message{
				Status:         StatusSubmitted,
				Embargo:        embargo,
				RepeatInterval: interval,
				RepeatUntil:    embargo.AddDate(0, 1, 0),
				RSSFeed:        "https://example.com/rss",
			})

			count, err := repo.AdvanceEmbargo(ctx, id, tt.now)
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)

			message, err := repo.GetMessage(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, FormatTime(message.Embargo))
			assert.True(t, message.Embargo.After(tt.now))

			offset := message.Embargo.Sub(embargo)
			assert.Zero(t, offset%(time.Duration(interval)*time.Minute))
		})
	}
}

func TestMessageRepoAdvanceEmbargoGuardedByRepeatUntil(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepo(db)
	ctx := context.Background()

	embargo := mustTime(t, "2024-05-01 09:00:00")
	id := createMessage(t, repo, Message{
		Status:         StatusSubmitted,
		Embargo:        embargo,
		RepeatInterval: 60,
		RepeatUntil:    embargo.Add(2 * time.Hour),
		RSSFeed:        "https://example.com/rss",
	})

	count, err := repo.AdvanceEmbargo(ctx, id, embargo.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, count)

	message, err := repo.GetMessage(ctx, id)
	require.NoError(t, err)
	assert.True(t, message.Embargo.Equal(embargo))
}

func TestMessageRepoAdvanceEmbargoRequiresInterval(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepo(db)

	embargo := mustTime(t, "2024-05-01 09:00:00")
	id := createMessage(t, repo, Message{
		Status:      StatusSubmitted,
		Embargo:     embargo,
		RepeatUntil: embargo.AddDate(0, 1, 0),
		RSSFeed:     "https://example.com/rss",
	})

	count, err := repo.AdvanceEmbargo(context.Background(), id, embargo.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMessageRepoMarkSent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepo(db)
	ctx := context.Background()

	now := mustTime(t, "2024-05-01 09:00:00")
	id := createMessage(t, repo, Message{Status: StatusSubmitted, Embargo: now, RepeatUntil: now, RSSFeed: "https://example.com/rss"})

	count, err := repo.MarkSent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = repo.MarkSent(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, count)

	message, err := repo.GetMessage(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, message.Status)
}

func TestMessageRepoReadyMessages(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepo(db)
	now := mustTime(t, "2024-05-01 09:00:00")

	due := createMessage(t, repo, Message{Status: StatusSubmitted, Embargo: now, RepeatUntil: now.AddDate(0, 0, 7), RSSFeed: "https://example.com/rss"})
	createMessage(t, repo, Message{Status: StatusSubmitted, Embargo: now.Add(time.Minute), RepeatUntil: now.AddDate(0, 0, 7), RSSFeed: "https://example.com/rss"})
	createMessage(t, repo, Message{Status: StatusDraft, Embargo: now, RepeatUntil: now.AddDate(0, 0, 7), RSSFeed: "https://example.com/rss"})
	createMessage(t, repo, Message{Status: StatusSubmitted, Embargo: now, RepeatUntil: now.AddDate(0, 0, 7)})

	messages, err := repo.ReadyMessages(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, due, messages[0].ID)
	assert.Equal(t, OrderOldestFirst, messages[0].RSSOrder)
	assert.Equal(t, SelectPublished, messages[0].RSSSelectField)
}

func TestMessageRepoGetMessageMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepo(db)

	message, err := repo.GetMessage(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, message)
}

func TestEventRepo(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEventRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.AddEvent(ctx, "first"))
	require.NoError(t, repo.AddEvent(ctx, "second"))

	events, err := repo.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "second", events[0].Entry)
	assert.Equal(t, "first", events[1].Entry)
}
