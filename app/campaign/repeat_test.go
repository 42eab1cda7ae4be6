package campaign

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/rss-merge/app/database"
)

func rssMessage(t *testing.T, embargo, until string) database.Message {
	return database.Message{
		Subject:        "Digest",
		Body:           "[RSS]",
		Status:         database.StatusSubmitted,
		Embargo:        at(t, embargo),
		RepeatInterval: 60,
		RepeatUntil:    at(t, until),
		RSSFeed:        testFeedURL,
	}
}

func newRepeatScheduler(s *store, minimum int) *RepeatScheduler {
	return NewRepeatScheduler(s.messages, s.events, NewSelector(s.items), staticSettings{testSettings(minimum, 30)})
}

func TestTickLeavesMessageWithEnoughItems(t *testing.T) {
	s := newStore(t)
	seedHourlyItems(t, s)
	message := s.addMessage(t, rssMessage(t, "2024-03-10 12:00:00", "2024-03-11 00:00:00"))

	outcomes, err := newRepeatScheduler(s, 1).Tick(context.Background(), at(t, "2024-03-10 12:30:00"))
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, TickOutcome{MessageID: message.ID, Outcome: OutcomeNoop, Items: 3}, outcomes[0])

	stored, err := s.messages.GetMessage(context.Background(), message.ID)
	require.NoError(t, err)
	assert.Equal(t, message.Embargo, stored.Embargo)
	assert.Equal(t, database.StatusSubmitted, stored.Status)
}

func TestTickAdvancesEmbargo(t *testing.T) {
	s := newStore(t)
	seedHourlyItems(t, s)
	message := s.addMessage(t, rssMessage(t, "2024-03-10 12:00:00", "2024-03-11 00:00:00"))

	outcomes, err := newRepeatScheduler(s, 5).Tick(context.Background(), at(t, "2024-03-10 12:30:00"))
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, OutcomeAdvanced, outcomes[0].Outcome)
	assert.Equal(t, 3, outcomes[0].Items)

	stored, err := s.messages.GetMessage(context.Background(), message.ID)
	require.NoError(t, err)
	assert.Equal(t, at(t, "2024-03-10 13:00:00"), stored.Embargo)
	assert.Equal(t, database.StatusSubmitted, stored.Status)

	events, err := s.events.RecentEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Entry, "Embargo advanced for RSS message")
}

func TestTickFinishesRepeating(t *testing.T) {
	s := newStore(t)
	s.addFeed(t, testFeedURL)
	message := s.addMessage(t, rssMessage(t, "2024-03-10 12:00:00", "2024-03-10 12:15:00"))

	outcomes, err := newRepeatScheduler(s, 1).Tick(context.Background(), at(t, "2024-03-10 12:30:00"))
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, OutcomeFinished, outcomes[0].Outcome)

	stored, err := s.messages.GetMessage(context.Background(), message.ID)
	require.NoError(t, err)
	assert.Equal(t, database.StatusSent, stored.Status)
	assert.Equal(t, message.Embargo, stored.Embargo)

	events, err := s.events.RecentEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Entry, `marked as "sent" because it has finished repeating`)

	outcomes, err = newRepeatScheduler(s, 1).Tick(context.Background(), at(t, "2024-03-10 12:30:00"))
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestTickAlreadyHandled(t *testing.T) {
	s := newStore(t)
	s.addFeed(t, testFeedURL)
	message := s.addMessage(t, rssMessage(t, "2024-03-10 12:00:00", "2024-03-10 12:15:00"))

	_, err := s.messages.MarkSent(context.Background(), message.ID)
	require.NoError(t, err)

	scheduler := newRepeatScheduler(s, 1)
	outcome := scheduler.evaluate(context.Background(), message, testSettings(1, 30), at(t, "2024-03-10 12:30:00"))
	assert.Equal(t, OutcomeAlreadyHandled, outcome.Outcome)
	assert.Empty(t, outcome.Error)
}

func TestTickSkipsInactiveMessages(t *testing.T) {
	s := newStore(t)
	s.addFeed(t, testFeedURL)

	draft := rssMessage(t, "2024-03-10 12:00:00", "2024-03-11 00:00:00")
	draft.Status = database.StatusDraft
	s.addMessage(t, draft)

	future := rssMessage(t, "2024-03-10 18:00:00", "2024-03-11 00:00:00")
	s.addMessage(t, future)

	outcomes, err := newRepeatScheduler(s, 1).Tick(context.Background(), at(t, "2024-03-10 12:30:00"))
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}
