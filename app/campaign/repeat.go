package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/rss-merge/app/database"
	"github.com/lysyi3m/rss-merge/app/feed"
)

type Outcome string

const (
	OutcomeNoop           Outcome = "noop"
	OutcomeAdvanced       Outcome = "advanced"
	OutcomeFinished       Outcome = "finished"
	OutcomeAlreadyHandled Outcome = "already_handled"
	OutcomeFailed         Outcome = "failed"
)

// TickOutcome records what a queue tick did to one message.
type TickOutcome struct {
	MessageID int64   `json:"message_id"`
	Outcome   Outcome `json:"outcome"`
	Items     int     `json:"items"`
	Error     string  `json:"error,omitempty"`
}

// RepeatScheduler decides on every queue tick whether a ready RSS message
// is held back, re-embargoed for its next period or finished.
type RepeatScheduler struct {
	messages database.MessageRepository
	events   database.EventRepository
	selector *Selector
	settings SettingsProvider
}

func NewRepeatScheduler(messages database.MessageRepository, events database.EventRepository,
	selector *Selector, settings SettingsProvider) *RepeatScheduler {
	return &RepeatScheduler{
		messages: messages,
		events:   events,
		selector: selector,
		settings: settings,
	}
}

func (r *RepeatScheduler) Tick(ctx context.Context, now time.Time) ([]TickOutcome, error) {
	messages, err := r.messages.ReadyMessages(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get ready messages: %w", err)
	}

	settings := r.settings.Get()
	outcomes := make([]TickOutcome, 0, len(messages))
	for i := range messages {
		message := &messages[i]
		if !message.IsRSS() {
			continue
		}

		outcome := r.evaluate(ctx, message, settings, now)
		if outcome.Error != "" {
			slog.Error("Failed to evaluate RSS message", "message_id", message.ID, "error", outcome.Error)
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes, nil
}

func (r *RepeatScheduler) evaluate(ctx context.Context, message *database.Message, settings *feed.Settings, now time.Time) TickOutcome {
	outcome := TickOutcome{MessageID: message.ID}

	items, err := r.selector.ItemsForSend(ctx, message, settings)
	if err != nil {
		outcome.Outcome = OutcomeFailed
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Items = len(items)

	if len(items) >= settings.Minimum {
		outcome.Outcome = OutcomeNoop
		return outcome
	}

	advanced, err := r.messages.AdvanceEmbargo(ctx, message.ID, now)
	if err != nil {
		outcome.Outcome = OutcomeFailed
		outcome.Error = err.Error()
		return outcome
	}
	if advanced > 0 {
		outcome.Outcome = OutcomeAdvanced
		r.logEvent(ctx, fmt.Sprintf("Embargo advanced for RSS message %d", message.ID))
		return outcome
	}

	marked, err := r.messages.MarkSent(ctx, message.ID)
	if err != nil {
		outcome.Outcome = OutcomeFailed
		outcome.Error = err.Error()
		return outcome
	}
	if marked == 0 {
		outcome.Outcome = OutcomeAlreadyHandled
		return outcome
	}

	outcome.Outcome = OutcomeFinished
	r.logEvent(ctx, fmt.Sprintf(`RSS message %d marked as "sent" because it has finished repeating`, message.ID))
	return outcome
}

func (r *RepeatScheduler) logEvent(ctx context.Context, entry string) {
	slog.Info(entry)
	if err := r.events.AddEvent(ctx, entry); err != nil {
		slog.Warn("Failed to write event log", "error", err)
	}
}
