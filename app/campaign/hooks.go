package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/lysyi3m/rss-merge/app/database"
)

// ValidationError explains why a message cannot be queued as an RSS campaign.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

type FeedProbe interface {
	Probe(ctx context.Context, url string) (int, error)
}

type Part int

const (
	PartHTML Part = iota
	PartText
)

var httpURL = regexp.MustCompile(`(?i)^http`)

// Hooks are the campaign lifecycle callbacks of the RSS engine.
type Hooks struct {
	messages database.MessageRepository
	feeds    database.FeedRepository
	selector *Selector
	renderer *Renderer
	repeat   *RepeatScheduler
	probe    FeedProbe
	settings SettingsProvider
	now      func() time.Time
}

func NewHooks(messages database.MessageRepository, feeds database.FeedRepository, selector *Selector,
	renderer *Renderer, repeat *RepeatScheduler, probe FeedProbe, settings SettingsProvider) *Hooks {
	return &Hooks{
		messages: messages,
		feeds:    feeds,
		selector: selector,
		renderer: renderer,
		repeat:   repeat,
		probe:    probe,
		settings: settings,
		now:      time.Now,
	}
}

// Validate checks an RSS message before it is queued. A feed URL that is
// not known yet is probed and registered.
func (h *Hooks) Validate(ctx context.Context, message *database.Message) error {
	if !message.IsRSS() {
		return nil
	}

	url := message.RSSFeed
	if !httpURL.MatchString(url) {
		return &ValidationError{Message: fmt.Sprintf("Invalid URL %s for RSS feed", url)}
	}

	existing, err := h.feeds.GetFeedByURL(ctx, url)
	if err != nil {
		return err
	}
	if existing == nil {
		if _, err := h.probe.Probe(ctx, url); err != nil {
			return &ValidationError{Message: fmt.Sprintf("Failed to fetch URL %s %s", url, err)}
		}
		if _, err := h.feeds.AddFeed(ctx, url); err != nil {
			return err
		}
		slog.Info("Feed registered", "url", url)
	}

	if !hasRSSPlaceholder(message.Body) && !hasRSSPlaceholder(message.Template) {
		return &ValidationError{Message: "Must have [RSS] placeholder in an RSS message"}
	}

	if message.RepeatInterval <= 0 {
		return &ValidationError{Message: "Repeat interval must be selected for an RSS campaign"}
	}

	return nil
}

func hasRSSPlaceholder(content string) bool {
	return strings.Contains(strings.ToUpper(content), "[RSS]")
}

// OnCampaignStart renders the content of a send. It returns nil for
// messages that are not RSS campaigns.
func (h *Hooks) OnCampaignStart(ctx context.Context, message *database.Message) (*RenderResult, error) {
	if !message.IsRSS() {
		return nil, nil
	}

	settings := h.settings.Get()
	items, err := h.selector.ItemsForSend(ctx, message, settings)
	if err != nil {
		return nil, err
	}

	return h.renderer.Render(message, items, settings)
}

// OnTestSend renders a test send or preview, falling back to older or
// sample items when the live window is empty.
func (h *Hooks) OnTestSend(ctx context.Context, message *database.Message) (*RenderResult, error) {
	if !message.IsRSS() {
		return nil, nil
	}

	settings := h.settings.Get()
	items, warning, err := h.selector.ItemsForTest(ctx, message, settings)
	if err != nil {
		return nil, err
	}

	result, err := h.renderer.Render(message, items, settings)
	if err != nil {
		return nil, err
	}
	result.Warning = warning
	return result, nil
}

func (h *Hooks) OnQueueTick(ctx context.Context) ([]TickOutcome, error) {
	return h.repeat.Tick(ctx, h.now())
}

// OnBeforeSend substitutes the rendered items and table of contents into
// one part of the outgoing message.
func (h *Hooks) OnBeforeSend(result *RenderResult, part Part, content string) string {
	if result == nil {
		return content
	}

	values := map[string]string{"RSS": result.HTML, "RSS:TOC": result.TOC}
	if part == PartText {
		values = map[string]string{"RSS": result.Text, "RSS:TOC": result.TOCText}
	}
	return ReplacePlaceholders(content, values)
}

// Preview renders message id the way a test send would, including the
// body with the placeholders replaced.
func (h *Hooks) Preview(ctx context.Context, id int64) (*database.Message, *RenderResult, error) {
	message, err := h.messages.GetMessage(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if message == nil {
		return nil, nil, database.ErrMessageNotFound
	}

	result, err := h.OnTestSend(ctx, message)
	if err != nil {
		return nil, nil, err
	}
	if result == nil {
		return message, nil, nil
	}

	message.Subject = result.Subject
	message.Body = h.OnBeforeSend(result, PartHTML, message.Body)
	return message, result, nil
}

// UpcomingItems returns message id with the items its next send would
// include.
func (h *Hooks) UpcomingItems(ctx context.Context, id int64) (*database.Message, []MergedItem, error) {
	message, err := h.messages.GetMessage(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !message.IsRSS() {
		return nil, nil, database.ErrMessageNotFound
	}

	items, err := h.selector.ItemsForSend(ctx, message, h.settings.Get())
	if err != nil {
		return nil, nil, err
	}
	return message, items, nil
}
