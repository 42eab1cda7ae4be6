package campaign

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/lysyi3m/rss-merge/app/database"
	"github.com/lysyi3m/rss-merge/app/feed"
)

const noTitle = "No title"

// RenderResult is the content generated for one send of an RSS message.
type RenderResult struct {
	HTML      string `json:"html"`
	Text      string `json:"text"`
	TOC       string `json:"toc"`
	TOCText   string `json:"toc_text"`
	Subject   string `json:"subject"`
	ItemCount int    `json:"item_count"`
	Warning   string `json:"warning,omitempty"`
}

var placeholder = regexp.MustCompile(`\[([^\[\]]+)\]`)

// ReplacePlaceholders substitutes [KEY] placeholders in content. Keys match
// case-insensitively and unknown placeholders are left untouched.
func ReplacePlaceholders(content string, values map[string]string) string {
	if len(values) == 0 || !strings.Contains(content, "[") {
		return content
	}

	lookup := make(map[string]string, len(values))
	for key, value := range values {
		lookup[strings.ToUpper(key)] = value
	}

	return placeholder.ReplaceAllStringFunc(content, func(match string) string {
		if value, ok := lookup[strings.ToUpper(match[1:len(match)-1])]; ok {
			return value
		}
		return match
	})
}

// isLiquid reports whether a template uses liquid syntax instead of
// bracket placeholders.
func isLiquid(template string) bool {
	return strings.Contains(template, "{{") || strings.Contains(template, "{%")
}

// Renderer turns selected items into message content.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

func NewRenderer() *Renderer {
	engine := liquid.NewEngine()

	engine.RegisterFilter("text", func(s string) string {
		return feed.HTMLToText(s)
	})
	engine.RegisterFilter("truncate_words", func(s string, n int) string {
		words := strings.Fields(s)
		if len(words) <= n {
			return s
		}
		return strings.Join(words[:n], " ") + "..."
	})

	return &Renderer{engine: engine}
}

// Render builds the HTML and text content, table of contents and subject
// for items, which must already be in display order.
func (r *Renderer) Render(message *database.Message, items []MergedItem, settings *feed.Settings) (*RenderResult, error) {
	template := strings.TrimSpace(message.RSSTemplate)
	if template == "" {
		template = settings.HTMLTemplate
	}

	var content, toc strings.Builder
	toc.WriteString("<ul>")
	for i, item := range items {
		values := itemValues(item, settings)

		rendered, err := r.renderItem(template, values, item)
		if err != nil {
			return nil, err
		}

		fmt.Fprintf(&content, `<a name="item_%d"></a>`, i)
		content.WriteString(rendered)
		fmt.Fprintf(&toc, `<li><a href="#item_%d">%s</a></li>`, i, values["title"])
	}
	toc.WriteString("</ul>")

	result := &RenderResult{
		HTML:      content.String(),
		TOC:       toc.String(),
		Subject:   Subject(message.Subject, items, message.RSSOrder, settings.SubjectSuffix),
		ItemCount: len(items),
	}
	result.Text = feed.HTMLToText(result.HTML)
	result.TOCText = feed.HTMLToText(result.TOC)

	return result, nil
}

func itemValues(item MergedItem, settings *feed.Settings) map[string]string {
	values := make(map[string]string, len(item.Properties)+2)
	for key, value := range item.Properties {
		values[key] = value
	}
	values["title"] = html.EscapeString(item.Title())
	values["published"] = item.Published.Format(settings.DateFormat)
	return values
}

func (r *Renderer) renderItem(template string, values map[string]string, item MergedItem) (string, error) {
	if !isLiquid(template) {
		return ReplacePlaceholders(template, values), nil
	}

	tpl, err := r.parse(template)
	if err != nil {
		return "", err
	}

	bindings := make(map[string]any, len(values)+1)
	properties := make(map[string]any, len(values))
	for key, value := range values {
		bindings[key] = value
		properties[key] = value
	}
	bindings["item"] = properties
	bindings["id"] = item.ID

	out, sourceErr := tpl.RenderString(bindings)
	if sourceErr != nil {
		return "", fmt.Errorf("failed to render item template: %w", sourceErr)
	}
	return out, nil
}

func (r *Renderer) parse(template string) (*liquid.Template, error) {
	if cached, ok := r.cache.Load(template); ok {
		return cached.(*liquid.Template), nil
	}

	tpl, sourceErr := r.engine.ParseString(template)
	if sourceErr != nil {
		return nil, fmt.Errorf("failed to parse item template: %w", sourceErr)
	}

	r.cache.Store(template, tpl)
	return tpl, nil
}

// Subject fills the RSS placeholders of a message subject. The title is
// taken from the newest item and suffixed when more items follow it.
func Subject(subject string, items []MergedItem, order database.ItemOrder, suffix string) string {
	title := noTitle
	if len(items) > 0 {
		newest := items[len(items)-1]
		if order == database.OrderLatestFirst {
			newest = items[0]
		}
		title = newest.Title()
		if len(items) > 1 {
			title += suffix
		}
	}

	return ReplacePlaceholders(subject, map[string]string{
		"RSSITEM:TITLE": title,
		"RSS:N":         strconv.Itoa(len(items)),
		"RSS:N-1":       strconv.Itoa(len(items) - 1),
	})
}
