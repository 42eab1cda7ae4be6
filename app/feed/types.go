package feed

import (
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

type Metadata struct {
	Title    string
	Link     string
	Language string
}

// Entry is a feed item normalized from whichever format the feed uses.
type Entry struct {
	ID            string
	Title         string
	Link          string
	Language      string
	Author        string
	Published     *time.Time
	Updated       *time.Time
	Description   string
	Content       string
	EnclosureURL  string
	EnclosureType string
	Categories    []string

	source *gofeed.Item
}

// Lookup resolves an operator configured element against the entry. A miss
// is reported with ok set to false and is not an error.
func (e *Entry) Lookup(spec ElementSpec) (string, bool) {
	switch spec.Kind {
	case KindElement:
		if e.source != nil {
			if value, ok := e.source.Custom[spec.Name]; ok {
				return strings.TrimSpace(value), true
			}
		}
		return e.builtin(spec.Name)

	case KindNamespacedElement:
		if extension := e.extension(spec.Namespace, spec.Name); extension != nil {
			return strings.TrimSpace(extension.Value), true
		}

	case KindAttribute:
		if spec.Namespace == "" {
			return e.builtinAttr(spec.Name, spec.Attr)
		}
		if extension := e.extension(spec.Namespace, spec.Name); extension != nil {
			value, ok := extension.Attrs[spec.Attr]
			return value, ok
		}
	}

	return "", false
}

func (e *Entry) extension(namespace, name string) *ext.Extension {
	if e.source == nil || e.source.Extensions == nil {
		return nil
	}
	elements, ok := e.source.Extensions[namespace][name]
	if !ok || len(elements) == 0 {
		return nil
	}
	return &elements[0]
}

func (e *Entry) builtin(name string) (string, bool) {
	var value string
	switch name {
	case "title":
		value = e.Title
	case "link":
		value = e.Link
	case "description", "summary":
		value = e.Description
	case "content":
		value = e.Content
	case "guid", "id":
		value = e.ID
	case "author":
		value = e.Author
	case "language":
		value = e.Language
	case "category":
		if len(e.Categories) > 0 {
			value = e.Categories[0]
		}
	default:
		return "", false
	}
	return value, value != ""
}

func (e *Entry) builtinAttr(name, attr string) (string, bool) {
	if name != "enclosure" || e.source == nil || len(e.source.Enclosures) == 0 || e.source.Enclosures[0] == nil {
		return "", false
	}

	enclosure := e.source.Enclosures[0]
	var value string
	switch attr {
	case "url":
		value = enclosure.URL
	case "type":
		value = enclosure.Type
	case "length":
		value = enclosure.Length
	}
	return value, value != ""
}
