package feed

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mmcdole/gofeed"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/language"
)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run parses a feed document. encoding is the charset declared by the HTTP
// response and is only applied when the document does not declare its own.
func (p *Parser) Run(data []byte, encoding string) (*Metadata, []Entry, error) {
	body, err := decodeBody(data, encoding)
	if err != nil {
		return nil, nil, err
	}

	feed, err := p.gofeedParser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	metadata := &Metadata{
		Title:    feed.Title,
		Link:     feed.Link,
		Language: canonicalLanguage(feed.Language),
	}

	entries := make([]Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		entries = append(entries, p.normalizeItem(item, metadata.Language))
	}

	return metadata, entries, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item, feedLanguage string) Entry {
	entry := Entry{
		ID:          item.GUID,
		Title:       strings.TrimSpace(item.Title),
		Link:        strings.TrimSpace(item.Link),
		Language:    feedLanguage,
		Description: item.Description,
		Content:     item.Content,
		Published:   item.PublishedParsed,
		Updated:     item.UpdatedParsed,
		Categories:  item.Categories,
		source:      item,
	}

	if item.DublinCoreExt != nil && len(item.DublinCoreExt.Language) > 0 {
		entry.Language = canonicalLanguage(item.DublinCoreExt.Language[0])
	}

	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = syntheticID(entry.Link, entry.Title)
	}

	entry.Author = authorOf(item)

	if len(item.Enclosures) > 0 && item.Enclosures[0] != nil {
		entry.EnclosureURL = item.Enclosures[0].URL
		entry.EnclosureType = item.Enclosures[0].Type
	}

	return entry
}

// syntheticID derives a stable identifier for entries without a GUID. It is
// empty when the entry has neither a link nor a title.
func syntheticID(link, title string) string {
	if link == "" && title == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(link + "|" + title))
	return hex.EncodeToString(hash[:])
}

func authorOf(item *gofeed.Item) string {
	people := item.Authors
	if len(people) == 0 && item.Author != nil {
		people = []*gofeed.Person{item.Author}
	}
	for _, person := range people {
		if person == nil {
			continue
		}
		if name := strings.TrimSpace(person.Name); name != "" {
			return name
		}
		if email := strings.TrimSpace(person.Email); email != "" {
			return email
		}
	}
	return ""
}

func canonicalLanguage(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	tag, err := language.Parse(value)
	if err != nil {
		return value
	}
	return tag.String()
}

var rtlLanguages = map[string]bool{
	"ar": true, "dv": true, "fa": true, "he": true, "ku": true,
	"ps": true, "sd": true, "ug": true, "ur": true, "yi": true,
}

// IsRTL reports whether the language is written right to left.
func IsRTL(value string) bool {
	if value == "" {
		return false
	}
	tag, err := language.Parse(value)
	if err != nil {
		return false
	}
	base, _ := tag.Base()
	return rtlLanguages[base.String()]
}

func decodeBody(data []byte, encoding string) ([]byte, error) {
	encoding = strings.ToLower(strings.TrimSpace(encoding))
	if encoding == "" || encoding == "utf-8" || encoding == "utf8" || declaresEncoding(data) {
		return data, nil
	}

	enc, err := htmlindex.Get(encoding)
	if err != nil {
		slog.Debug("Unknown feed encoding, parsing as is", "encoding", encoding)
		return data, nil
	}

	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s body: %w", encoding, err)
	}
	return decoded, nil
}

// declaresEncoding reports whether an XML declaration names an encoding.
func declaresEncoding(data []byte) bool {
	head := bytes.TrimLeft(data, "\ufeff \t\r\n")
	if !bytes.HasPrefix(head, []byte("<?xml")) {
		return false
	}
	end := bytes.Index(head, []byte("?>"))
	if end < 0 {
		return false
	}
	return bytes.Contains(head[:end], []byte("encoding"))
}
