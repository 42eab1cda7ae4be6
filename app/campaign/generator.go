package campaign

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/lysyi3m/rss-merge/app/database"
)

// Generator writes the items selected for a message as an RSS 2.0 document,
// so a campaign's upcoming content can be followed in a feed reader.
type Generator struct {
	version string
}

func NewGenerator(version string) *Generator {
	return &Generator{version: version}
}

func (g *Generator) Run(message *database.Message, items []MergedItem, selfLink string, now time.Time) string {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	title := cmp.Or(strings.TrimSpace(message.Subject), fmt.Sprintf("RSS message %d", message.ID))
	g.writeElement(&buf, "title", title, 4)
	g.writeElement(&buf, "link", message.RSSFeed, 4)
	g.writeElement(&buf, "description", fmt.Sprintf("Items selected for RSS message %d from %s", message.ID, message.RSSFeed), 4)

	if selfLink != "" {
		buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
			html.EscapeString(selfLink)))
	}

	lastBuildDate := now
	if newest := newestItem(items, message.RSSOrder); newest != nil {
		lastBuildDate = newest.Published
		g.writeElement(&buf, "language", newest.Language(), 4)
	}
	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("RSS-Merge/%s", g.version), 4)

	for _, item := range items {
		g.writeItem(&buf, item)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String()
}

func newestItem(items []MergedItem, order database.ItemOrder) *MergedItem {
	if len(items) == 0 {
		return nil
	}
	if order == database.OrderLatestFirst {
		return &items[0]
	}
	return &items[len(items)-1]
}

func (g *Generator) writeItem(buf *bytes.Buffer, item MergedItem) {
	buf.WriteString("    <item>\n")

	guid := cmp.Or(item.URL(), fmt.Sprintf("item-%d", item.ID))
	buf.WriteString(fmt.Sprintf("      <guid isPermaLink=\"%t\">", g.isURL(guid)))
	xml.EscapeText(buf, []byte(guid))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", item.Title(), 6)
	g.writeElement(buf, "link", item.URL(), 6)

	if content := item.Content(); content != "" {
		buf.WriteString("      <content:encoded><![CDATA[")
		buf.WriteString(strings.ReplaceAll(content, "]]>", "]]]]><![CDATA[>"))
		buf.WriteString("]]></content:encoded>\n")
	}

	g.writeElement(buf, "pubDate", item.Published.Format(time.RFC1123Z), 6)
	g.writeElement(buf, "author", item.Get("author"), 6)

	if url, mimeType := item.Get("enclosureurl"), item.Get("enclosuretype"); url != "" && mimeType != "" {
		buf.WriteString(fmt.Sprintf("      <enclosure url=\"%s\" length=\"%s\" type=\"%s\" />\n",
			html.EscapeString(url),
			html.EscapeString(cmp.Or(item.Get("enclosure@length"), "0")),
			html.EscapeString(mimeType)))
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	buf.WriteString(strings.Repeat(" ", indent))
	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func (g *Generator) isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
