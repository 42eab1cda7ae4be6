package feed

import (
	"cmp"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// EffectiveContent picks the body stored for an entry. With useSummary the
// description (RSS description or Atom summary) wins when present.
func EffectiveContent(entry Entry, useSummary bool) string {
	if useSummary {
		return cmp.Or(strings.TrimSpace(entry.Description), strings.TrimSpace(entry.Content))
	}
	return cmp.Or(strings.TrimSpace(entry.Content), strings.TrimSpace(entry.Description))
}

// EncodeSupplementary replaces code points outside the Basic Multilingual
// Plane, which need four bytes in UTF-8, with numeric character references.
func EncodeSupplementary(value string) string {
	i := strings.IndexFunc(value, func(r rune) bool { return r > 0xFFFF })
	if i < 0 {
		return value
	}

	var b strings.Builder
	b.Grow(len(value) + 16)
	b.WriteString(value[:i])
	for _, r := range value[i:] {
		if r > 0xFFFF {
			b.WriteString("&#")
			b.WriteString(strconv.Itoa(int(r)))
			b.WriteByte(';')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var droppedElements = []string{
	"script", "style", "iframe", "frame", "frameset", "object", "embed", "applet",
	"form", "input", "button", "select", "textarea", "noscript", "meta", "link", "base",
}

// Sanitize removes active content from an HTML fragment: scripting
// elements, event handler attributes and javascript: URLs.
func Sanitize(fragment string) (string, error) {
	if strings.TrimSpace(fragment) == "" {
		return fragment, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", err
	}

	doc.Find(strings.Join(droppedElements, ", ")).Remove()

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		for _, node := range s.Nodes {
			kept := node.Attr[:0]
			for _, attr := range node.Attr {
				key := strings.ToLower(attr.Key)
				if strings.HasPrefix(key, "on") {
					continue
				}
				if (key == "href" || key == "src") && isScriptURL(attr.Val) {
					continue
				}
				kept = append(kept, attr)
			}
			node.Attr = kept
		}
	})

	return doc.Find("body").Html()
}

func isScriptURL(value string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	return strings.HasPrefix(value, "javascript:") || strings.HasPrefix(value, "vbscript:")
}

var (
	spaceRun   = regexp.MustCompile(`[ \t\r\n\f]+`)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

var blockElements = map[string]bool{
	"p": true, "div": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "table": true, "tr": true, "blockquote": true, "pre": true,
	"section": true, "article": true, "header": true, "footer": true,
}

// HTMLToText renders an HTML fragment as plain text for the text part of a
// message. Links keep their target in brackets after the link text.
func HTMLToText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}

	var b strings.Builder
	for _, node := range doc.Find("body").Nodes {
		writeText(&b, node)
	}

	lines := strings.Split(b.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}

	text := strings.Join(lines, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(spaceRun.ReplaceAllString(n.Data, " "))
		return
	case html.ElementNode:
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			writeText(b, c)
		}
		return
	}

	switch n.Data {
	case "script", "style", "head":
		return
	case "br":
		b.WriteString("\n")
		return
	case "hr":
		b.WriteString("\n")
		b.WriteString(strings.Repeat("-", 40))
		b.WriteString("\n")
		return
	case "img":
		if alt := attrOf(n, "alt"); alt != "" {
			b.WriteString(alt)
		}
		return
	case "li":
		b.WriteString("\n* ")
	}

	block := blockElements[n.Data]
	if block {
		b.WriteString("\n")
	}

	var inner strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(&inner, c)
	}
	text := inner.String()

	if n.Data == "a" {
		href := strings.TrimSpace(attrOf(n, "href"))
		if href != "" && !strings.HasPrefix(href, "#") && strings.TrimSpace(text) != href {
			text = strings.TrimSpace(text) + " [" + href + "]"
		}
	}
	b.WriteString(text)

	if block {
		b.WriteString("\n")
	}
}

func attrOf(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
