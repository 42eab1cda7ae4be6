package tasks

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/rss-merge/app/database"
	"github.com/lysyi3m/rss-merge/app/feed"
)

type store struct {
	feeds    *database.FeedRepo
	items    *database.ItemRepo
	messages *database.MessageRepo
	events   *database.EventRepo
}

func newStore(t *testing.T) *store {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, _, err = database.RunMigrations(db)
	require.NoError(t, err)

	return &store{
		feeds:    database.NewFeedRepo(db),
		items:    database.NewItemRepo(db),
		messages: database.NewMessageRepo(db),
		events:   database.NewEventRepo(db),
	}
}

func (s *store) addFeed(t *testing.T, url string) database.Feed {
	t.Helper()
	f, err := s.feeds.AddFeed(context.Background(), url)
	require.NoError(t, err)
	return *f
}

func (s *store) reload(t *testing.T, id int64) database.Feed {
	t.Helper()
	f, err := s.feeds.GetFeed(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, f)
	return *f
}

type staticSettings struct {
	settings *feed.Settings
}

func (s staticSettings) Get() *feed.Settings {
	return s.settings
}

func newPipeline(s *store, settings *feed.Settings) *Pipeline {
	fetcher := feed.NewFetcher(nil, "rss-merge-test", 0)
	return NewPipeline(s.feeds, s.items, s.events, fetcher, feed.NewParser(),
		feed.NewContentExtractor(fetcher), staticSettings{settings})
}

type rssItem struct {
	GUID        string
	Title       string
	PubDate     string
	Description string
	Content     string
	Extra       string
}

func rssDocument(language string, items ...rssItem) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:dc="http://purl.org/dc/elements/1.1/">
<channel><title>Test feed</title><link>https://example.com/</link>`)
	fmt.Fprintf(&b, "<language>%s</language>\n", language)
	for _, item := range items {
		b.WriteString("<item>")
		if item.GUID != "" {
			fmt.Fprintf(&b, "<guid>%s</guid>", item.GUID)
		}
		fmt.Fprintf(&b, "<title>%s</title><link>https://example.com/%s</link>", item.Title, item.GUID)
		if item.PubDate != "" {
			fmt.Fprintf(&b, "<pubDate>%s</pubDate>", item.PubDate)
		}
		if item.Description != "" {
			fmt.Fprintf(&b, "<description><![CDATA[%s]]></description>", item.Description)
		}
		if item.Content != "" {
			fmt.Fprintf(&b, "<content:encoded><![CDATA[%s]]></content:encoded>", item.Content)
		}
		b.WriteString(item.Extra)
		b.WriteString("</item>\n")
	}
	b.WriteString("</channel></rss>")
	return b.String()
}

// feedServer serves a mutable document and honours If-None-Match.
type feedServer struct {
	*httptest.Server

	mu       sync.Mutex
	body     string
	etag     string
	status   int
	requests int
}

func newFeedServer(t *testing.T, body, etag string) *feedServer {
	fs := &feedServer{body: body, etag: etag, status: http.StatusOK}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		fs.requests++

		if fs.status != http.StatusOK {
			w.WriteHeader(fs.status)
			return
		}
		if fs.etag != "" && r.Header.Get("If-None-Match") == fs.etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		if fs.etag != "" {
			w.Header().Set("ETag", fs.etag)
		}
		w.Header().Set("Last-Modified", "Sun, 10 Mar 2024 12:00:00 GMT")
		w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
		fmt.Fprint(w, fs.body)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *feedServer) update(body, etag string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.body = body
	fs.etag = etag
}

func (fs *feedServer) fail(status int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.status = status
}

type recordingReporter struct {
	lines []string
}

func (r *recordingReporter) Line(line string) {
	r.lines = append(r.lines, line)
}
