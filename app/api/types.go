package api

import (
	"context"
	"time"

	"github.com/lysyi3m/rss-merge/app/cache"
	"github.com/lysyi3m/rss-merge/app/campaign"
	"github.com/lysyi3m/rss-merge/app/database"
	"github.com/lysyi3m/rss-merge/app/tasks"
)

type FeedProber interface {
	Probe(ctx context.Context, url string) (int, error)
}

type HealthChecker interface {
	Health(ctx context.Context) map[string]any
}

type Handler struct {
	feedRepo    database.FeedRepository
	itemRepo    database.ItemRepository
	messageRepo database.MessageRepository
	eventRepo   database.EventRepository
	pipeline    *tasks.Pipeline
	hooks       *campaign.Hooks
	generator   *campaign.Generator
	prober      FeedProber
	locker      cache.Locker
	version     string
	startedAt   time.Time
}

type AddFeedRequest struct {
	URL string `json:"url" binding:"required"`
}

type PurgeRequest struct {
	Days        int  `json:"days" binding:"min=0"`
	UnusedFeeds bool `json:"unused_feeds"`
}

type FeedResponse struct {
	ID              int64      `json:"id"`
	URL             string     `json:"url"`
	ETag            string     `json:"etag,omitempty"`
	LastModified    string     `json:"last_modified,omitempty"`
	ItemCount       int        `json:"item_count"`
	LatestPublished *time.Time `json:"latest_published,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type ItemResponse struct {
	ID         int64             `json:"id"`
	UID        string            `json:"uid"`
	Published  time.Time         `json:"published"`
	Added      time.Time         `json:"added"`
	Properties map[string]string `json:"properties"`
}

type ItemsResponse struct {
	Items   []ItemResponse `json:"items"`
	Page    int            `json:"page"`
	PerPage int            `json:"per_page"`
	Total   int            `json:"total"`
}

type PreviewResponse struct {
	MessageID int64                  `json:"message_id"`
	Subject   string                 `json:"subject"`
	Body      string                 `json:"body"`
	Content   *campaign.RenderResult `json:"content,omitempty"`
}
