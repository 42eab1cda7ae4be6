package database

import (
	"context"
	"time"
)

type FeedRepository interface {
	GetFeed(ctx context.Context, id int64) (*Feed, error)
	GetFeedByURL(ctx context.Context, url string) (*Feed, error)
	GetFeedCount(ctx context.Context) (int, error)
	GetActiveFeeds(ctx context.Context) ([]Feed, error)
	ListFeeds(ctx context.Context) ([]FeedSummary, error)

	AddFeed(ctx context.Context, url string) (*Feed, error)
	UpdateCacheHeaders(ctx context.Context, id int64, etag, lastModified string) error

	DeleteUnusedFeeds(ctx context.Context) (int64, error)
	ResetFeeds(ctx context.Context) error
}

type ItemRepository interface {
	AddItem(ctx context.Context, feedID int64, uid string, published, added time.Time) (int64, bool, error)
	AddItemProperties(ctx context.Context, itemID int64, properties map[string]string) error

	SelectItems(ctx context.Context, query ItemQuery) ([]ItemRecord, error)
	ListItems(ctx context.Context, feedID int64, limit, offset int) ([]ItemRecord, error)
	GetItemCount(ctx context.Context, feedID int64) (int, error)

	DeleteItems(ctx context.Context, days int, now time.Time) (int64, error)
}

type MessageRepository interface {
	GetMessage(ctx context.Context, id int64) (*Message, error)
	CreateMessage(ctx context.Context, message *Message) (int64, error)
	ReadyMessages(ctx context.Context, now time.Time) ([]Message, error)

	AdvanceEmbargo(ctx context.Context, id int64, now time.Time) (int64, error)
	MarkSent(ctx context.Context, id int64) (int64, error)
}

type EventRepository interface {
	AddEvent(ctx context.Context, entry string) error
	RecentEvents(ctx context.Context, limit int) ([]Event, error)
}
