package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/rss-merge/app/database"
)

type PurgeResult struct {
	Days         int   `json:"days"`
	DeletedItems int64 `json:"deleted_items"`
	DeletedFeeds int64 `json:"deleted_feeds"`
}

// PurgeTask deletes items older than Days and optionally the feeds no
// message refers to.
type PurgeTask struct {
	Task
	feedRepo    database.FeedRepository
	itemRepo    database.ItemRepository
	days        int
	unusedFeeds bool

	Result PurgeResult
}

func NewPurgeTask(name string, feedRepo database.FeedRepository, itemRepo database.ItemRepository,
	days int, unusedFeeds bool) *PurgeTask {
	return &PurgeTask{
		Task:        NewTask(TaskTypePurge, name),
		feedRepo:    feedRepo,
		itemRepo:    itemRepo,
		days:        days,
		unusedFeeds: unusedFeeds,
		Result:      PurgeResult{Days: days},
	}
}

func (t *PurgeTask) Execute(ctx context.Context) error {
	if t.days < 0 {
		return fmt.Errorf("days must not be negative")
	}

	if t.days > 0 {
		deleted, err := t.itemRepo.DeleteItems(ctx, t.days, time.Now().UTC())
		if err != nil {
			return err
		}
		t.Result.DeletedItems = deleted
	}

	if t.unusedFeeds {
		deleted, err := t.feedRepo.DeleteUnusedFeeds(ctx)
		if err != nil {
			return err
		}
		t.Result.DeletedFeeds = deleted
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"name", t.Name,
		"duration", t.GetDuration(),
		"days", t.days,
		"deleted_items", t.Result.DeletedItems,
		"deleted_feeds", t.Result.DeletedFeeds)

	return nil
}
