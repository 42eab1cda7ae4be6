package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/rss-merge/app/cache"
	"github.com/lysyi3m/rss-merge/app/database"
)

const fetchLockTTL = 30 * time.Minute

type FetchFeedsTask struct {
	Task
	feedRepo database.FeedRepository
	pipeline *Pipeline
	locker   cache.Locker
	reporter Reporter

	Report *Report
}

func NewFetchFeedsTask(name string, feedRepo database.FeedRepository, pipeline *Pipeline,
	locker cache.Locker, reporter Reporter) *FetchFeedsTask {
	return &FetchFeedsTask{
		Task:     NewTask(TaskTypeFetchFeeds, name),
		feedRepo: feedRepo,
		pipeline: pipeline,
		locker:   locker,
		reporter: reporter,
	}
}

func (t *FetchFeedsTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	err := cache.WithLock(ctx, t.locker, string(TaskTypeFetchFeeds), fetchLockTTL, func() error {
		feeds, err := t.feedRepo.GetActiveFeeds(ctx)
		if err != nil {
			return fmt.Errorf("failed to get active feeds: %w", err)
		}

		report, err := t.pipeline.Run(ctx, feeds, time.Now().UTC(), t.reporter)
		t.Report = report
		return err
	})
	if errors.Is(err, cache.ErrLocked) {
		slog.Info("Fetch already running, skipping", "id", t.ID)
		return nil
	}
	if err != nil {
		return err
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"name", t.Name,
		"duration", t.GetDuration(),
		"feeds", len(t.Report.Feeds),
		"failed", t.Report.FailedFeeds,
		"items", t.Report.Items,
		"new", t.Report.NewItems)

	return nil
}
