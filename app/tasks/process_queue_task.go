package tasks

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lysyi3m/rss-merge/app/cache"
	"github.com/lysyi3m/rss-merge/app/campaign"
)

const queueLockTTL = 5 * time.Minute

type ProcessQueueTask struct {
	Task
	hooks  *campaign.Hooks
	locker cache.Locker

	Outcomes []campaign.TickOutcome
}

func NewProcessQueueTask(name string, hooks *campaign.Hooks, locker cache.Locker) *ProcessQueueTask {
	return &ProcessQueueTask{
		Task:   NewTask(TaskTypeProcessQueue, name),
		hooks:  hooks,
		locker: locker,
	}
}

func (t *ProcessQueueTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	err := cache.WithLock(ctx, t.locker, string(TaskTypeProcessQueue), queueLockTTL, func() error {
		outcomes, err := t.hooks.OnQueueTick(ctx)
		t.Outcomes = outcomes
		return err
	})
	if errors.Is(err, cache.ErrLocked) {
		slog.Info("Queue processing already running, skipping", "id", t.ID)
		return nil
	}
	if err != nil {
		return err
	}

	counts := make(map[campaign.Outcome]int)
	for _, outcome := range t.Outcomes {
		counts[outcome.Outcome]++
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"name", t.Name,
		"duration", t.GetDuration(),
		"messages", len(t.Outcomes),
		"advanced", counts[campaign.OutcomeAdvanced],
		"finished", counts[campaign.OutcomeFinished],
		"failed", counts[campaign.OutcomeFailed])

	return nil
}
