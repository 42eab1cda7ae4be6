package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/rss-merge/app/cache"
	"github.com/lysyi3m/rss-merge/app/campaign"
	"github.com/lysyi3m/rss-merge/app/database"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

// Scheduler runs fetch and queue tasks in the background. A single worker
// drains the queue so that runs inside one process never overlap.
type Scheduler struct {
	feedRepo      database.FeedRepository
	pipeline      *Pipeline
	hooks         *campaign.Hooks
	locker        cache.Locker
	fetchInterval time.Duration
	queueInterval time.Duration
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	taskQueue     chan TaskInterface
}

func NewScheduler(feedRepo database.FeedRepository, pipeline *Pipeline, hooks *campaign.Hooks, locker cache.Locker,
	fetchInterval, queueInterval time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		feedRepo:      feedRepo,
		pipeline:      pipeline,
		hooks:         hooks,
		locker:        locker,
		fetchInterval: fetchInterval,
		queueInterval: queueInterval,
		ctx:           ctx,
		cancel:        cancel,
		taskQueue:     make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.worker(0)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		fetchTicker := time.NewTicker(s.fetchInterval)
		defer fetchTicker.Stop()
		queueTicker := time.NewTicker(s.queueInterval)
		defer queueTicker.Stop()

		s.enqueueFetch()
		s.enqueueQueue()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-fetchTicker.C:
				s.enqueueFetch()
			case <-queueTicker.C:
				s.enqueueQueue()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	// The queue is closed once the scheduler has stopped.
	if err := s.ctx.Err(); err != nil {
		return err
	}

	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) enqueueFetch() {
	task := NewFetchFeedsTask("scheduled", s.feedRepo, s.pipeline, s.locker, nil)
	if err := s.EnqueueTask(task); err != nil {
		slog.Warn("Failed to enqueue FetchFeedsTask", "error", err)
	}
}

func (s *Scheduler) enqueueQueue() {
	task := NewProcessQueueTask("scheduled", s.hooks, s.locker)
	if err := s.EnqueueTask(task); err != nil {
		slog.Warn("Failed to enqueue ProcessQueueTask", "error", err)
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		return
	}

	task.IncrementRetryCount()
	delay := retryDelay(task.GetRetryCount())

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "name", task.GetName(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", delay.String())

	s.scheduleRetry(task, delay)
}

// scheduleRetry re-enqueues the task after delay. Stop waits for pending
// retries before closing the queue.
func (s *Scheduler) scheduleRetry(task TaskInterface, delay time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
			return
		case <-time.After(delay):
		}
		if retryErr := s.EnqueueTask(task); retryErr != nil {
			slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
		}
	}()
}

// retryDelay doubles from one second and is capped at 30 seconds.
func retryDelay(retryCount int) time.Duration {
	delay := time.Duration(1<<uint(retryCount-1)) * time.Second
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	return delay
}
