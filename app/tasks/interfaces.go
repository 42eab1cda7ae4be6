package tasks

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application to manage background fetch and queue runs.
// Example usage:
//
//	scheduler := NewScheduler(feedRepo, pipeline, hooks, locker, time.Hour, 5*time.Minute)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewPurgeTask("manual", feedRepo, itemRepo, 30, false))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}
