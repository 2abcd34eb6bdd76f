package tasks

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application to manage background task processing.
// This interface provides task queue management, worker pool control, and
// periodic scheduling of source syncs.
// Example usage:
//
//	scheduler := NewScheduler(configCache, sourceRepo, eventRepo, client, registry, reconciler, extractor)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewSyncSourceTask(...))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}
