package tasks

import (
	"context"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/orgkit/schedcomb/app/cfg"
	"github.com/orgkit/schedcomb/app/database"
	"github.com/orgkit/schedcomb/app/schedule"
	"github.com/orgkit/schedcomb/app/sync"
	"github.com/orgkit/schedcomb/app/urlsafe"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type Scheduler struct {
	sourceRepo  database.SourceRepository
	eventRepo   database.EventRepository
	configCache *schedule.ConfigCache
	client      *urlsafe.Client
	registry    *schedule.Registry
	reconciler  *sync.Reconciler
	extractor   *sync.DescriptionExtractor
	interval    time.Duration
	workerCount int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          stdsync.WaitGroup
	taskQueue   chan TaskInterface
}

func NewScheduler(configCache *schedule.ConfigCache, sourceRepo database.SourceRepository,
	eventRepo database.EventRepository, client *urlsafe.Client, registry *schedule.Registry,
	reconciler *sync.Reconciler, extractor *sync.DescriptionExtractor) TaskSchedulerInterface {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		sourceRepo:  sourceRepo,
		eventRepo:   eventRepo,
		configCache: configCache,
		client:      client,
		registry:    registry,
		reconciler:  reconciler,
		extractor:   extractor,
		interval:    time.Duration(cfg.SchedulerInterval) * time.Second,
		workerCount: cfg.WorkerCount,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueStartupTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
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
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) enqueueStartupTasks() {
	sourceConfigs := s.configCache.GetConfigs()
	if len(sourceConfigs) == 0 {
		slog.Debug("No source configurations found")
		return
	}

	slog.Debug("Processing source configurations", "count", len(sourceConfigs))

	for _, sourceConfig := range sourceConfigs {
		registerTask := NewRegisterSourceTask(sourceConfig.Name, sourceConfig, s.sourceRepo)
		if err := s.EnqueueTask(registerTask); err != nil {
			slog.Warn("Failed to enqueue RegisterSourceTask", "source", sourceConfig.Name, "error", err)
			continue
		}

		if !sourceConfig.Settings.Enabled {
			slog.Debug("Source disabled, skipping SyncSourceTask", "source", sourceConfig.Name)
			continue
		}

		syncTask := NewSyncSourceTask(sourceConfig.Name, sourceConfig, s.client, s.registry, s.reconciler, s.sourceRepo)
		if err := s.EnqueueTask(syncTask); err != nil {
			slog.Warn("Failed to enqueue SyncSourceTask", "source", sourceConfig.Name, "error", err)
		}
	}
}

func (s *Scheduler) enqueueTasks() {
	sourceConfigs := s.configCache.GetEnabledConfigs()
	if len(sourceConfigs) == 0 {
		slog.Debug("No enabled source configurations found")
		return
	}

	slog.Debug("Processing enabled source configurations for task scheduling", "count", len(sourceConfigs))

	for _, sourceConfig := range sourceConfigs {
		source, err := s.sourceRepo.GetSource(sourceConfig.Name)
		if err != nil {
			slog.Warn("Failed to get source from database, skipping", "source", sourceConfig.Name, "error", err)
			continue
		}
		if source == nil {
			slog.Warn("Source not found in database, skipping", "source", sourceConfig.Name)
			continue
		}

		now := time.Now().UTC()
		if source.NextSyncAt != nil && source.NextSyncAt.After(now) {
			slog.Debug("Source not due for sync yet", "source", sourceConfig.Name, "next_sync_at", source.NextSyncAt)
		} else {
			syncTask := NewSyncSourceTask(sourceConfig.Name, sourceConfig, s.client, s.registry, s.reconciler, s.sourceRepo)
			if err := s.EnqueueTask(syncTask); err != nil {
				slog.Warn("Failed to enqueue SyncSourceTask", "source", sourceConfig.Name, "error", err)
			}
		}

		if sourceConfig.Settings.EnrichDescriptions {
			enrichTask := NewEnrichEventsTask(sourceConfig.Name, sourceConfig, s.client, s.extractor, s.sourceRepo, s.eventRepo)
			if err := s.EnqueueTask(enrichTask); err != nil {
				slog.Warn("Failed to enqueue EnrichEventsTask", "source", sourceConfig.Name, "error", err)
			}
		}
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

	if err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

		if task.CanRetry() {
			task.IncrementRetryCount()
			retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}

			slog.Warn("Task retry scheduled", "type", string(task.GetType()), "source", task.GetSourceName(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

			go func() {
				time.Sleep(retryDelay)
				select {
				case <-s.ctx.Done():
					slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
					return
				default:
					if retryErr := s.EnqueueTask(task); retryErr != nil {
						slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
					}
				}
			}()
		} else {
			slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		}
	}
}
