package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/orgkit/schedcomb/app/database"
	"github.com/orgkit/schedcomb/app/schedule"
	"github.com/orgkit/schedcomb/app/sync"
	"github.com/orgkit/schedcomb/app/urlsafe"
)

type SyncSourceTask struct {
	Task
	SourceConfig *schedule.Config
	client       *urlsafe.Client
	registry     *schedule.Registry
	reconciler   *sync.Reconciler
	sourceRepo   database.SourceRepository
}

func NewSyncSourceTask(sourceName string, sourceConfig *schedule.Config, client *urlsafe.Client,
	registry *schedule.Registry, reconciler *sync.Reconciler, sourceRepo database.SourceRepository) *SyncSourceTask {
	return &SyncSourceTask{
		Task:         NewTask(TaskTypeSyncSource, sourceName),
		SourceConfig: sourceConfig,
		client:       client,
		registry:     registry,
		reconciler:   reconciler,
		sourceRepo:   sourceRepo,
	}
}

func (t *SyncSourceTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !t.SourceConfig.Settings.Enabled {
		slog.Debug("Source disabled, skipping", "source", t.SourceName)
		return nil
	}

	normalized, err := urlsafe.Normalize(t.SourceConfig.URL)
	if err != nil {
		return fmt.Errorf("source URL rejected: %w", err)
	}

	source, err := t.sourceRepo.GetSource(t.SourceName)
	if err != nil {
		return fmt.Errorf("failed to get source from database: %w", err)
	}
	if source == nil {
		return fmt.Errorf("source %s is not registered in the database", t.SourceName)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(t.SourceConfig.Settings.Timeout)*time.Second)
	defer cancel()

	connector, err := t.resolveConnector(timeoutCtx, source.Vendor, normalized)
	if err != nil {
		return err
	}

	title := source.Title
	if title == "" {
		if preview, perr := connector.Preview(timeoutCtx, normalized); perr == nil && preview.Title != "" {
			title = preview.Title
		}
	}

	now := time.Now().UTC()
	window := t.SourceConfig.Settings.Window(now)

	events, err := connector.Fetch(timeoutCtx, normalized, window)
	if err != nil {
		return fmt.Errorf("failed to fetch source events: %w", err)
	}

	stats, err := t.reconciler.Run(source.ID, t.SourceConfig.OrgID, window, events)
	if err != nil {
		return fmt.Errorf("failed to reconcile source events: %w", err)
	}

	nextSync := now.Add(time.Duration(t.SourceConfig.Settings.RefreshInterval) * time.Second)
	if err := t.sourceRepo.UpdateSourceSyncState(t.SourceName, connector.Name(), title, nextSync); err != nil {
		return fmt.Errorf("failed to update source sync state: %w", err)
	}

	slog.Info("Task completed",
		"type", "SyncSource",
		"source", t.SourceName,
		"vendor", connector.Name(),
		"duration", t.GetDuration(),
		"fetched", len(events),
		"imported", stats.Imported,
		"updated", stats.Updated,
		"cancelled", stats.Cancelled)

	return nil
}

// resolveConnector reuses the vendor recorded on a previous sync and falls
// back to detection, first on the URL alone and then with a fetched body
// hint for feeds whose URL gives nothing away.
func (t *SyncSourceTask) resolveConnector(ctx context.Context, vendor, normalizedURL string) (schedule.Connector, error) {
	if vendor != "" {
		if connector, ok := t.registry.Get(vendor); ok {
			return connector, nil
		}
		slog.Warn("Recorded vendor no longer registered, rerunning detection", "source", t.SourceName, "vendor", vendor)
	}

	connector, confidence, err := t.registry.Detect(normalizedURL, nil)
	if err == nil {
		slog.Debug("Connector detected from URL", "source", t.SourceName, "vendor", connector.Name(), "confidence", confidence)
		return connector, nil
	}
	if !errors.Is(err, schedule.ErrNoConnector) {
		return nil, fmt.Errorf("connector detection failed: %w", err)
	}

	result, err := t.client.Fetch(ctx, normalizedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source for detection: %w", err)
	}

	hint := &schedule.Hint{Body: result.Body, ContentType: result.ContentType}
	connector, confidence, err = t.registry.Detect(normalizedURL, hint)
	if err != nil {
		return nil, fmt.Errorf("connector detection failed: %w", err)
	}

	slog.Debug("Connector detected from response", "source", t.SourceName, "vendor", connector.Name(), "confidence", confidence)
	return connector, nil
}
