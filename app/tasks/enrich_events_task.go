package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/orgkit/schedcomb/app/database"
	"github.com/orgkit/schedcomb/app/schedule"
	"github.com/orgkit/schedcomb/app/sync"
	"github.com/orgkit/schedcomb/app/urlsafe"
)

// enrichBatchSize bounds how many linked pages one task run will fetch.
const enrichBatchSize = 10

type EnrichEventsTask struct {
	Task
	SourceConfig *schedule.Config
	client       *urlsafe.Client
	extractor    *sync.DescriptionExtractor
	sourceRepo   database.SourceRepository
	eventRepo    database.EventRepository
}

func NewEnrichEventsTask(sourceName string, sourceConfig *schedule.Config, client *urlsafe.Client,
	extractor *sync.DescriptionExtractor, sourceRepo database.SourceRepository, eventRepo database.EventRepository) *EnrichEventsTask {
	return &EnrichEventsTask{
		Task:         NewTask(TaskTypeEnrichEvents, sourceName),
		SourceConfig: sourceConfig,
		client:       client,
		extractor:    extractor,
		sourceRepo:   sourceRepo,
		eventRepo:    eventRepo,
	}
}

func (t *EnrichEventsTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !t.SourceConfig.Settings.EnrichDescriptions {
		slog.Debug("Description enrichment disabled for source", "source", t.SourceName)
		return nil
	}

	source, err := t.sourceRepo.GetSource(t.SourceName)
	if err != nil {
		return fmt.Errorf("failed to get source from database: %w", err)
	}
	if source == nil {
		return fmt.Errorf("source %s is not registered in the database", t.SourceName)
	}

	events, err := t.eventRepo.GetEventsForEnrichment(source.ID, enrichBatchSize)
	if err != nil {
		return fmt.Errorf("failed to get events for enrichment: %w", err)
	}

	if len(events) == 0 {
		slog.Debug("No events need description enrichment", "source", t.SourceName)
		return nil
	}

	successCount := 0
	errorCount := 0

	for _, event := range events {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		enrichCtx, cancel := context.WithTimeout(ctx, time.Duration(t.SourceConfig.Settings.Timeout)*time.Second)
		err := t.enrichEvent(enrichCtx, event)
		cancel()

		if err != nil {
			slog.Error("Failed to enrich event", "event_id", event.ID, "url", urlsafe.Mask(event.Link), "error", err)
			errorCount++
		} else {
			successCount++
		}
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"source", t.SourceName,
		"duration", t.GetDuration(),
		"success", successCount,
		"errors", errorCount)

	return nil
}

// enrichEvent fetches the event's linked page through the same safety gate
// as feed URLs. Links come from feed content, which is untrusted.
func (t *EnrichEventsTask) enrichEvent(ctx context.Context, event database.EventForEnrichment) error {
	normalized, err := urlsafe.Normalize(event.Link)
	if err != nil {
		return fmt.Errorf("event link rejected: %w", err)
	}

	result, err := t.client.Fetch(ctx, normalized)
	if err != nil {
		return fmt.Errorf("failed to fetch linked page: %w", err)
	}

	if !strings.Contains(strings.ToLower(result.ContentType), "text/html") {
		return fmt.Errorf("content type is not HTML: %s", result.ContentType)
	}

	description, err := t.extractor.Run(result.Body)
	if err != nil {
		return fmt.Errorf("failed to extract description: %w", err)
	}

	if err := t.eventRepo.UpdateEventDescription(event.ID, description); err != nil {
		return fmt.Errorf("failed to update event description: %w", err)
	}

	return nil
}
