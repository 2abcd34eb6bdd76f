package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/orgkit/schedcomb/app/database"
	"github.com/orgkit/schedcomb/app/schedule"
	"github.com/orgkit/schedcomb/app/sync"
	"github.com/orgkit/schedcomb/app/tasks"
	"github.com/orgkit/schedcomb/app/urlsafe"
)

const defaultEventLimit = 50

func NewHandler(configCache *schedule.ConfigCache, sourceRepo database.SourceRepository,
	eventRepo database.EventRepository, client *urlsafe.Client, registry *schedule.Registry,
	reconciler *sync.Reconciler, scheduler tasks.TaskSchedulerInterface) *Handler {
	return &Handler{
		sourceRepo:  sourceRepo,
		eventRepo:   eventRepo,
		configCache: configCache,
		client:      client,
		registry:    registry,
		reconciler:  reconciler,
		scheduler:   scheduler,
	}
}

func (h *Handler) GetSourceEvents(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	_, err := h.configCache.GetConfig(name)
	if err != nil {
		slog.Error("Source configuration not found", "source", name, "error", err)
		c.Status(http.StatusNotFound)
		return
	}

	source, err := h.sourceRepo.GetSource(name)
	if err != nil {
		slog.Error("Database error", "operation", "get_source", "source", name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	if source == nil {
		slog.Error("Source not found in database", "source", name)
		c.Status(http.StatusNotFound)
		return
	}

	limit := defaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	events, err := h.eventRepo.GetUpcomingEvents(source.ID, limit)
	if err != nil {
		slog.Error("Database error", "operation", "get_events", "source", name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"source": name,
		"title":  source.Title,
		"vendor": source.Vendor,
		"events": eventsToJSON(events),
		"total":  len(events),
	})
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if sourceCount, err := h.sourceRepo.GetSourceCount(); err == nil {
		health["sources"] = sourceCount
	}

	health["loaded_configurations"] = h.configCache.GetConfigCount()

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats := map[string]interface{}{
		"loaded_configurations": h.configCache.GetConfigCount(),
	}

	if total, err := h.sourceRepo.GetSourceCount(); err == nil {
		stats["sources"] = total
	}
	if enabled, err := h.sourceRepo.GetEnabledSourceCount(); err == nil {
		stats["enabled_sources"] = enabled
	}

	c.JSON(http.StatusOK, stats)
}

// APIPreview resolves a connector for an arbitrary URL and returns a capped
// sample of upcoming events without persisting anything. Used by operators
// to check a feed before adding a source configuration.
func (h *Handler) APIPreview(c *gin.Context) {
	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid url field"})
		return
	}

	normalized, err := urlsafe.Normalize(req.URL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "URL rejected", "details": err.Error()})
		return
	}

	connector, _, err := h.registry.Detect(normalized, nil)
	if errors.Is(err, schedule.ErrNoConnector) {
		result, fetchErr := h.client.Fetch(c.Request.Context(), normalized)
		if fetchErr != nil {
			status, message := classifyFetchError(fetchErr)
			c.JSON(status, gin.H{"error": message, "details": fetchErr.Error()})
			return
		}
		hint := &schedule.Hint{Body: result.Body, ContentType: result.ContentType}
		connector, _, err = h.registry.Detect(normalized, hint)
	}
	if err != nil {
		if errors.Is(err, schedule.ErrNoConnector) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "No connector recognizes this URL"})
			return
		}
		slog.Error("Connector detection failed", "url", urlsafe.Mask(normalized), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Connector detection failed"})
		return
	}

	preview, err := connector.Preview(c.Request.Context(), normalized)
	if err != nil {
		status, message := classifyFetchError(err)
		slog.Error("Preview failed", "url", urlsafe.Mask(normalized), "vendor", connector.Name(), "error", err)
		c.JSON(status, gin.H{"error": message, "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":    urlsafe.Mask(normalized),
		"vendor": preview.Vendor,
		"title":  preview.Title,
		"events": previewEventsToJSON(preview.Events),
		"total":  len(preview.Events),
	})
}

func (h *Handler) APIListSources(c *gin.Context) {
	configs := h.configCache.GetConfigs()

	sources := make([]map[string]interface{}, 0, len(configs))

	for _, sourceConfig := range configs {
		sourceInfo := map[string]interface{}{
			"name":             sourceConfig.Name,
			"org_id":           sourceConfig.OrgID,
			"url":              sourceConfig.URL,
			"title":            "",
			"vendor":           "",
			"enabled":          sourceConfig.Settings.Enabled,
			"refresh_interval": (time.Duration(sourceConfig.Settings.RefreshInterval) * time.Second).String(),
		}

		if source, err := h.sourceRepo.GetSource(sourceConfig.Name); err == nil && source != nil {
			sourceInfo["title"] = source.Title
			sourceInfo["vendor"] = source.Vendor
			sourceInfo["last_synced_at"] = source.LastSyncedAt
			sourceInfo["next_sync_at"] = source.NextSyncAt
			sourceInfo["updated_at"] = source.UpdatedAt
		}

		sources = append(sources, sourceInfo)
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"sources": sources,
		"total":   len(sources),
	})
}

func (h *Handler) APIGetSourceDetails(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing source name parameter"})
		return
	}

	sourceConfig, err := h.configCache.GetConfig(name)
	if err != nil {
		slog.Error("Source configuration not found", "source", name, "error", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Source configuration not found"})
		return
	}

	source, err := h.sourceRepo.GetSource(name)
	if err != nil {
		slog.Error("Database error", "operation", "get_source", "source", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if source == nil {
		slog.Error("Source not found in database", "source", name)
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found in database"})
		return
	}

	details := map[string]interface{}{
		"name":                name,
		"org_id":              sourceConfig.OrgID,
		"url":                 sourceConfig.URL,
		"title":               source.Title,
		"vendor":              source.Vendor,
		"enabled":             sourceConfig.Settings.Enabled,
		"refresh_interval":    (time.Duration(sourceConfig.Settings.RefreshInterval) * time.Second).String(),
		"timeout":             (time.Duration(sourceConfig.Settings.Timeout) * time.Second).String(),
		"window_back_days":    sourceConfig.Settings.WindowBackDays,
		"window_ahead_days":   sourceConfig.Settings.WindowAheadDays,
		"enrich_descriptions": sourceConfig.Settings.EnrichDescriptions,
	}

	details["database"] = map[string]interface{}{
		"id":             source.ID,
		"name":           source.Name,
		"last_synced_at": source.LastSyncedAt,
		"next_sync_at":   source.NextSyncAt,
		"created_at":     source.CreatedAt,
		"updated_at":     source.UpdatedAt,
	}

	if total, confirmed, cancelled, err := h.eventRepo.GetEventStats(source.ID); err == nil {
		details["events"] = map[string]interface{}{
			"total":     total,
			"confirmed": confirmed,
			"cancelled": cancelled,
		}
	}

	c.JSON(http.StatusOK, details)
}

func (h *Handler) APISyncSource(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing source name parameter"})
		return
	}

	sourceConfig, err := h.configCache.LoadConfig(name)
	if err != nil {
		slog.Error("Error reloading configuration", "source", name, "error", err)
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Source configuration not found",
			"details": err.Error(),
		})
		return
	}

	registerTask := tasks.NewRegisterSourceTask(name, sourceConfig, h.sourceRepo)
	if err := h.scheduler.EnqueueTask(registerTask); err != nil {
		slog.Error("Error enqueueing register task", "source", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to enqueue register task",
			"details": err.Error(),
		})
		return
	}

	syncTask := tasks.NewSyncSourceTask(name, sourceConfig, h.client, h.registry, h.reconciler, h.sourceRepo)
	if err := h.scheduler.EnqueueTask(syncTask); err != nil {
		slog.Error("Error enqueueing sync task", "source", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to enqueue sync task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Configuration reloaded and sync enqueued successfully",
		"source": gin.H{
			"name": name,
			"url":  sourceConfig.URL,
		},
		"tasks": []gin.H{
			{"id": registerTask.ID, "type": registerTask.Type},
			{"id": syncTask.ID, "type": syncTask.Type},
		},
	})
}

// classifyFetchError distinguishes problems with the requested feed from
// problems on our side so the operator gets an honest status code.
func classifyFetchError(err error) (int, string) {
	var validationErr *urlsafe.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, "URL rejected"
	}

	var fetchErr *urlsafe.FetchError
	if errors.As(err, &fetchErr) {
		if fetchErr.ClientFault {
			return http.StatusUnprocessableEntity, "Feed could not be fetched"
		}
		return http.StatusBadGateway, "Upstream fetch failed"
	}

	return http.StatusInternalServerError, "Internal error"
}

func eventsToJSON(events []database.ScheduleEvent) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(events))
	for _, ev := range events {
		out = append(out, map[string]interface{}{
			"external_uid": ev.ExternalUID,
			"title":        ev.Title,
			"location":     ev.Location,
			"description":  ev.Description,
			"link":         ev.Link,
			"status":       ev.Status,
			"all_day":      ev.AllDay,
			"starts_at":    ev.StartsAt.Format(time.RFC3339),
			"ends_at":      ev.EndsAt.Format(time.RFC3339),
		})
	}
	return out
}

func previewEventsToJSON(events []schedule.Event) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(events))
	for _, ev := range events {
		info := map[string]interface{}{
			"external_uid": ev.ExternalUID,
			"title":        ev.Title,
			"location":     ev.Location,
			"status":       ev.Status,
			"all_day":      ev.AllDay,
			"starts_at":    ev.StartAt.Format(time.RFC3339),
		}
		if ev.EndAt != nil {
			info["ends_at"] = ev.EndAt.Format(time.RFC3339)
		}
		out = append(out, info)
	}
	return out
}
