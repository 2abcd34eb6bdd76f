package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/orgkit/schedcomb/app/database"
	"github.com/orgkit/schedcomb/app/schedule"
)

type RegisterSourceTask struct {
	Task
	SourceConfig *schedule.Config
	sourceRepo   database.SourceRepository
}

func NewRegisterSourceTask(sourceName string, sourceConfig *schedule.Config, sourceRepo database.SourceRepository) *RegisterSourceTask {
	return &RegisterSourceTask{
		Task:         NewTask(TaskTypeRegisterSource, sourceName),
		SourceConfig: sourceConfig,
		sourceRepo:   sourceRepo,
	}
}

func (t *RegisterSourceTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	urlChanged, err := t.sourceRepo.UpsertSource(
		t.SourceConfig.Name,
		t.SourceConfig.OrgID,
		t.SourceConfig.URL,
		t.SourceConfig.Settings.Enabled)
	if err != nil {
		slog.Error("Task failed", "type", "RegisterSource", "source", t.SourceName, "error", err)
		return fmt.Errorf("failed to register source in database: %w", err)
	}

	if urlChanged {
		slog.Info("Source URL changed, vendor detection will rerun on next sync", "source", t.SourceName)
	}

	slog.Info("Task completed",
		"type", "RegisterSource",
		"source", t.SourceName,
		"duration", t.GetDuration())

	return nil
}
