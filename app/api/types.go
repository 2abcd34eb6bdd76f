package api

import (
	"github.com/orgkit/schedcomb/app/database"
	"github.com/orgkit/schedcomb/app/schedule"
	"github.com/orgkit/schedcomb/app/sync"
	"github.com/orgkit/schedcomb/app/tasks"
	"github.com/orgkit/schedcomb/app/urlsafe"
)

type Handler struct {
	sourceRepo  database.SourceRepository
	eventRepo   database.EventRepository
	configCache *schedule.ConfigCache
	client      *urlsafe.Client
	registry    *schedule.Registry
	reconciler  *sync.Reconciler
	scheduler   tasks.TaskSchedulerInterface
}

// PreviewRequest is the body of POST /api/preview. The URL is untrusted
// operator input and goes through the same safety gate as source configs.
type PreviewRequest struct {
	URL string `json:"url" binding:"required"`
}
