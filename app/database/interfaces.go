package database

import (
	"time"

	"github.com/orgkit/schedcomb/app/schedule"
)

type SourceRepository interface {
	GetSource(sourceName string) (*Source, error)
	GetSourceCount() (int, error)
	GetEnabledSourceCount() (int, error)

	UpsertSource(sourceName, orgID, sourceURL string, enabled bool) (bool, error)
	UpdateSourceSyncState(sourceName, vendor, title string, nextSync time.Time) error
}

type EventRepository interface {
	GetEventsInWindow(sourceID string, from, to time.Time) ([]ScheduleEvent, error)
	GetUpcomingEvents(sourceID string, limit int) ([]ScheduleEvent, error)
	GetEventStats(sourceID string) (total, confirmed, cancelled int, err error)

	UpsertEvents(sourceID, orgID string, events []schedule.Event) error
	CancelEvents(sourceID string, externalUIDs []string) (int, error)

	GetEventsForEnrichment(sourceID string, limit int) ([]EventForEnrichment, error)
	UpdateEventDescription(eventID string, description string) error
}
