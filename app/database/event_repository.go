package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/orgkit/schedcomb/app/schedule"
)

var _ EventRepository = (*EventRepositoryImpl)(nil)

// EventRepositoryImpl handles database operations for schedule events
type EventRepositoryImpl struct {
	db *DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *DB) *EventRepositoryImpl {
	return &EventRepositoryImpl{db: db}
}

// GetEventsInWindow returns the persisted events for a source whose start
// lies within [from, to]. This is the snapshot the reconciler diffs against.
func (r *EventRepositoryImpl) GetEventsInWindow(sourceID string, from, to time.Time) ([]ScheduleEvent, error) {
	rows, err := r.db.Query(`
		SELECT id, source_id, org_id, external_uid, title, location, description, link,
		       status, all_day, starts_at, ends_at, raw, created_at, updated_at
		FROM schedule_events
		WHERE source_id = $1
		  AND starts_at >= $2
		  AND starts_at <= $3
		ORDER BY starts_at
	`, sourceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to get events in window: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// UpsertEvents stores a batch of normalized events, keyed on
// (source_id, external_uid) so repeated syncs are idempotent.
func (r *EventRepositoryImpl) UpsertEvents(sourceID, orgID string, events []schedule.Event) error {
	if len(events) == 0 {
		return nil
	}

	const cols = 12
	placeholders := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*cols)

	for i, ev := range events {
		if ev.EndAt == nil {
			return fmt.Errorf("event %s has no end time", ev.ExternalUID)
		}

		base := i * cols
		ph := make([]string, cols)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ", ")+")")

		raw, err := json.Marshal(ev.Raw)
		if err != nil || ev.Raw == nil {
			raw = []byte("{}")
		}

		args = append(args,
			sourceID, orgID, ev.ExternalUID, ev.Title, ev.Location, ev.Description,
			ev.Link, ev.Status, ev.AllDay, ev.StartAt, *ev.EndAt)
		// lib/pq encodes []byte as bytea, which jsonb rejects
		args = append(args, string(raw))
	}

	query := fmt.Sprintf(`
		INSERT INTO schedule_events (
			source_id, org_id, external_uid, title, location, description,
			link, status, all_day, starts_at, ends_at, raw
		) VALUES %s
		ON CONFLICT (source_id, external_uid) DO UPDATE SET
			title = EXCLUDED.title,
			location = EXCLUDED.location,
			description = EXCLUDED.description,
			link = EXCLUDED.link,
			status = EXCLUDED.status,
			all_day = EXCLUDED.all_day,
			starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at,
			raw = EXCLUDED.raw,
			updated_at = NOW()
	`, strings.Join(placeholders, ", "))

	if _, err := r.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to upsert events: %w", err)
	}

	return nil
}

// CancelEvents transitions the given events to cancelled without deleting
// them, returning how many rows actually changed state.
func (r *EventRepositoryImpl) CancelEvents(sourceID string, externalUIDs []string) (int, error) {
	if len(externalUIDs) == 0 {
		return 0, nil
	}

	result, err := r.db.Exec(`
		UPDATE schedule_events
		SET status = 'cancelled', updated_at = NOW()
		WHERE source_id = $1
		  AND external_uid = ANY($2)
		  AND status <> 'cancelled'
	`, sourceID, pq.Array(externalUIDs))
	if err != nil {
		return 0, fmt.Errorf("failed to cancel events: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cancelled events: %w", err)
	}

	return int(affected), nil
}

// GetUpcomingEvents returns non-cancelled future events for a source
func (r *EventRepositoryImpl) GetUpcomingEvents(sourceID string, limit int) ([]ScheduleEvent, error) {
	rows, err := r.db.Query(`
		SELECT id, source_id, org_id, external_uid, title, location, description, link,
		       status, all_day, starts_at, ends_at, raw, created_at, updated_at
		FROM schedule_events
		WHERE source_id = $1
		  AND status <> 'cancelled'
		  AND starts_at >= NOW()
		ORDER BY starts_at
		LIMIT $2
	`, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get upcoming events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetEventStats returns statistics about events for a source
func (r *EventRepositoryImpl) GetEventStats(sourceID string) (total, confirmed, cancelled int, err error) {
	err = r.db.QueryRow(`
		SELECT
			COUNT(*) as total,
			SUM(CASE WHEN status = 'confirmed' THEN 1 ELSE 0 END) as confirmed,
			SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END) as cancelled
		FROM schedule_events
		WHERE source_id = $1
	`, sourceID).Scan(&total, &confirmed, &cancelled)

	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to get event stats: %w", err)
	}

	return total, confirmed, cancelled, nil
}

// GetEventsForEnrichment returns upcoming events that carry a link but no
// description yet.
func (r *EventRepositoryImpl) GetEventsForEnrichment(sourceID string, limit int) ([]EventForEnrichment, error) {
	rows, err := r.db.Query(`
		SELECT id, link
		FROM schedule_events
		WHERE source_id = $1
		  AND link <> ''
		  AND description = ''
		  AND status <> 'cancelled'
		  AND starts_at >= NOW()
		ORDER BY starts_at
		LIMIT $2
	`, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get events for enrichment: %w", err)
	}
	defer rows.Close()

	var events []EventForEnrichment
	for rows.Next() {
		var ev EventForEnrichment
		if err := rows.Scan(&ev.ID, &ev.Link); err != nil {
			return nil, fmt.Errorf("failed to scan enrichment row: %w", err)
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating enrichment rows: %w", err)
	}

	return events, nil
}

// UpdateEventDescription stores an extracted description for an event
func (r *EventRepositoryImpl) UpdateEventDescription(eventID string, description string) error {
	_, err := r.db.Exec(`
		UPDATE schedule_events
		SET description = $2, updated_at = NOW()
		WHERE id = $1
	`, eventID, description)

	if err != nil {
		return fmt.Errorf("failed to update event description: %w", err)
	}

	return nil
}

func scanEvents(rows *sql.Rows) ([]ScheduleEvent, error) {
	var events []ScheduleEvent
	for rows.Next() {
		var ev ScheduleEvent
		var raw []byte
		err := rows.Scan(
			&ev.ID, &ev.SourceID, &ev.OrgID, &ev.ExternalUID, &ev.Title, &ev.Location,
			&ev.Description, &ev.Link, &ev.Status, &ev.AllDay, &ev.StartsAt, &ev.EndsAt,
			&raw, &ev.CreatedAt, &ev.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}

		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &ev.Raw); err != nil {
				ev.Raw = nil
			}
		}

		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}

	return events, nil
}
