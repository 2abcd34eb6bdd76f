package sync

import (
	"fmt"
	"log/slog"

	"github.com/orgkit/schedcomb/app/database"
	"github.com/orgkit/schedcomb/app/schedule"
)

// cancelChunkSize bounds the UID list passed to a single cancel statement.
const cancelChunkSize = 250

// Reconciler diffs a freshly fetched batch of events against the persisted
// snapshot for a source and applies the difference. Events that disappear
// from the feed are cancelled, never deleted, so downstream consumers keep
// a record of what was once scheduled.
type Reconciler struct {
	eventRepository database.EventRepository
}

func NewReconciler(eventRepository database.EventRepository) *Reconciler {
	return &Reconciler{eventRepository: eventRepository}
}

// Dedupe collapses events sharing an external UID, keeping the last
// occurrence in batch order.
func Dedupe(events []schedule.Event) []schedule.Event {
	byUID := make(map[string]int, len(events))
	out := make([]schedule.Event, 0, len(events))

	for _, ev := range events {
		if idx, ok := byUID[ev.ExternalUID]; ok {
			out[idx] = ev
			continue
		}
		byUID[ev.ExternalUID] = len(out)
		out = append(out, ev)
	}

	return out
}

// Run reconciles a fetched batch against the stored events for the source
// whose starts fall inside the window. The operation is idempotent: running
// it twice with the same batch yields zero imports, updates and cancels on
// the second pass beyond status repairs.
func (r *Reconciler) Run(sourceID, orgID string, window schedule.Window, fetched []schedule.Event) (schedule.SyncStats, error) {
	stats := schedule.SyncStats{}

	events := Dedupe(fetched)

	kept := events[:0]
	for _, ev := range events {
		if !window.Contains(ev.StartAt) {
			continue
		}
		schedule.EnsureEnd(&ev)
		kept = append(kept, ev)
	}
	events = kept

	existing, err := r.eventRepository.GetEventsInWindow(sourceID, window.From, window.To)
	if err != nil {
		return stats, fmt.Errorf("failed to load existing events: %w", err)
	}

	existingByUID := make(map[string]database.ScheduleEvent, len(existing))
	for _, ev := range existing {
		existingByUID[ev.ExternalUID] = ev
	}

	incomingUIDs := make(map[string]bool, len(events))
	for _, ev := range events {
		incomingUIDs[ev.ExternalUID] = true
		if _, ok := existingByUID[ev.ExternalUID]; ok {
			stats.Updated++
		} else {
			stats.Imported++
		}
	}

	if err := r.eventRepository.UpsertEvents(sourceID, orgID, events); err != nil {
		return stats, fmt.Errorf("failed to upsert events: %w", err)
	}

	var stale []string
	for _, ev := range existing {
		if incomingUIDs[ev.ExternalUID] {
			continue
		}
		if ev.Status == schedule.StatusCancelled {
			continue
		}
		stale = append(stale, ev.ExternalUID)
	}

	for start := 0; start < len(stale); start += cancelChunkSize {
		end := start + cancelChunkSize
		if end > len(stale) {
			end = len(stale)
		}
		cancelled, err := r.eventRepository.CancelEvents(sourceID, stale[start:end])
		if err != nil {
			return stats, fmt.Errorf("failed to cancel stale events: %w", err)
		}
		stats.Cancelled += cancelled
	}

	slog.Debug("Reconciled source events", "source_id", sourceID,
		"imported", stats.Imported, "updated", stats.Updated, "cancelled", stats.Cancelled)

	return stats, nil
}
