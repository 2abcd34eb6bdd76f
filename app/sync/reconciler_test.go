package sync

import (
	"fmt"
	"testing"
	"time"

	"github.com/orgkit/schedcomb/app/database"
	"github.com/orgkit/schedcomb/app/schedule"
)

type fakeEventRepository struct {
	events      map[string]database.ScheduleEvent
	cancelCalls [][]string
}

func newFakeEventRepository() *fakeEventRepository {
	return &fakeEventRepository{events: make(map[string]database.ScheduleEvent)}
}

func (f *fakeEventRepository) GetEventsInWindow(sourceID string, from, to time.Time) ([]database.ScheduleEvent, error) {
	var out []database.ScheduleEvent
	for _, ev := range f.events {
		if ev.SourceID != sourceID {
			continue
		}
		if ev.StartsAt.Before(from) || ev.StartsAt.After(to) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (f *fakeEventRepository) UpsertEvents(sourceID, orgID string, events []schedule.Event) error {
	for _, ev := range events {
		if ev.EndAt == nil {
			return fmt.Errorf("event %s has no end time", ev.ExternalUID)
		}
		f.events[sourceID+"/"+ev.ExternalUID] = database.ScheduleEvent{
			SourceID:    sourceID,
			OrgID:       orgID,
			ExternalUID: ev.ExternalUID,
			Title:       ev.Title,
			Status:      ev.Status,
			AllDay:      ev.AllDay,
			StartsAt:    ev.StartAt,
			EndsAt:      *ev.EndAt,
		}
	}
	return nil
}

func (f *fakeEventRepository) CancelEvents(sourceID string, externalUIDs []string) (int, error) {
	f.cancelCalls = append(f.cancelCalls, externalUIDs)
	cancelled := 0
	for _, uid := range externalUIDs {
		key := sourceID + "/" + uid
		ev, ok := f.events[key]
		if !ok || ev.Status == schedule.StatusCancelled {
			continue
		}
		ev.Status = schedule.StatusCancelled
		f.events[key] = ev
		cancelled++
	}
	return cancelled, nil
}

func (f *fakeEventRepository) GetUpcomingEvents(sourceID string, limit int) ([]database.ScheduleEvent, error) {
	return nil, nil
}

func (f *fakeEventRepository) GetEventStats(sourceID string) (int, int, int, error) {
	return 0, 0, 0, nil
}

func (f *fakeEventRepository) GetEventsForEnrichment(sourceID string, limit int) ([]database.EventForEnrichment, error) {
	return nil, nil
}

func (f *fakeEventRepository) UpdateEventDescription(eventID string, description string) error {
	return nil
}

func testWindow() schedule.Window {
	return schedule.Window{
		From: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
	}
}

func testEvent(uid, title string, start time.Time) schedule.Event {
	return schedule.Event{
		ExternalUID: uid,
		Title:       title,
		Status:      schedule.StatusConfirmed,
		StartAt:     start,
	}
}

func TestRunImportsNewEvents(t *testing.T) {
	repo := newFakeEventRepository()
	reconciler := NewReconciler(repo)
	window := testWindow()

	fetched := []schedule.Event{
		testEvent("ev-1", "Kickoff", time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)),
		testEvent("ev-2", "Review", time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)),
	}

	stats, err := reconciler.Run("src-1", "org-1", window, fetched)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if stats.Imported != 2 || stats.Updated != 0 || stats.Cancelled != 0 {
		t.Errorf("stats = %+v, want imported=2 updated=0 cancelled=0", stats)
	}

	stored := repo.events["src-1/ev-1"]
	if stored.EndsAt != stored.StartsAt.Add(time.Hour) {
		t.Errorf("expected default one hour duration, got end %v", stored.EndsAt)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	repo := newFakeEventRepository()
	reconciler := NewReconciler(repo)
	window := testWindow()

	fetched := []schedule.Event{
		testEvent("ev-1", "Kickoff", time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)),
	}

	if _, err := reconciler.Run("src-1", "org-1", window, fetched); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	stats, err := reconciler.Run("src-1", "org-1", window, fetched)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if stats.Imported != 0 || stats.Updated != 1 || stats.Cancelled != 0 {
		t.Errorf("second pass stats = %+v, want imported=0 updated=1 cancelled=0", stats)
	}
}

func TestRunCancelsDisappearedEvents(t *testing.T) {
	repo := newFakeEventRepository()
	reconciler := NewReconciler(repo)
	window := testWindow()

	initial := []schedule.Event{
		testEvent("ev-1", "Kickoff", time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)),
		testEvent("ev-2", "Review", time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)),
		testEvent("ev-3", "Retro", time.Date(2025, 3, 17, 15, 0, 0, 0, time.UTC)),
	}

	if _, err := reconciler.Run("src-1", "org-1", window, initial); err != nil {
		t.Fatalf("initial Run() error = %v", err)
	}

	next := []schedule.Event{
		testEvent("ev-1", "Kickoff", time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)),
		testEvent("ev-2", "Review (moved)", time.Date(2025, 3, 11, 14, 0, 0, 0, time.UTC)),
	}

	stats, err := reconciler.Run("src-1", "org-1", window, next)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if stats.Imported != 0 || stats.Updated != 2 || stats.Cancelled != 1 {
		t.Errorf("stats = %+v, want imported=0 updated=2 cancelled=1", stats)
	}

	retro := repo.events["src-1/ev-3"]
	if retro.Status != schedule.StatusCancelled {
		t.Errorf("disappeared event status = %q, want cancelled", retro.Status)
	}
	if retro.Title != "Retro" {
		t.Error("cancelled event should keep its data, not be deleted")
	}
}

func TestRunFiltersOutsideWindow(t *testing.T) {
	repo := newFakeEventRepository()
	reconciler := NewReconciler(repo)
	window := testWindow()

	fetched := []schedule.Event{
		testEvent("in", "Inside", time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)),
		testEvent("before", "Too early", time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)),
		testEvent("after", "Too late", time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)),
	}

	stats, err := reconciler.Run("src-1", "org-1", window, fetched)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if stats.Imported != 1 {
		t.Errorf("imported = %d, want 1", stats.Imported)
	}
	if _, ok := repo.events["src-1/before"]; ok {
		t.Error("event before window should not be stored")
	}
	if _, ok := repo.events["src-1/after"]; ok {
		t.Error("event after window should not be stored")
	}
}

func TestRunCancelsInChunks(t *testing.T) {
	repo := newFakeEventRepository()
	reconciler := NewReconciler(repo)
	window := testWindow()

	initial := make([]schedule.Event, 0, 260)
	for i := 0; i < 260; i++ {
		start := window.From.Add(time.Duration(i) * time.Minute)
		initial = append(initial, testEvent(fmt.Sprintf("ev-%03d", i), "Bulk", start))
	}

	if _, err := reconciler.Run("src-1", "org-1", window, initial); err != nil {
		t.Fatalf("initial Run() error = %v", err)
	}

	stats, err := reconciler.Run("src-1", "org-1", window, nil)
	if err != nil {
		t.Fatalf("empty Run() error = %v", err)
	}

	if stats.Cancelled != 260 {
		t.Errorf("cancelled = %d, want 260", stats.Cancelled)
	}
	if len(repo.cancelCalls) != 2 {
		t.Fatalf("cancel calls = %d, want 2", len(repo.cancelCalls))
	}
	if len(repo.cancelCalls[0]) != 250 || len(repo.cancelCalls[1]) != 10 {
		t.Errorf("chunk sizes = %d, %d, want 250, 10",
			len(repo.cancelCalls[0]), len(repo.cancelCalls[1]))
	}
}

func TestDedupeKeepsLast(t *testing.T) {
	events := []schedule.Event{
		testEvent("dup", "First", time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)),
		testEvent("other", "Other", time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)),
		testEvent("dup", "Second", time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)),
	}

	deduped := Dedupe(events)

	if len(deduped) != 2 {
		t.Fatalf("len = %d, want 2", len(deduped))
	}
	if deduped[0].Title != "Second" {
		t.Errorf("kept title = %q, want later duplicate to win", deduped[0].Title)
	}
	if deduped[1].ExternalUID != "other" {
		t.Errorf("order changed: second element = %q", deduped[1].ExternalUID)
	}
}
