package schedule

import (
	"strings"
	"testing"
	"time"
)

func icsDoc(lines ...string) []byte {
	all := append([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//schedcomb//test//EN",
	}, lines...)
	all = append(all, "END:VCALENDAR")
	return []byte(strings.Join(all, "\r\n") + "\r\n")
}

func mustExpand(t *testing.T, data []byte, window Window) []Event {
	t.Helper()
	events, err := ExpandICS(data, window)
	if err != nil {
		t.Fatalf("ExpandICS failed: %v", err)
	}
	return events
}

func utc(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

func TestExpandSingleEventInWindow(t *testing.T) {
	data := icsDoc(
		"BEGIN:VEVENT",
		"UID:single-1",
		"DTSTART:20250110T140000Z",
		"DTEND:20250110T150000Z",
		"SUMMARY:Board Meeting",
		"LOCATION:Main Hall",
		"END:VEVENT",
	)

	window := Window{From: utc(2025, 1, 1, 0, 0), To: utc(2025, 1, 31, 0, 0)}
	events := mustExpand(t, data, window)

	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}

	ev := events[0]
	if ev.ExternalUID != "single-1" {
		t.Errorf("Expected external UID 'single-1', got %q", ev.ExternalUID)
	}
	if ev.Title != "Board Meeting" {
		t.Errorf("Expected title 'Board Meeting', got %q", ev.Title)
	}
	if ev.Location != "Main Hall" {
		t.Errorf("Expected location 'Main Hall', got %q", ev.Location)
	}
	if !ev.StartAt.Equal(utc(2025, 1, 10, 14, 0)) {
		t.Errorf("Unexpected start: %v", ev.StartAt)
	}
	if ev.EndAt == nil || !ev.EndAt.Equal(utc(2025, 1, 10, 15, 0)) {
		t.Errorf("Unexpected end: %v", ev.EndAt)
	}
	if ev.Status != StatusConfirmed {
		t.Errorf("Expected confirmed status, got %q", ev.Status)
	}
}

func TestExpandSingleEventOutsideWindow(t *testing.T) {
	data := icsDoc(
		"BEGIN:VEVENT",
		"UID:single-1",
		"DTSTART:20250610T140000Z",
		"DTEND:20250610T150000Z",
		"SUMMARY:Summer Gala",
		"END:VEVENT",
	)

	window := Window{From: utc(2025, 1, 1, 0, 0), To: utc(2025, 1, 31, 0, 0)}
	events := mustExpand(t, data, window)

	if len(events) != 0 {
		t.Errorf("Expected 0 events outside window, got %d", len(events))
	}
}

func TestExpandWeeklyRecurrenceWithExdate(t *testing.T) {
	// Weekly Monday 9-10am, EXDATE removes the second Monday; a 14-day
	// window spanning two Mondays must yield exactly one instance.
	data := icsDoc(
		"BEGIN:VEVENT",
		"UID:weekly-1",
		"DTSTART:20250106T090000Z",
		"DTEND:20250106T100000Z",
		"RRULE:FREQ=WEEKLY;BYDAY=MO",
		"EXDATE:20250113T090000Z",
		"SUMMARY:Weekly Standup",
		"END:VEVENT",
	)

	window := Window{From: utc(2025, 1, 6, 0, 0), To: utc(2025, 1, 19, 23, 59)}
	events := mustExpand(t, data, window)

	if len(events) != 1 {
		t.Fatalf("Expected exactly 1 instance, got %d", len(events))
	}

	ev := events[0]
	expectedUID := "weekly-1|2025-01-06T09:00:00Z"
	if ev.ExternalUID != expectedUID {
		t.Errorf("Expected external UID %q, got %q", expectedUID, ev.ExternalUID)
	}
	if !ev.StartAt.Equal(utc(2025, 1, 6, 9, 0)) {
		t.Errorf("Unexpected start: %v", ev.StartAt)
	}
	if ev.EndAt == nil || !ev.EndAt.Equal(utc(2025, 1, 6, 10, 0)) {
		t.Errorf("Expected series duration preserved, got end %v", ev.EndAt)
	}
}

func TestExpandRecurrenceBoundedByWindow(t *testing.T) {
	// A daily rule with no UNTIL must still produce a finite, window-bounded
	// expansion.
	data := icsDoc(
		"BEGIN:VEVENT",
		"UID:daily-1",
		"DTSTART:20250101T120000Z",
		"DTEND:20250101T123000Z",
		"RRULE:FREQ=DAILY",
		"SUMMARY:Lunch Run",
		"END:VEVENT",
	)

	window := Window{From: utc(2025, 1, 10, 0, 0), To: utc(2025, 1, 16, 23, 59)}
	events := mustExpand(t, data, window)

	if len(events) != 7 {
		t.Fatalf("Expected 7 instances in a 7-day window, got %d", len(events))
	}

	for _, ev := range events {
		if !window.Contains(ev.StartAt) {
			t.Errorf("Instance %s starts outside window: %v", ev.ExternalUID, ev.StartAt)
		}
	}
}

func TestExpandRecurrenceOverride(t *testing.T) {
	data := icsDoc(
		"BEGIN:VEVENT",
		"UID:weekly-1",
		"DTSTART:20250106T090000Z",
		"DTEND:20250106T100000Z",
		"RRULE:FREQ=WEEKLY;BYDAY=MO",
		"SUMMARY:Weekly Standup",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:weekly-1",
		"RECURRENCE-ID:20250113T090000Z",
		"DTSTART:20250113T110000Z",
		"DTEND:20250113T113000Z",
		"SUMMARY:Moved Standup",
		"END:VEVENT",
	)

	window := Window{From: utc(2025, 1, 6, 0, 0), To: utc(2025, 1, 19, 23, 59)}
	events := mustExpand(t, data, window)

	if len(events) != 2 {
		t.Fatalf("Expected 2 instances, got %d", len(events))
	}

	byUID := make(map[string]Event)
	for _, ev := range events {
		byUID[ev.ExternalUID] = ev
	}

	// The overridden instance keeps the identity of the computed occurrence.
	moved, ok := byUID["weekly-1|2025-01-13T09:00:00Z"]
	if !ok {
		t.Fatalf("Expected overridden instance keyed by occurrence timestamp, have %v", events)
	}
	if moved.Title != "Moved Standup" {
		t.Errorf("Expected override title, got %q", moved.Title)
	}
	if !moved.StartAt.Equal(utc(2025, 1, 13, 11, 0)) {
		t.Errorf("Expected override start 11:00, got %v", moved.StartAt)
	}
	if moved.EndAt == nil || !moved.EndAt.Equal(utc(2025, 1, 13, 11, 30)) {
		t.Errorf("Expected override end 11:30, got %v", moved.EndAt)
	}

	regular, ok := byUID["weekly-1|2025-01-06T09:00:00Z"]
	if !ok {
		t.Fatal("Expected non-overridden first instance")
	}
	if regular.Title != "Weekly Standup" {
		t.Errorf("Expected series title, got %q", regular.Title)
	}
}

func TestExpandDefaultDurationTimed(t *testing.T) {
	data := icsDoc(
		"BEGIN:VEVENT",
		"UID:no-end-1",
		"DTSTART:20250110T140000Z",
		"SUMMARY:Open House",
		"END:VEVENT",
	)

	window := Window{From: utc(2025, 1, 1, 0, 0), To: utc(2025, 1, 31, 0, 0)}
	events := mustExpand(t, data, window)

	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.EndAt == nil {
		t.Fatal("Expected synthesized end, got nil")
	}
	if !ev.EndAt.Equal(ev.StartAt.Add(time.Hour)) {
		t.Errorf("Expected start+1h end for timed event, got %v", ev.EndAt)
	}
}

func TestExpandDefaultDurationAllDay(t *testing.T) {
	data := icsDoc(
		"BEGIN:VEVENT",
		"UID:allday-1",
		"DTSTART;VALUE=DATE:20250110",
		"SUMMARY:Founders Day",
		"END:VEVENT",
	)

	window := Window{From: utc(2025, 1, 1, 0, 0), To: utc(2025, 1, 31, 0, 0)}
	events := mustExpand(t, data, window)

	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if !ev.AllDay {
		t.Error("Expected all-day event")
	}
	if ev.EndAt == nil || !ev.EndAt.Equal(ev.StartAt.Add(24*time.Hour)) {
		t.Errorf("Expected start+24h end for all-day event, got %v", ev.EndAt)
	}
}

func TestExpandSanitizesTitles(t *testing.T) {
	data := icsDoc(
		"BEGIN:VEVENT",
		"UID:dirty-1",
		"DTSTART:20250110T140000Z",
		"SUMMARY:<script>alert(1)</script>Team Meeting",
		"END:VEVENT",
	)

	window := Window{From: utc(2025, 1, 1, 0, 0), To: utc(2025, 1, 31, 0, 0)}
	events := mustExpand(t, data, window)

	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].Title != "Team Meeting" {
		t.Errorf("Expected sanitized title 'Team Meeting', got %q", events[0].Title)
	}
}

func TestExpandNormalizesStatus(t *testing.T) {
	data := icsDoc(
		"BEGIN:VEVENT",
		"UID:cancelled-1",
		"DTSTART:20250110T140000Z",
		"STATUS:CANCELLED",
		"SUMMARY:Rained Out",
		"END:VEVENT",
	)

	window := Window{From: utc(2025, 1, 1, 0, 0), To: utc(2025, 1, 31, 0, 0)}
	events := mustExpand(t, data, window)

	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].Status != StatusCancelled {
		t.Errorf("Expected cancelled status, got %q", events[0].Status)
	}
}

func TestExpandSkipsMalformedEvents(t *testing.T) {
	// One VEVENT without DTSTART and without a rule, one valid event; the
	// malformed one is dropped without failing the feed.
	data := icsDoc(
		"BEGIN:VEVENT",
		"UID:broken-1",
		"SUMMARY:No Date",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:good-1",
		"DTSTART:20250110T140000Z",
		"DTEND:20250110T150000Z",
		"SUMMARY:Valid Event",
		"END:VEVENT",
	)

	window := Window{From: utc(2025, 1, 1, 0, 0), To: utc(2025, 1, 31, 0, 0)}
	events := mustExpand(t, data, window)

	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].ExternalUID != "good-1" {
		t.Errorf("Expected 'good-1', got %q", events[0].ExternalUID)
	}
}

func TestExpandUnreadableCalendarFails(t *testing.T) {
	_, err := ExpandICS([]byte("this is not a calendar"), Window{From: utc(2025, 1, 1, 0, 0), To: utc(2025, 1, 31, 0, 0)})
	if err == nil {
		t.Error("Expected error for unreadable calendar text")
	}
}
