package schedule

import (
	"strings"
	"time"
)

// Event statuses

const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusTentative = "tentative"
)

// Event is the canonical representation of one calendar occurrence,
// produced by a connector and consumed by the reconciler.
type Event struct {
	ExternalUID string // stable within a source; "<seriesUID>|<startRFC3339>" for recurring instances
	Title       string
	Location    string
	Description string
	Link        string
	Status      string
	AllDay      bool
	StartAt     time.Time
	EndAt       *time.Time // nil until the default-duration rule is applied

	Raw map[string]string // opaque snapshot of source fields
}

// Window is the closed time range that bounds expansion and reconciliation.
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}

// Preview is the bounded, non-persisted result shown before a source is connected.
type Preview struct {
	Vendor string
	Title  string
	Events []Event
}

// SyncStats reports the outcome of one reconciliation pass.
type SyncStats struct {
	Imported  int
	Updated   int
	Cancelled int
}

// Configuration types

type Config struct {
	Name     string         // Derived from filename (without .yml extension)
	OrgID    string         `yaml:"org_id"`
	URL      string         `yaml:"url"`
	Settings ConfigSettings `yaml:"settings"`
}

type ConfigSettings struct {
	Enabled            bool `yaml:"enabled"`
	RefreshInterval    int  `yaml:"refresh_interval"` // seconds
	Timeout            int  `yaml:"timeout"`          // seconds
	WindowBackDays     int  `yaml:"window_back_days"`
	WindowAheadDays    int  `yaml:"window_ahead_days"`
	EnrichDescriptions bool `yaml:"enrich_descriptions"` // extract descriptions from linked event pages
}

// Window returns the sync window the settings describe, anchored at now.
func (s ConfigSettings) Window(now time.Time) Window {
	return Window{
		From: now.AddDate(0, 0, -s.WindowBackDays),
		To:   now.AddDate(0, 0, s.WindowAheadDays),
	}
}

const (
	defaultTimedDuration  = time.Hour
	defaultAllDayDuration = 24 * time.Hour
)

// EnsureEnd applies the default-duration rule: an event with no explicit end
// gets start+1h (timed) or start+24h (all-day).
func EnsureEnd(ev *Event) {
	if ev.EndAt != nil {
		return
	}
	d := defaultTimedDuration
	if ev.AllDay {
		d = defaultAllDayDuration
	}
	end := ev.StartAt.Add(d)
	ev.EndAt = &end
}

// NormalizeStatus maps a free-text vendor status onto one of the three
// canonical statuses. Matching is by lowercased substring; anything
// unrecognized is treated as confirmed.
func NormalizeStatus(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(s, "cancel"):
		return StatusCancelled
	case strings.Contains(s, "tentative"), strings.Contains(s, "maybe"):
		return StatusTentative
	default:
		return StatusConfirmed
	}
}
