package schedule

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"
)

// Cap over rule-generated occurrences before window filtering, against
// pathological rules like FREQ=SECONDLY.
const maxOccurrencesPerSeries = 5000

// icsEvent is one parsed VEVENT before expansion.
type icsEvent struct {
	uid         string
	summary     string
	description string
	location    string
	status      string

	start    time.Time
	end      time.Time
	hasStart bool
	hasEnd   bool
	allDay   bool

	rawRRule     string
	exDates      []time.Time
	recurrenceID *time.Time // set on overrides for a single occurrence

	raw map[string]string
}

func (e *icsEvent) isOverride() bool {
	return e.recurrenceID != nil
}

// ExpandICS turns an ICS payload into concrete event instances within the
// window: plain VEVENTs are emitted directly, recurring series are expanded
// through their RRULE with EXDATEs removed and RECURRENCE-ID overrides
// applied. Malformed VEVENTs are skipped, not fatal; an unparseable calendar
// is.
func ExpandICS(data []byte, window Window) ([]Event, error) {
	parsed, _, err := parseICS(data)
	if err != nil {
		return nil, err
	}
	return expandEvents(parsed, window), nil
}

// parseICS parses the calendar and returns its VEVENTs plus the calendar
// display name (X-WR-CALNAME), if any.
func parseICS(data []byte) ([]icsEvent, string, error) {
	cal, err := ical.ParseCalendar(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse ICS calendar: %w", err)
	}

	var title string
	for _, prop := range cal.CalendarProperties {
		if prop.IANAToken == "X-WR-CALNAME" {
			title = prop.Value
			break
		}
	}

	events := make([]icsEvent, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(ve)
		if err != nil {
			slog.Warn("Skipping malformed VEVENT", "error", err)
			continue
		}
		events = append(events, ev)
	}

	return events, title, nil
}

func parseVEvent(ve *ical.VEvent) (icsEvent, error) {
	var out icsEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, fmt.Errorf("missing UID")
	}
	out.uid = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		out.status = p.Value
	}

	if dtStart := ve.GetProperty(ical.ComponentPropertyDtStart); dtStart != nil {
		if start, err := ve.GetStartAt(); err == nil {
			out.start = start
			out.hasStart = true
		}

		// VALUE=DATE or a value without a time part marks an all-day event.
		if params := dtStart.ICalParameters; params != nil {
			if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
				out.allDay = true
			}
		}
		if !strings.Contains(dtStart.Value, "T") {
			out.allDay = true
		}
	}

	if ve.GetProperty(ical.ComponentPropertyDtEnd) != nil {
		if end, err := ve.GetEndAt(); err == nil {
			out.end = end
			out.hasEnd = true
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.rawRRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part); err == nil {
				out.exDates = append(out.exDates, t)
			}
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseICSTime(p.Value); err == nil {
			out.recurrenceID = &t
		}
	}

	out.raw = map[string]string{
		"uid":     out.uid,
		"summary": out.summary,
	}
	if dtStart := ve.GetProperty(ical.ComponentPropertyDtStart); dtStart != nil {
		out.raw["dtstart"] = dtStart.Value
	}
	if out.rawRRule != "" {
		out.raw["rrule"] = out.rawRRule
	}
	if out.status != "" {
		out.raw["status"] = out.status
	}

	return out, nil
}

// parseICSTime handles the basic EXDATE/RECURRENCE-ID value forms. Floating
// (timezone-less) values are read as UTC; feeds mixing floating times with
// zoned series may mismatch, which is a known limitation of exact-timestamp
// override matching.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, fmt.Errorf("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, time.UTC)
	default:
		return time.ParseInLocation("20060102", v, time.UTC)
	}
}

func expandEvents(parsed []icsEvent, window Window) []Event {
	overridesByUID := make(map[string][]icsEvent)
	for _, ev := range parsed {
		if ev.isOverride() {
			overridesByUID[ev.uid] = append(overridesByUID[ev.uid], ev)
		}
	}

	seen := make(map[string]bool)
	var out []Event

	for _, ev := range parsed {
		if ev.isOverride() {
			continue // consumed during series expansion
		}

		if ev.rawRRule == "" {
			if !ev.hasStart {
				slog.Debug("Skipping VEVENT without DTSTART", "uid", ev.uid)
				continue
			}
			if !window.Contains(ev.start) {
				continue
			}
			instance := buildInstance(ev, ev.uid, ev.start, explicitEnd(ev))
			appendInstance(&out, seen, instance)
			continue
		}

		expandSeries(&out, seen, ev, overridesByUID[ev.uid], window)
	}

	// Overrides can move an instance start; the window invariant holds on the
	// final values.
	kept := out[:0]
	for _, ev := range out {
		if window.Contains(ev.StartAt) {
			kept = append(kept, ev)
		}
	}

	return kept
}

func expandSeries(out *[]Event, seen map[string]bool, series icsEvent, overrides []icsEvent, window Window) {
	if !series.hasStart {
		slog.Debug("Skipping recurring VEVENT without DTSTART", "uid", series.uid)
		return
	}

	r, err := rrule.StrToRRule(series.rawRRule)
	if err != nil {
		slog.Warn("Skipping series with invalid RRULE", "uid", series.uid, "rrule", series.rawRRule, "error", err)
		return
	}
	r.DTStart(series.start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range series.exDates {
		set.ExDate(ex.In(series.start.Location()))
	}

	loc := series.start.Location()
	occStarts := set.Between(window.From.In(loc), window.To.In(loc), true)
	if len(occStarts) > maxOccurrencesPerSeries {
		slog.Warn("Truncating series expansion", "uid", series.uid, "cap", maxOccurrencesPerSeries)
		occStarts = occStarts[:maxOccurrencesPerSeries]
	}

	var seriesDuration *time.Duration
	if series.hasEnd {
		d := series.end.Sub(series.start)
		seriesDuration = &d
	}

	for _, occStart := range occStarts {
		uid := series.uid + "|" + occStart.UTC().Format(time.RFC3339)

		template := series
		start := occStart
		var end *time.Time

		if ov, ok := findOverride(overrides, occStart); ok {
			template = ov
			if ov.hasStart {
				start = ov.start
			}
			if ov.hasEnd {
				e := ov.end
				end = &e
			}
		}

		if end == nil && seriesDuration != nil {
			e := start.Add(*seriesDuration)
			end = &e
		}

		instance := buildInstance(template, uid, start, end)
		appendInstance(out, seen, instance)
	}
}

// findOverride matches an override to a computed occurrence by exact
// timestamp equality on its RECURRENCE-ID.
func findOverride(overrides []icsEvent, occStart time.Time) (icsEvent, bool) {
	for _, ov := range overrides {
		if ov.recurrenceID != nil && ov.recurrenceID.Equal(occStart) {
			return ov, true
		}
	}
	return icsEvent{}, false
}

func buildInstance(src icsEvent, uid string, start time.Time, end *time.Time) Event {
	ev := Event{
		ExternalUID: uid,
		Title:       SanitizeTitle(src.summary),
		Location:    src.location,
		Description: src.description,
		Status:      NormalizeStatus(src.status),
		AllDay:      isAllDay(src, start, end),
		StartAt:     start,
		EndAt:       end,
		Raw:         src.raw,
	}
	EnsureEnd(&ev)
	return ev
}

// isAllDay: either the source marked the value as date-only, or both bounds
// sit exactly on UTC midnight.
func isAllDay(src icsEvent, start time.Time, end *time.Time) bool {
	if src.allDay {
		return true
	}
	if end == nil {
		return false
	}
	return isUTCMidnight(start) && isUTCMidnight(*end)
}

func isUTCMidnight(t time.Time) bool {
	u := t.UTC()
	return u.Hour() == 0 && u.Minute() == 0 && u.Second() == 0 && u.Nanosecond() == 0
}

func explicitEnd(ev icsEvent) *time.Time {
	if !ev.hasEnd {
		return nil
	}
	e := ev.end
	return &e
}

func appendInstance(out *[]Event, seen map[string]bool, ev Event) {
	if seen[ev.ExternalUID] {
		return // first occurrence wins within one expansion
	}
	seen[ev.ExternalUID] = true
	*out = append(*out, ev)
}
