package schedule

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/orgkit/schedcomb/app/urlsafe"
)

// ICSConnector is the reference connector: standard ICS/iCal feeds.
type ICSConnector struct {
	client *urlsafe.Client
}

func NewICSConnector(client *urlsafe.Client) *ICSConnector {
	return &ICSConnector{client: client}
}

func (c *ICSConnector) Name() string {
	return "ics"
}

func (c *ICSConnector) CanHandle(rawURL string, hint *Hint) Match {
	lower := strings.ToLower(rawURL)

	if strings.Contains(lower, ".ics") || strings.Contains(lower, "ical") || strings.Contains(lower, "webcal") {
		return Match{OK: true, Confidence: 0.9, Reason: "URL matches ICS path keywords"}
	}

	if hint != nil {
		if bytes.HasPrefix(bytes.TrimSpace(hint.Body), []byte("BEGIN:VCALENDAR")) {
			return Match{OK: true, Confidence: 0.8, Reason: "response body is an iCalendar document"}
		}
		if strings.Contains(strings.ToLower(hint.ContentType), "text/calendar") {
			return Match{OK: true, Confidence: 0.6, Reason: "Content-Type is text/calendar"}
		}
	}

	return Match{}
}

func (c *ICSConnector) Preview(ctx context.Context, rawURL string) (*Preview, error) {
	result, err := c.client.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	window := Window{
		From: now.AddDate(0, 0, -PreviewBackDays),
		To:   now.AddDate(0, 0, PreviewAheadDays),
	}

	parsed, title, err := parseICS(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ICS feed: %w", err)
	}

	events := expandEvents(parsed, window)

	if title != "" {
		title = SanitizeTitle(title)
	}

	return &Preview{
		Vendor: c.Name(),
		Title:  title,
		Events: sortAndCap(events, PreviewMaxEvents),
	}, nil
}

func (c *ICSConnector) Fetch(ctx context.Context, rawURL string, window Window) ([]Event, error) {
	result, err := c.client.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	events, err := ExpandICS(result.Body, window)
	if err != nil {
		return nil, fmt.Errorf("failed to expand ICS feed: %w", err)
	}

	return events, nil
}

// sortAndCap orders events chronologically and keeps the earliest n.
func sortAndCap(events []Event, n int) []Event {
	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartAt.Before(sorted[j].StartAt)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
