package schedule

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/orgkit/schedcomb/app/urlsafe"
)

// HTMLTableConnector scrapes vendor schedule pages that render their events
// as an annotated HTML table: rows under table.schedule or
// table[data-schedule], with machine-readable <time datetime="..."> cells.
type HTMLTableConnector struct {
	client *urlsafe.Client
}

func NewHTMLTableConnector(client *urlsafe.Client) *HTMLTableConnector {
	return &HTMLTableConnector{client: client}
}

func (c *HTMLTableConnector) Name() string {
	return "html-table"
}

const scheduleTableSelector = "table.schedule, table[data-schedule]"

func (c *HTMLTableConnector) CanHandle(rawURL string, hint *Hint) Match {
	if hint == nil || len(hint.Body) == 0 {
		return Match{}
	}
	if !strings.Contains(strings.ToLower(hint.ContentType), "text/html") &&
		!bytes.Contains(hint.Body, []byte("<html")) {
		return Match{}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(hint.Body))
	if err != nil {
		return Match{}
	}

	table := doc.Find(scheduleTableSelector)
	if table.Length() == 0 {
		return Match{}
	}
	if table.Find("time[datetime]").Length() == 0 {
		return Match{OK: true, Confidence: 0.3, Reason: "schedule table without machine-readable times"}
	}

	return Match{OK: true, Confidence: 0.7, Reason: "HTML page contains an annotated schedule table"}
}

func (c *HTMLTableConnector) Preview(ctx context.Context, rawURL string) (*Preview, error) {
	now := time.Now().UTC()
	window := Window{
		From: now.AddDate(0, 0, -PreviewBackDays),
		To:   now.AddDate(0, 0, PreviewAheadDays),
	}

	title, events, err := c.fetchAndParse(ctx, rawURL, window)
	if err != nil {
		return nil, err
	}

	return &Preview{
		Vendor: c.Name(),
		Title:  title,
		Events: sortAndCap(events, PreviewMaxEvents),
	}, nil
}

func (c *HTMLTableConnector) Fetch(ctx context.Context, rawURL string, window Window) ([]Event, error) {
	_, events, err := c.fetchAndParse(ctx, rawURL, window)
	return events, err
}

func (c *HTMLTableConnector) fetchAndParse(ctx context.Context, rawURL string, window Window) (string, []Event, error) {
	result, err := c.client.Fetch(ctx, rawURL)
	if err != nil {
		return "", nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(result.Body))
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var title string
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		title = SanitizeTitle(t)
	}

	events := c.extractRows(doc, window)
	return title, events, nil
}

// extractRows walks the schedule table rows. Rows without a parseable start
// time are skipped; the rest follow the same sanitization and defaulting
// rules as every other connector.
func (c *HTMLTableConnector) extractRows(doc *goquery.Document, window Window) []Event {
	var events []Event

	doc.Find(scheduleTableSelector).First().Find("tbody tr, tr").Each(func(i int, row *goquery.Selection) {
		if row.Find("th").Length() > 0 {
			return // header row
		}

		times := row.Find("time[datetime]")
		if times.Length() == 0 {
			return
		}

		start, ok := parseDatetimeAttr(times.Eq(0))
		if !ok {
			return
		}

		ev := Event{
			Title:   SanitizeTitle(rowTitle(row)),
			Status:  NormalizeStatus(rowStatus(row)),
			StartAt: start,
			Raw: map[string]string{
				"row": strings.TrimSpace(row.Text()),
			},
		}

		if times.Length() > 1 {
			if end, ok := parseDatetimeAttr(times.Eq(1)); ok && end.After(start) {
				ev.EndAt = &end
			}
		}

		if loc := strings.TrimSpace(row.Find(".location, td.location, [data-location]").First().Text()); loc != "" {
			ev.Location = loc
		}

		if href, ok := row.Find("a[href]").First().Attr("href"); ok {
			ev.Link = href
		}

		if uid, ok := row.Attr("data-event-id"); ok && uid != "" {
			ev.ExternalUID = uid
		} else {
			ev.ExternalUID = contentUID(ev.Title, start)
		}

		if !window.Contains(ev.StartAt) {
			return
		}

		EnsureEnd(&ev)
		events = append(events, ev)
	})

	return events
}

func parseDatetimeAttr(sel *goquery.Selection) (time.Time, bool) {
	attr, ok := sel.Attr("datetime")
	if !ok {
		return time.Time{}, false
	}
	attr = strings.TrimSpace(attr)

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, attr); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func rowTitle(row *goquery.Selection) string {
	if t := strings.TrimSpace(row.Find(".event-title, td.title, [data-title]").First().Text()); t != "" {
		return t
	}
	return strings.TrimSpace(row.Find("td").First().Text())
}

func rowStatus(row *goquery.Selection) string {
	if s, ok := row.Attr("data-status"); ok {
		return s
	}
	if row.HasClass("cancelled") || row.HasClass("canceled") {
		return "cancelled"
	}
	return strings.TrimSpace(row.Find(".status, td.status").First().Text())
}

// contentUID derives a stable identifier for rows that carry none of their
// own, from the fields that define the occurrence.
func contentUID(title string, start time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s", title, start.UTC().Format(time.RFC3339))))
	return hex.EncodeToString(sum[:16])
}
