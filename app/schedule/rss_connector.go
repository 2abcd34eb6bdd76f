package schedule

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/orgkit/schedcomb/app/urlsafe"
)

// RSSConnector handles organizations that publish their schedule as an
// RSS/Atom feed, one item per event with the event time as the published
// date.
type RSSConnector struct {
	client *urlsafe.Client
	parser *gofeed.Parser
}

func NewRSSConnector(client *urlsafe.Client) *RSSConnector {
	return &RSSConnector{
		client: client,
		parser: gofeed.NewParser(),
	}
}

func (c *RSSConnector) Name() string {
	return "rss"
}

func (c *RSSConnector) CanHandle(rawURL string, hint *Hint) Match {
	if hint != nil {
		body := bytes.TrimSpace(hint.Body)
		if bytes.Contains(body, []byte("<rss")) || bytes.Contains(body, []byte("<feed")) {
			return Match{OK: true, Confidence: 0.6, Reason: "response body is an RSS/Atom document"}
		}
		ct := strings.ToLower(hint.ContentType)
		if strings.Contains(ct, "application/rss+xml") || strings.Contains(ct, "application/atom+xml") {
			return Match{OK: true, Confidence: 0.5, Reason: "Content-Type is a syndication format"}
		}
	}

	lower := strings.ToLower(rawURL)
	if strings.Contains(lower, ".rss") || strings.Contains(lower, "/feed") || strings.Contains(lower, ".atom") {
		return Match{OK: true, Confidence: 0.4, Reason: "URL matches feed path keywords"}
	}

	return Match{}
}

func (c *RSSConnector) Preview(ctx context.Context, rawURL string) (*Preview, error) {
	now := time.Now().UTC()
	window := Window{
		From: now.AddDate(0, 0, -PreviewBackDays),
		To:   now.AddDate(0, 0, PreviewAheadDays),
	}

	feed, events, err := c.fetchAndParse(ctx, rawURL, window)
	if err != nil {
		return nil, err
	}

	title := feed.Title
	if title != "" {
		title = SanitizeTitle(title)
	}

	return &Preview{
		Vendor: c.Name(),
		Title:  title,
		Events: sortAndCap(events, PreviewMaxEvents),
	}, nil
}

func (c *RSSConnector) Fetch(ctx context.Context, rawURL string, window Window) ([]Event, error) {
	_, events, err := c.fetchAndParse(ctx, rawURL, window)
	return events, err
}

func (c *RSSConnector) fetchAndParse(ctx context.Context, rawURL string, window Window) (*gofeed.Feed, []Event, error) {
	result, err := c.client.Fetch(ctx, rawURL)
	if err != nil {
		return nil, nil, err
	}

	feed, err := c.parser.Parse(bytes.NewReader(result.Body))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	var events []Event
	for _, item := range feed.Items {
		ev, ok := c.normalizeItem(item)
		if !ok {
			continue
		}
		if !window.Contains(ev.StartAt) {
			continue
		}
		events = append(events, ev)
	}

	return feed, events, nil
}

// normalizeItem maps one feed item onto an event. Items without a date are
// dropped; a feed item can carry no duration, so every event here gets the
// default one.
func (c *RSSConnector) normalizeItem(item *gofeed.Item) (Event, bool) {
	if item == nil || item.PublishedParsed == nil {
		return Event{}, false
	}

	uid := item.GUID
	if uid == "" {
		uid = item.Link
	}

	ev := Event{
		ExternalUID: uid,
		Title:       SanitizeTitle(item.Title),
		Description: item.Description,
		Link:        item.Link,
		Status:      StatusConfirmed,
		StartAt:     item.PublishedParsed.UTC(),
		Raw: map[string]string{
			"guid":  item.GUID,
			"title": item.Title,
			"link":  item.Link,
		},
	}

	if ev.ExternalUID == "" {
		return Event{}, false
	}

	EnsureEnd(&ev)
	return ev, true
}
