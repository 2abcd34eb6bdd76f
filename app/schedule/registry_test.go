package schedule

import (
	"context"
	"errors"
	"testing"
)

type stubConnector struct {
	name  string
	match Match
}

func (s *stubConnector) Name() string                        { return s.name }
func (s *stubConnector) CanHandle(url string, h *Hint) Match { return s.match }
func (s *stubConnector) Preview(ctx context.Context, url string) (*Preview, error) {
	return &Preview{Vendor: s.name}, nil
}
func (s *stubConnector) Fetch(ctx context.Context, url string, w Window) ([]Event, error) {
	return nil, nil
}

func TestRegistryPicksHighestConfidence(t *testing.T) {
	registry := NewRegistry(
		&stubConnector{name: "low", match: Match{OK: true, Confidence: 0.4}},
		&stubConnector{name: "high", match: Match{OK: true, Confidence: 0.9}},
	)

	connector, confidence, err := registry.Detect("https://example.com/feed", nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if connector.Name() != "high" {
		t.Errorf("Expected 'high' connector, got %q", connector.Name())
	}
	if confidence != 0.9 {
		t.Errorf("Expected confidence 0.9, got %f", confidence)
	}
}

func TestRegistryPriorityOrderBreaksTies(t *testing.T) {
	registry := NewRegistry(
		&stubConnector{name: "first", match: Match{OK: true, Confidence: 0.5}},
		&stubConnector{name: "second", match: Match{OK: true, Confidence: 0.5}},
	)

	connector, _, err := registry.Detect("https://example.com/feed", nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if connector.Name() != "first" {
		t.Errorf("Expected earlier connector to win ties, got %q", connector.Name())
	}
}

func TestRegistryNoMatch(t *testing.T) {
	registry := NewRegistry(
		&stubConnector{name: "never", match: Match{}},
	)

	_, _, err := registry.Detect("https://example.com/feed", nil)
	if !errors.Is(err, ErrNoConnector) {
		t.Errorf("Expected ErrNoConnector, got %v", err)
	}
}

func TestRegistryGetByName(t *testing.T) {
	ics := &stubConnector{name: "ics"}
	registry := NewRegistry(ics)

	if c, ok := registry.Get("ics"); !ok || c != Connector(ics) {
		t.Error("Expected to find connector by name")
	}
	if _, ok := registry.Get("missing"); ok {
		t.Error("Expected miss for unknown connector name")
	}
}

func TestICSConnectorDetection(t *testing.T) {
	connector := NewICSConnector(nil)

	cases := []struct {
		url        string
		hint       *Hint
		ok         bool
		confidence float64
	}{
		{"https://example.com/calendar.ics", nil, true, 0.9},
		{"https://example.com/ical/org", nil, true, 0.9},
		{"https://example.com/schedule", &Hint{Body: []byte("BEGIN:VCALENDAR\r\n")}, true, 0.8},
		{"https://example.com/schedule", &Hint{ContentType: "text/calendar; charset=utf-8"}, true, 0.6},
		{"https://example.com/schedule", &Hint{ContentType: "text/html"}, false, 0},
		{"https://example.com/schedule", nil, false, 0},
	}

	for _, tc := range cases {
		match := connector.CanHandle(tc.url, tc.hint)
		if match.OK != tc.ok {
			t.Errorf("CanHandle(%q): expected ok=%v, got %v", tc.url, tc.ok, match.OK)
		}
		if match.OK && match.Confidence != tc.confidence {
			t.Errorf("CanHandle(%q): expected confidence %f, got %f", tc.url, tc.confidence, match.Confidence)
		}
	}
}

func TestICSOutranksRSSForICSURL(t *testing.T) {
	registry := NewRegistry(
		NewICSConnector(nil),
		NewRSSConnector(nil),
		NewHTMLTableConnector(nil),
	)

	// An ICS URL served with a generic content type must still pick ICS even
	// though the RSS connector also claims path keywords loosely.
	connector, _, err := registry.Detect("https://example.com/feed/calendar.ics", nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if connector.Name() != "ics" {
		t.Errorf("Expected ICS connector, got %q", connector.Name())
	}
}

func TestHTMLTableConnectorDetection(t *testing.T) {
	connector := NewHTMLTableConnector(nil)

	page := []byte(`<html><body>
		<table class="schedule">
			<tr><th>When</th><th>What</th></tr>
			<tr><td><time datetime="2025-01-10T14:00:00Z">Jan 10</time></td><td class="title">Practice</td></tr>
		</table>
	</body></html>`)

	match := connector.CanHandle("https://example.com/schedule", &Hint{Body: page, ContentType: "text/html"})
	if !match.OK {
		t.Fatal("Expected HTML table connector to claim annotated schedule page")
	}
	if match.Confidence != 0.7 {
		t.Errorf("Expected confidence 0.7, got %f", match.Confidence)
	}

	match = connector.CanHandle("https://example.com/schedule", &Hint{Body: []byte("<html><p>no tables</p></html>"), ContentType: "text/html"})
	if match.OK {
		t.Error("Expected no match for page without schedule table")
	}
}
