package schedule

import (
	"context"
	"errors"
	"log/slog"
)

// ErrNoConnector is returned when no registered connector recognizes a URL.
var ErrNoConnector = errors.New("no supported schedule connector for this URL")

// Hint carries an already-fetched response for connector detection, so the
// registry does not have to refetch the URL once per connector.
type Hint struct {
	Body        []byte
	ContentType string
}

// Match is a connector's claim on a URL.
type Match struct {
	OK         bool
	Confidence float64 // 0..1
	Reason     string
}

// Connector is implemented once per feed format. Detection must be cheap and
// side-effect free; Preview and Fetch perform the actual network work through
// the URL safety gate.
type Connector interface {
	Name() string
	CanHandle(rawURL string, hint *Hint) Match
	Preview(ctx context.Context, rawURL string) (*Preview, error)
	Fetch(ctx context.Context, rawURL string, window Window) ([]Event, error)
}

// Registry holds connectors in priority order and picks the best match for a
// candidate URL.
type Registry struct {
	connectors []Connector
}

func NewRegistry(connectors ...Connector) *Registry {
	return &Registry{connectors: connectors}
}

// Detect returns the highest-confidence connector for the URL. On equal
// confidence the earlier (higher priority) connector wins.
func (r *Registry) Detect(rawURL string, hint *Hint) (Connector, float64, error) {
	var best Connector
	var bestConfidence float64

	for _, c := range r.connectors {
		match := c.CanHandle(rawURL, hint)
		if !match.OK {
			continue
		}

		slog.Debug("Connector matched", "connector", c.Name(), "confidence", match.Confidence, "reason", match.Reason)

		if match.Confidence > bestConfidence {
			best = c
			bestConfidence = match.Confidence
		}
	}

	if best == nil {
		return nil, 0, ErrNoConnector
	}

	return best, bestConfidence, nil
}

// Get returns a connector by name, for syncs of sources whose vendor is
// already known.
func (r *Registry) Get(name string) (Connector, bool) {
	for _, c := range r.connectors {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// Preview windows are fixed and wide: far enough back to show recently past
// events, far enough forward to show the shape of a recurring schedule.
const (
	PreviewBackDays  = 30
	PreviewAheadDays = 180
	PreviewMaxEvents = 20
)
