package database

import (
	"time"
)

// Source represents a schedule source record in the database
type Source struct {
	ID           string // Database UUID
	Name         string // Configuration source identifier derived from filename
	OrgID        string
	URL          string
	Vendor       string // Connector name chosen at detection time; empty until first sync
	Title        string // Display title reported by the feed
	Enabled      bool
	LastSyncedAt *time.Time
	NextSyncAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ScheduleEvent represents one persisted calendar occurrence
type ScheduleEvent struct {
	ID          string
	SourceID    string
	OrgID       string
	ExternalUID string
	Title       string
	Location    string
	Description string
	Link        string
	Status      string
	AllDay      bool
	StartsAt    time.Time
	EndsAt      time.Time
	Raw         map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EventForEnrichment carries the minimum needed to fetch and extract a
// linked event page.
type EventForEnrichment struct {
	ID   string
	Link string
}
