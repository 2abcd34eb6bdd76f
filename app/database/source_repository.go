package database

import (
	"database/sql"
	"fmt"
	"time"
)

var _ SourceRepository = (*SourceRepositoryImpl)(nil)

// SourceRepositoryImpl handles database operations for schedule sources
type SourceRepositoryImpl struct {
	db *DB
}

// NewSourceRepository creates a new source repository
func NewSourceRepository(db *DB) *SourceRepositoryImpl {
	return &SourceRepositoryImpl{db: db}
}

// UpsertSource inserts or updates a source from its configuration, returning
// whether the URL changed (a URL change resets the detected vendor so the
// next sync re-runs connector detection).
func (r *SourceRepositoryImpl) UpsertSource(sourceName, orgID, sourceURL string, enabled bool) (bool, error) {
	existing, err := r.GetSource(sourceName)
	if err != nil {
		return false, fmt.Errorf("failed to check existing source: %w", err)
	}

	if existing == nil {
		_, err = r.db.Exec(`
			INSERT INTO schedule_sources (name, org_id, url, enabled)
			VALUES ($1, $2, $3, $4)
		`, sourceName, orgID, sourceURL, enabled)
		if err != nil {
			return false, fmt.Errorf("failed to insert source: %w", err)
		}
		return false, nil
	}

	urlChanged := existing.URL != sourceURL

	if urlChanged {
		_, err = r.db.Exec(`
			UPDATE schedule_sources
			SET org_id = $2, url = $3, enabled = $4, vendor = '', next_sync_at = NULL, updated_at = NOW()
			WHERE name = $1
		`, sourceName, orgID, sourceURL, enabled)
	} else {
		_, err = r.db.Exec(`
			UPDATE schedule_sources
			SET org_id = $2, url = $3, enabled = $4, updated_at = NOW()
			WHERE name = $1
		`, sourceName, orgID, sourceURL, enabled)
	}

	if err != nil {
		return false, fmt.Errorf("failed to update source: %w", err)
	}

	return urlChanged, nil
}

// UpdateSourceSyncState records a successful sync: detected vendor, feed
// title, and the time the next sync becomes due.
func (r *SourceRepositoryImpl) UpdateSourceSyncState(sourceName, vendor, title string, nextSync time.Time) error {
	_, err := r.db.Exec(`
		UPDATE schedule_sources
		SET vendor = $2, title = $3, last_synced_at = NOW(), next_sync_at = $4, updated_at = NOW()
		WHERE name = $1
	`, sourceName, vendor, title, nextSync)

	if err != nil {
		return fmt.Errorf("failed to update source sync state: %w", err)
	}

	return nil
}

// GetSource retrieves a source by its configuration name
func (r *SourceRepositoryImpl) GetSource(sourceName string) (*Source, error) {
	var source Source
	err := r.db.QueryRow(`
		SELECT id, name, org_id, url, COALESCE(vendor, ''), COALESCE(title, ''),
		       enabled, last_synced_at, next_sync_at, created_at, updated_at
		FROM schedule_sources
		WHERE name = $1
	`, sourceName).Scan(
		&source.ID, &source.Name, &source.OrgID, &source.URL, &source.Vendor, &source.Title,
		&source.Enabled, &source.LastSyncedAt, &source.NextSyncAt,
		&source.CreatedAt, &source.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}

	return &source, nil
}

// GetSourceCount returns the total number of sources
func (r *SourceRepositoryImpl) GetSourceCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM schedule_sources").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get source count: %w", err)
	}
	return count, nil
}

// GetEnabledSourceCount returns the count of enabled sources
func (r *SourceRepositoryImpl) GetEnabledSourceCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM schedule_sources WHERE enabled = true").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get enabled source count: %w", err)
	}
	return count, nil
}
