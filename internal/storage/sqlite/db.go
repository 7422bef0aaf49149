// Package sqlite implements the storage interfaces on one embedded SQLite
// file. Writes serialize behind SQLite's own lock with a 30 s busy wait;
// WAL mode keeps readers unblocked while a worker is writing.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/kulturkartan/kulturkartan/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_name TEXT NOT NULL,
	date_iso TEXT NOT NULL,
	end_date_iso TEXT NOT NULL DEFAULT 'N/A',
	time TEXT NOT NULL DEFAULT 'N/A',
	location TEXT NOT NULL DEFAULT '',
	target_group_raw TEXT NOT NULL DEFAULT '',
	target_group TEXT NOT NULL DEFAULT 'all_ages',
	description TEXT NOT NULL DEFAULT '',
	event_url TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'scheduled',
	booking_info TEXT NOT NULL DEFAULT 'N/A',
	last_scraped TEXT NOT NULL,
	UNIQUE(event_name, date_iso, event_url)
);
CREATE INDEX IF NOT EXISTS idx_events_date ON events(date_iso);
CREATE INDEX IF NOT EXISTS idx_events_location ON events(location);

CREATE TABLE IF NOT EXISTS selector_configs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	domain TEXT NOT NULL,
	url_pattern TEXT NOT NULL,
	container_selector TEXT NOT NULL,
	item_selectors_json TEXT NOT NULL,
	last_updated TEXT NOT NULL,
	UNIQUE(domain, url_pattern)
);

CREATE TABLE IF NOT EXISTS scraping_urls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL DEFAULT '',
	enabled INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scraping_logs (
	id TEXT PRIMARY KEY,
	timestamp TEXT NOT NULL,
	mode TEXT NOT NULL,
	status TEXT NOT NULL,
	events_found INTEGER NOT NULL DEFAULT 0,
	failures INTEGER NOT NULL DEFAULT 0,
	warnings_json TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_scraping_logs_timestamp ON scraping_logs(timestamp);
`

// Store holds the database handle and hands out the per-concern
// repositories. All repositories share the one handle.
type Store struct {
	db *sql.DB
}

var _ storage.Repository = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the
// schema. The busy timeout matches the 30 s lock window workers are allowed
// to wait on.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Events() storage.EventRepository {
	return &EventRepository{db: s.db}
}

func (s *Store) Selectors() storage.SelectorRepository {
	return &SelectorRepository{db: s.db}
}

func (s *Store) Sources() storage.SourceRepository {
	return &SourceRepository{db: s.db}
}

func (s *Store) Settings() storage.SettingsRepository {
	return &SettingsRepository{db: s.db}
}

func (s *Store) RunLogs() storage.RunLogRepository {
	return &RunLogRepository{db: s.db}
}
