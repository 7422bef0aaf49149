// Package storage defines the persistence interfaces the pipeline depends
// on. The sqlite subpackage provides the embedded single-file implementation.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/kulturkartan/kulturkartan/internal/domain"
)

// ErrNotFound is returned by lookups that match nothing.
var ErrNotFound = errors.New("storage: not found")

// Repository groups data access by concern.
type Repository interface {
	Events() EventRepository
	Selectors() SelectorRepository
	Sources() SourceRepository
	Settings() SettingsRepository
	RunLogs() RunLogRepository
}

// FilterQuery describes an admin-surface event query. Zero values mean
// "no constraint"; Venue "All" equals empty.
type FilterQuery struct {
	Search       string
	Venue        string
	Domain       string
	DateMode     string // "This Week", "Next 30 Days", "All Time", or YYYY-MM-DD
	TargetGroups []domain.TargetGroup
	Page         int
	PerPage      int
	Now          time.Time // defaults to time.Now() when zero
}

// Date-mode range names accepted by FilterQuery.
const (
	DateModeThisWeek = "This Week"
	DateModeNext30   = "Next 30 Days"
	DateModeAllTime  = "All Time"
)

// VenueCount and GroupCount back the admin analytics views.
type VenueCount struct {
	Venue string
	Count int
}

type GroupCount struct {
	TargetGroup domain.TargetGroup
	Count       int
}

// WeekCount is one ISO-week bucket of the upcoming-events timeline.
type WeekCount struct {
	WeekStart string // YYYY-MM-DD of the Monday
	Count     int
}

// EventRepository is the deduplicated event catalog. Multi-day rows are
// expanded into per-day virtual events at filter time.
type EventRepository interface {
	Upsert(ctx context.Context, e domain.Event) error
	Filter(ctx context.Context, q FilterQuery) ([]domain.Event, int, error)
	Delete(ctx context.Context, name, dateISO, eventURL string) error
	DeleteOlderThan(ctx context.Context, days int) (int64, error)
	Venues(ctx context.Context) ([]string, error)
	CountByVenue(ctx context.Context) ([]VenueCount, error)
	CountByTargetGroup(ctx context.Context) ([]GroupCount, error)
	Timeline(ctx context.Context, weeks int) ([]WeekCount, error)
}

// SelectorRepository persists per-(domain, url_pattern) selector bundles.
type SelectorRepository interface {
	Get(ctx context.Context, url string) (*domain.SelectorBundle, error)
	Put(ctx context.Context, url string, container string, items map[string]domain.ItemSelector) error
	// PutBundle upserts with an explicit (domain, url_pattern) key, allowing
	// glob patterns that Put cannot express.
	PutBundle(ctx context.Context, b domain.SelectorBundle) error
	ListAll(ctx context.Context) ([]domain.SelectorBundle, error)
	Delete(ctx context.Context, url string) error
}

// SourceRepository manages the configured ingestion targets.
type SourceRepository interface {
	Add(ctx context.Context, url, name string) (*domain.SourceURL, error)
	ListEnabled(ctx context.Context) ([]domain.SourceURL, error)
	ListAll(ctx context.Context) ([]domain.SourceURL, error)
	SetEnabled(ctx context.Context, id int64, enabled bool) error
	Delete(ctx context.Context, id int64) error
}

// SettingsRepository is a string key/value table with typed readers.
type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, error)
	GetBool(ctx context.Context, key string, fallback bool) (bool, error)
	Set(ctx context.Context, key, value string) error
	List(ctx context.Context) (map[string]string, error)
}

// RunLogRepository records one entry per orchestrator run.
type RunLogRepository interface {
	Append(ctx context.Context, entry domain.RunLog) error
	List(ctx context.Context, limit int) ([]domain.RunLog, error)
	ClearOlderThan(ctx context.Context, days int) (int64, error)
}
