// Package domain holds the core data model shared by the crawler, the stores,
// and the CLI: events, selector bundles, source URLs, and run logs.
package domain

import "time"

// NA is the sentinel used for absent optional string fields (end date, time,
// booking info). The admin surface renders it verbatim.
const NA = "N/A"

// TargetGroup classifies the audience an event is aimed at.
type TargetGroup string

const (
	TargetChildren  TargetGroup = "children"
	TargetTeens     TargetGroup = "teens"
	TargetAdults    TargetGroup = "adults"
	TargetFamilies  TargetGroup = "families"
	TargetAllAges   TargetGroup = "all_ages"
	TargetBabies    TargetGroup = "babies"
	TargetPreschool TargetGroup = "preschool_groups"
)

// Status is the scheduling state of an event.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCancelled Status = "cancelled"
	StatusFullbokat Status = "fullbokat"
)

// Booking info values recognised by the normaliser. BookingInfo on an Event
// may also carry free text observed on the page.
const (
	BookingRequired  = "Requires booking"
	BookingDropIn    = "Drop-in"
	BookingFullbokat = "Fullbokat"
	BookingFreeEntry = "Free entry"
)

// Event is one occurrence on one date. The triple (EventName, DateISO,
// EventURL) is the identity; upserts overwrite every other field.
type Event struct {
	EventName      string      `json:"event_name"`
	DateISO        string      `json:"date_iso"`               // YYYY-MM-DD, required
	EndDateISO     string      `json:"end_date_iso"`           // YYYY-MM-DD or "N/A"
	Time           string      `json:"time"`                   // free-form, "N/A" allowed
	Location       string      `json:"location"`
	TargetGroupRaw string      `json:"target_group_raw"`
	TargetGroup    TargetGroup `json:"target_group"`
	Description    string      `json:"description"`
	EventURL       string      `json:"event_url"`
	Status         Status      `json:"status"`
	BookingInfo    string      `json:"booking_info"`
	LastScraped    time.Time   `json:"last_scraped"`
}

// Identity returns the unique key triple for the event.
func (e Event) Identity() (name, date, url string) {
	return e.EventName, e.DateISO, e.EventURL
}

// MultiDay reports whether the event spans more than one day, i.e. has a
// parseable end date strictly after the start date.
func (e Event) MultiDay() bool {
	if e.EndDateISO == "" || e.EndDateISO == NA {
		return false
	}
	return e.EndDateISO > e.DateISO
}

// RawEvent is the untyped field map produced by the selector extractor or the
// AI event-list fallback, before normalisation. Keys are the canonical field
// names used in selector bundles (event_name, date_iso, time, ...).
type RawEvent map[string]string

// SourceURL is a configured ingestion target managed by the admin surface.
type SourceURL struct {
	ID      int64  `json:"id"`
	URL     string `json:"url"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// RunMode distinguishes scheduled runs from operator-triggered ones.
type RunMode string

const (
	RunAuto   RunMode = "Auto"
	RunManual RunMode = "Manual"
)

// RunStatus is the overall outcome of one orchestrator run.
type RunStatus string

const (
	RunOK    RunStatus = "OK"
	RunWarn  RunStatus = "Warn"
	RunError RunStatus = "Error"
)

// RunLog is one record per orchestrator run.
type RunLog struct {
	ID          string    `json:"id"` // ULID
	Timestamp   time.Time `json:"timestamp"`
	Mode        RunMode   `json:"mode"`
	Status      RunStatus `json:"status"`
	EventsFound int       `json:"events_found"`
	Failures    int       `json:"failures"`
	Warnings    []string  `json:"warnings"`
}
