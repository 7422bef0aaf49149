package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kulturkartan/kulturkartan/internal/domain"
	"github.com/kulturkartan/kulturkartan/internal/storage"
)

// expansionCapDays bounds how many days ahead a multi-day event is expanded
// at query time, independent of the crawl horizon.
const expansionCapDays = 30

const defaultPerPage = 20

var _ storage.EventRepository = (*EventRepository)(nil)

// EventRepository implements the event catalog on SQLite.
type EventRepository struct {
	db *sql.DB
}

const eventColumns = `event_name, date_iso, end_date_iso, time, location,
	target_group_raw, target_group, description, event_url, status,
	booking_info, last_scraped`

// Upsert inserts or replaces the event keyed by its identity triple. All
// non-identity fields are overwritten; last_scraped is set to now.
func (r *EventRepository) Upsert(ctx context.Context, e domain.Event) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO events (event_name, date_iso, end_date_iso, time, location,
			target_group_raw, target_group, description, event_url, status,
			booking_info, last_scraped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_name, date_iso, event_url) DO UPDATE SET
			end_date_iso = excluded.end_date_iso,
			time = excluded.time,
			location = excluded.location,
			target_group_raw = excluded.target_group_raw,
			target_group = excluded.target_group,
			description = excluded.description,
			status = excluded.status,
			booking_info = excluded.booking_info,
			last_scraped = excluded.last_scraped`,
		e.EventName, e.DateISO, orNA(e.EndDateISO), orNA(e.Time), e.Location,
		e.TargetGroupRaw, string(e.TargetGroup), e.Description, e.EventURL,
		string(e.Status), orNA(e.BookingInfo), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert event %q/%s: %w", e.EventName, e.DateISO, err)
	}
	return nil
}

// Filter runs the admin query: SQL narrows by search, venue, source domain
// and target groups, then multi-day rows are expanded into per-day virtual
// events, the date window is applied, and pagination happens last. The
// returned total counts expanded events.
func (r *EventRepository) Filter(ctx context.Context, q storage.FilterQuery) ([]domain.Event, int, error) {
	where := []string{"1=1"}
	args := []any{}

	if q.Search != "" {
		where = append(where, "lower(event_name) LIKE lower(?)")
		args = append(args, "%"+q.Search+"%")
	}
	if q.Venue != "" && q.Venue != "All" {
		where = append(where, "location = ?")
		args = append(args, q.Venue)
	}
	if q.Domain != "" {
		where = append(where, "event_url LIKE ?")
		args = append(args, "%"+q.Domain+"%")
	}
	if len(q.TargetGroups) > 0 {
		placeholders := make([]string, len(q.TargetGroups))
		for i, g := range q.TargetGroups {
			placeholders[i] = "?"
			args = append(args, string(g))
		}
		where = append(where, "target_group IN ("+strings.Join(placeholders, ", ")+")")
	}

	query := "SELECT " + eventColumns + " FROM events WHERE " +
		strings.Join(where, " AND ") + " ORDER BY date_iso, time, event_name"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("filter events: %w", err)
	}
	defer rows.Close()

	var stored []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		stored = append(stored, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("filter events: %w", err)
	}

	now := q.Now
	if now.IsZero() {
		now = time.Now()
	}
	expanded := expandEvents(stored, q.DateMode, now)

	sort.SliceStable(expanded, func(i, j int) bool {
		if expanded[i].DateISO != expanded[j].DateISO {
			return expanded[i].DateISO < expanded[j].DateISO
		}
		if expanded[i].Time != expanded[j].Time {
			return expanded[i].Time < expanded[j].Time
		}
		return expanded[i].EventName < expanded[j].EventName
	})

	total := len(expanded)
	perPage := q.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	page := q.Page
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * perPage
	if start >= total {
		return []domain.Event{}, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return expanded[start:end], total, nil
}

// expandEvents turns multi-day rows into per-day virtual events within
// [max(start, today), min(end, today+cap)] and applies the date window.
func expandEvents(stored []domain.Event, dateMode string, now time.Time) []domain.Event {
	today := midnight(now)
	capEnd := today.AddDate(0, 0, expansionCapDays)

	var windowStart, windowEnd time.Time
	bounded := true
	switch dateMode {
	case storage.DateModeThisWeek:
		windowStart, windowEnd = today, today.AddDate(0, 0, 6)
	case storage.DateModeNext30:
		windowStart, windowEnd = today, today.AddDate(0, 0, 30)
	case storage.DateModeAllTime, "":
		bounded = false
	default:
		// Specific YYYY-MM-DD date.
		d, err := time.Parse("2006-01-02", dateMode)
		if err != nil {
			bounded = false
			break
		}
		windowStart, windowEnd = d, d
	}

	inWindow := func(d time.Time) bool {
		if !bounded {
			return true
		}
		return !d.Before(windowStart) && !d.After(windowEnd)
	}

	var out []domain.Event
	for _, e := range stored {
		start, err := time.Parse("2006-01-02", e.DateISO)
		if err != nil {
			continue
		}
		if !e.MultiDay() {
			if inWindow(start) {
				out = append(out, e)
			}
			continue
		}

		end, err := time.Parse("2006-01-02", e.EndDateISO)
		if err != nil {
			if inWindow(start) {
				out = append(out, e)
			}
			continue
		}
		from := start
		if from.Before(today) {
			from = today
		}
		to := end
		if to.After(capEnd) {
			to = capEnd
		}
		for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
			if !inWindow(d) {
				continue
			}
			virtual := e
			virtual.DateISO = d.Format("2006-01-02")
			virtual.EndDateISO = domain.NA
			out = append(out, virtual)
		}
	}
	return out
}

// Delete removes one event by its identity triple.
func (r *EventRepository) Delete(ctx context.Context, name, dateISO, eventURL string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM events WHERE event_name = ? AND date_iso = ? AND event_url = ?`,
		name, dateISO, eventURL)
	if err != nil {
		return fmt.Errorf("delete event %q/%s: %w", name, dateISO, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteOlderThan removes events whose date lies more than days in the past.
func (r *EventRepository) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := midnight(time.Now()).AddDate(0, 0, -days).Format("2006-01-02")
	res, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE date_iso < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete events older than %d days: %w", days, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete events older than %d days: %w", days, err)
	}
	return n, nil
}

// Venues returns the distinct non-empty locations, for the admin filter
// dropdown.
func (r *EventRepository) Venues(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT location FROM events WHERE location != '' ORDER BY location`)
	if err != nil {
		return nil, fmt.Errorf("list venues: %w", err)
	}
	defer rows.Close()

	var venues []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan venue: %w", err)
		}
		venues = append(venues, v)
	}
	return venues, rows.Err()
}

// CountByVenue counts upcoming events per location.
func (r *EventRepository) CountByVenue(ctx context.Context) ([]storage.VenueCount, error) {
	today := midnight(time.Now()).Format("2006-01-02")
	rows, err := r.db.QueryContext(ctx, `
		SELECT location, COUNT(*) FROM events
		WHERE date_iso >= ? GROUP BY location ORDER BY COUNT(*) DESC, location`, today)
	if err != nil {
		return nil, fmt.Errorf("count by venue: %w", err)
	}
	defer rows.Close()

	var counts []storage.VenueCount
	for rows.Next() {
		var c storage.VenueCount
		if err := rows.Scan(&c.Venue, &c.Count); err != nil {
			return nil, fmt.Errorf("scan venue count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// CountByTargetGroup counts upcoming events per target group.
func (r *EventRepository) CountByTargetGroup(ctx context.Context) ([]storage.GroupCount, error) {
	today := midnight(time.Now()).Format("2006-01-02")
	rows, err := r.db.QueryContext(ctx, `
		SELECT target_group, COUNT(*) FROM events
		WHERE date_iso >= ? GROUP BY target_group ORDER BY COUNT(*) DESC, target_group`, today)
	if err != nil {
		return nil, fmt.Errorf("count by target group: %w", err)
	}
	defer rows.Close()

	var counts []storage.GroupCount
	for rows.Next() {
		var group string
		var c storage.GroupCount
		if err := rows.Scan(&group, &c.Count); err != nil {
			return nil, fmt.Errorf("scan group count: %w", err)
		}
		c.TargetGroup = domain.TargetGroup(group)
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// Timeline buckets upcoming events into ISO weeks, starting with the current
// week's Monday.
func (r *EventRepository) Timeline(ctx context.Context, weeks int) ([]storage.WeekCount, error) {
	today := midnight(time.Now())
	monday := today.AddDate(0, 0, -(int(today.Weekday())+6)%7)
	until := monday.AddDate(0, 0, weeks*7)

	rows, err := r.db.QueryContext(ctx,
		`SELECT date_iso FROM events WHERE date_iso >= ? AND date_iso < ?`,
		monday.Format("2006-01-02"), until.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("timeline: %w", err)
	}
	defer rows.Close()

	buckets := make([]storage.WeekCount, weeks)
	for i := range buckets {
		buckets[i].WeekStart = monday.AddDate(0, 0, i*7).Format("2006-01-02")
	}
	for rows.Next() {
		var dateISO string
		if err := rows.Scan(&dateISO); err != nil {
			return nil, fmt.Errorf("scan timeline date: %w", err)
		}
		d, err := time.Parse("2006-01-02", dateISO)
		if err != nil {
			continue
		}
		idx := int(d.Sub(monday).Hours() / 24 / 7)
		if idx >= 0 && idx < weeks {
			buckets[idx].Count++
		}
	}
	return buckets, rows.Err()
}

func scanEvent(rows *sql.Rows) (domain.Event, error) {
	var e domain.Event
	var group, status, lastScraped string
	if err := rows.Scan(&e.EventName, &e.DateISO, &e.EndDateISO, &e.Time,
		&e.Location, &e.TargetGroupRaw, &group, &e.Description, &e.EventURL,
		&status, &e.BookingInfo, &lastScraped); err != nil {
		return domain.Event{}, fmt.Errorf("scan event: %w", err)
	}
	e.TargetGroup = domain.TargetGroup(group)
	e.Status = domain.Status(status)
	if t, err := time.Parse(time.RFC3339, lastScraped); err == nil {
		e.LastScraped = t
	}
	return e, nil
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func orNA(s string) string {
	if s == "" {
		return domain.NA
	}
	return s
}
