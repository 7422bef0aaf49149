package adapters

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/kulturkartan/kulturkartan/internal/browser"
	"github.com/kulturkartan/kulturkartan/internal/domain"
)

// DayStepConfig describes a calendar site that shows one day per page.
type DayStepConfig struct {
	Host string
	// URLForDay builds the listing URL for a given calendar day, typically
	// by injecting the date into a query parameter.
	URLForDay func(day time.Time) string
	// Selectors applied to each day page.
	ContainerSelector string
	NameSelector      string
	TimeSelector      string
	LocationSelector  string
	// Days to step through. Default 30; the crawler caps horizons at 45.
	Days int
}

// DayStepAdapter loops over N consecutive days, extracts per-day events,
// and buffers them by name so a recurring entry becomes one event spanning
// first-seen to last-seen day.
type DayStepAdapter struct {
	cfg    DayStepConfig
	logger zerolog.Logger
}

var (
	_ Adapter         = (*DayStepAdapter)(nil)
	_ ExtractOverride = (*DayStepAdapter)(nil)
	_ HorizonOverride = (*DayStepAdapter)(nil)
)

func NewDayStep(cfg DayStepConfig, logger zerolog.Logger) *DayStepAdapter {
	if cfg.Days <= 0 {
		cfg.Days = 30
	}
	return &DayStepAdapter{cfg: cfg, logger: logger}
}

func (a *DayStepAdapter) Name() string            { return "daystep:" + a.cfg.Host }
func (a *DayStepAdapter) Matches(host string) bool { return host == a.cfg.Host }
func (a *DayStepAdapter) HorizonDays() int        { return a.cfg.Days }

type daySpan struct {
	firstSeen time.Time
	lastSeen  time.Time
	times     []string
	location  string
	url       string
	order     int
}

// ExtractAll steps through the configured number of days. Failures on
// individual days become warnings; the loop continues.
func (a *DayStepAdapter) ExtractAll(ctx context.Context, driver browser.Driver, _ string) ([]domain.RawEvent, []string, error) {
	spans := make(map[string]*daySpan)
	var warnings []string

	today := time.Now()
	for i := 0; i < a.cfg.Days; i++ {
		if ctx.Err() != nil {
			break
		}
		day := today.AddDate(0, 0, i)
		dayURL := a.cfg.URLForDay(day)

		html, err := a.fetchDay(ctx, driver, dayURL)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", dayURL, err))
			continue
		}
		a.collectDay(html, day, dayURL, spans)
	}

	events := make([]domain.RawEvent, 0, len(spans))
	for name, span := range spans {
		raw := domain.RawEvent{
			domain.FieldEventName: name,
			domain.FieldDateISO:   span.firstSeen.Format("2006-01-02"),
			domain.FieldTime:      strings.Join(span.times, ", "),
			domain.FieldLocation:  span.location,
			domain.FieldEventURL:  span.url,
		}
		if span.lastSeen.After(span.firstSeen) {
			raw[domain.FieldEndDateISO] = span.lastSeen.Format("2006-01-02")
		}
		events = append(events, raw)
	}
	// Map iteration order is random; keep first-seen order for stable output.
	sortByOrder(events, spans)

	a.logger.Info().
		Str("host", a.cfg.Host).
		Int("days", a.cfg.Days).
		Int("events", len(events)).
		Msg("adapters: day-stepping finished")

	return events, warnings, nil
}

func (a *DayStepAdapter) fetchDay(ctx context.Context, driver browser.Driver, url string) (string, error) {
	session, err := driver.Open(ctx, url, browser.OpenOptions{
		Until:     browser.WaitNetworkIdle,
		PostDelay: time.Second,
	})
	if err != nil {
		return "", err
	}
	defer session.Close()
	return session.Content(ctx)
}

func (a *DayStepAdapter) collectDay(html string, day time.Time, dayURL string, spans map[string]*daySpan) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return
	}
	doc.Find(a.cfg.ContainerSelector).Each(func(_ int, sel *goquery.Selection) {
		name := strings.Join(strings.Fields(sel.Find(a.cfg.NameSelector).First().Text()), " ")
		if name == "" {
			return
		}
		span, ok := spans[name]
		if !ok {
			span = &daySpan{firstSeen: day, url: dayURL, order: len(spans)}
			if a.cfg.LocationSelector != "" {
				span.location = strings.TrimSpace(sel.Find(a.cfg.LocationSelector).First().Text())
			}
			spans[name] = span
		}
		span.lastSeen = day
		if a.cfg.TimeSelector != "" {
			if t := strings.TrimSpace(sel.Find(a.cfg.TimeSelector).First().Text()); t != "" && !contains(span.times, t) {
				span.times = append(span.times, t)
			}
		}
	})
}

func sortByOrder(events []domain.RawEvent, spans map[string]*daySpan) {
	sort.Slice(events, func(i, j int) bool {
		return spans[events[i][domain.FieldEventName]].order < spans[events[j][domain.FieldEventName]].order
	})
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
