// Package crawler turns one source URL into normalized events. It composes
// the browser, paginator, selector extractor, discoverer, and site adapters
// into a single pipeline with an explicit per-URL state machine.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kulturkartan/kulturkartan/internal/adapters"
	"github.com/kulturkartan/kulturkartan/internal/ai"
	"github.com/kulturkartan/kulturkartan/internal/browser"
	"github.com/kulturkartan/kulturkartan/internal/discover"
	"github.com/kulturkartan/kulturkartan/internal/domain"
	"github.com/kulturkartan/kulturkartan/internal/extract"
	"github.com/kulturkartan/kulturkartan/internal/metrics"
	"github.com/kulturkartan/kulturkartan/internal/normalize"
	"github.com/kulturkartan/kulturkartan/internal/paginate"
	"github.com/kulturkartan/kulturkartan/internal/sanitize"
	"github.com/kulturkartan/kulturkartan/internal/storage"
)

// State is the per-URL pipeline position. Any state may transition to
// StateFailed, which terminates the URL with a warning.
type State int

const (
	StatePending State = iota
	StateFetching
	StatePaginating
	StateExtracting
	StateNormalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateFetching:
		return "FETCHING"
	case StatePaginating:
		return "PAGINATING"
	case StateExtracting:
		return "EXTRACTING"
	case StateNormalizing:
		return "NORMALIZING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

const (
	defaultHorizonDays = 30
	maxHorizonDays     = 45
	minDescriptionLen  = 30

	cookieClickTimeout = 2 * time.Second
	pageLoadSettle     = 3 * time.Second
)

var cookieLabels = []string{"Godkänn", "Godkänn alla", "Acceptera", "Acceptera alla", "Jag förstår"}

// Options tunes one crawl.
type Options struct {
	HorizonDays int // 0 means the 30-day default; capped at 45
	Limit       int // max events kept per URL, 0 = unlimited
	// DetailBudget is the shared per-run cap on detail-page fetches.
	// Nil means no detail fetching.
	DetailBudget *atomic.Int64
	// Now anchors date parsing and the horizon window. Zero means wall clock.
	Now time.Time
}

// Deps are the collaborators a Crawler composes.
type Deps struct {
	Driver    browser.Driver
	Selectors storage.SelectorRepository
	AI        ai.Extractor
	Registry  *adapters.Registry
	Details   DetailFetcher // nil disables description enrichment
	Logger    zerolog.Logger
}

// Result is the outcome for one URL. Err is set only when State is
// StateFailed; warnings accumulate across all phases.
type Result struct {
	URL      string
	Events   []domain.Event
	Warnings []string
	State    State
	Err      error
}

// Crawler runs the pipeline for URLs one at a time. It is owned by a single
// worker and is not safe for concurrent use.
type Crawler struct {
	deps      Deps
	opts      Options
	paginator *paginate.Paginator
	extractor *extract.Extractor
	discover  *discover.Discoverer
	logger    zerolog.Logger
}

func New(deps Deps, opts Options) *Crawler {
	if deps.Registry == nil {
		deps.Registry = adapters.NewRegistry()
	}
	return &Crawler{
		deps:      deps,
		opts:      opts,
		paginator: paginate.New(deps.Logger),
		extractor: extract.New(deps.Logger),
		discover:  discover.New(deps.AI, deps.Logger),
		logger:    deps.Logger,
	}
}

// Run executes the pipeline for one URL. It never panics outward and always
// releases its browser session.
func (c *Crawler) Run(ctx context.Context, url string) Result {
	res := Result{URL: url, State: StatePending}

	adapter := c.deps.Registry.ForURL(url)
	if adapter != nil {
		c.logger.Info().Str("url", url).Str("adapter", adapter.Name()).Msg("crawler: adapter selected")
	}

	// Day-stepping adapters own the whole fetch/extract phase.
	if override, ok := adapter.(adapters.ExtractOverride); ok {
		res.State = StateExtracting
		raws, warnings, err := override.ExtractAll(ctx, c.deps.Driver, url)
		res.Warnings = append(res.Warnings, warnings...)
		if err != nil {
			return c.fail(res, fmt.Errorf("adapter extract: %w", err))
		}
		return c.normalizePhase(ctx, res, raws, url, adapter)
	}

	html, session, err := c.fetchPhase(ctx, &res, url, adapter)
	if session != nil {
		defer session.Close()
	}
	if err != nil {
		return c.fail(res, err)
	}

	raws, err := c.extractPhase(ctx, &res, url, html)
	if err != nil {
		return c.fail(res, err)
	}
	return c.normalizePhase(ctx, res, raws, url, adapter)
}

// fetchPhase loads the page, dismisses cookie banners, and paginates. The
// returned session is nil when an adapter fetched statically.
func (c *Crawler) fetchPhase(ctx context.Context, res *Result, url string, adapter adapters.Adapter) (string, browser.Session, error) {
	res.State = StateFetching

	if fetcher, ok := adapter.(adapters.FetchOverride); ok {
		html, err := fetcher.Fetch(ctx, url)
		if err != nil {
			return "", nil, fmt.Errorf("fetch: %w", err)
		}
		return html, nil, nil
	}

	openOpts := browser.OpenOptions{Until: browser.WaitNetworkIdle, PostDelay: pageLoadSettle}
	session, err := c.deps.Driver.Open(ctx, url, openOpts)
	if err != nil {
		// Transient fetch errors get one retry within the worker.
		c.logger.Warn().Err(err).Str("url", url).Msg("crawler: open failed, retrying")
		session, err = c.deps.Driver.Open(ctx, url, openOpts)
		if err != nil {
			return "", nil, fmt.Errorf("open %s: %w", url, err)
		}
	}

	c.dismissCookieBanner(ctx, session)

	res.State = StatePaginating
	pagOpts := paginate.Options{}
	if pg, ok := adapter.(adapters.PaginateOverride); ok {
		pagOpts = pg.PaginateOptions()
	}
	pagRes := c.paginator.Run(ctx, session, pagOpts)
	if pagRes.Strategy != "" {
		metrics.PaginationSteps.WithLabelValues(pagRes.Strategy).Add(float64(pagRes.Steps))
		c.logger.Debug().Str("url", url).Str("strategy", pagRes.Strategy).Int("steps", pagRes.Steps).
			Msg("crawler: pagination applied")
	}

	html, err := session.Content(ctx)
	if err != nil {
		return "", session, fmt.Errorf("read page content: %w", err)
	}
	return html, session, nil
}

// dismissCookieBanner clicks consent buttons best-effort; failures are
// silent.
func (c *Crawler) dismissCookieBanner(ctx context.Context, session browser.Session) {
	for _, label := range cookieLabels {
		if session.ClickText(ctx, label, cookieClickTimeout) {
			return
		}
	}
	session.Click(ctx, "[id*='cookie'] button", cookieClickTimeout)
}

// extractPhase applies the cached bundle or falls back to discovery.
func (c *Crawler) extractPhase(ctx context.Context, res *Result, url, html string) ([]domain.RawEvent, error) {
	res.State = StateExtracting

	bundle, err := c.deps.Selectors.Get(ctx, url)
	switch {
	case err == nil:
		raws, extractErr := c.extractor.Extract(html, *bundle, url)
		if extractErr == nil {
			return raws, nil
		}
		if !errors.Is(extractErr, extract.ErrNoContainers) {
			return nil, extractErr
		}
		// Stale cached bundle: discover for this run only, never recache;
		// the admin decides whether the stored bundle should go.
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("%s: cached selectors matched nothing, rediscovering", url))
		return c.discoverPhase(ctx, res, url, html, false)

	case errors.Is(err, storage.ErrNotFound):
		return c.discoverPhase(ctx, res, url, html, true)

	default:
		return nil, fmt.Errorf("selector lookup: %w", err)
	}
}

// discoverPhase runs AI discovery. allowCache gates persisting a trusted
// bundle.
func (c *Crawler) discoverPhase(ctx context.Context, res *Result, url, html string, allowCache bool) ([]domain.RawEvent, error) {
	outcome := c.discover.Discover(ctx, url, html)
	res.Warnings = append(res.Warnings, outcome.Warnings...)

	switch {
	case outcome.Bundle != nil && outcome.Trusted:
		metrics.DiscoveryOutcomes.WithLabelValues("trusted").Inc()
		if allowCache {
			if err := c.deps.Selectors.Put(ctx, url, outcome.Bundle.ContainerSelector, outcome.Bundle.Items); err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s: caching selectors failed: %v", url, err))
			}
		}
	case outcome.Bundle != nil:
		metrics.DiscoveryOutcomes.WithLabelValues("untrusted").Inc()
	default:
		metrics.DiscoveryOutcomes.WithLabelValues("fallback").Inc()
		// Fallback event list (possibly empty on total AI failure).
		return outcome.Events, nil
	}

	raws, err := c.extractor.Extract(html, *outcome.Bundle, url)
	if errors.Is(err, extract.ErrNoContainers) {
		// Validation passed moments ago; treat as empty page.
		return nil, nil
	}
	return raws, err
}

// normalizePhase turns raw field maps into events, filters by horizon,
// enriches thin descriptions, and consolidates same-day duplicates.
func (c *Crawler) normalizePhase(ctx context.Context, res Result, raws []domain.RawEvent, url string, adapter adapters.Adapter) Result {
	res.State = StateNormalizing

	now := c.opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	hint := ""
	if _, path, err := domain.SplitURL(url); err == nil && strings.Contains(path, "forskolor") {
		hint = "preschool"
	}

	var events []domain.Event
	skipped := 0
	for _, raw := range raws {
		event, ok := c.normalizeOne(raw, url, hint, now)
		if !ok {
			skipped++
			continue
		}
		events = append(events, event)
	}
	if skipped > 0 {
		c.logger.Debug().Str("url", url).Int("skipped", skipped).Msg("crawler: events without parseable date dropped")
	}

	events = filterHorizon(events, now, c.horizonDays(adapter))
	events = c.enrichDescriptions(ctx, events, url)
	events = consolidate(events)

	if c.opts.Limit > 0 && len(events) > c.opts.Limit {
		events = events[:c.opts.Limit]
	}

	res.Events = events
	res.State = StateDone
	c.logger.Info().Str("url", url).Int("events", len(events)).Msg("crawler: url done")
	return res
}

// normalizeOne maps one raw field map to an Event. Returns false when no
// date could be parsed.
func (c *Crawler) normalizeOne(raw domain.RawEvent, listingURL, hint string, now time.Time) (domain.Event, bool) {
	rawName := sanitize.Text(raw[domain.FieldEventName])
	name := normalize.CleanEventName(rawName)
	if name == "" {
		return domain.Event{}, false
	}

	dateText := raw[domain.FieldDateISO]
	start, end := normalize.ParseDateRange(dateText, now)
	if explicitEnd := raw[domain.FieldEndDateISO]; explicitEnd != "" {
		if parsed := normalize.ParseDateAt(explicitEnd, now); parsed != "" {
			end = parsed
		}
	}
	if start == "" {
		return domain.Event{}, false
	}
	if end == "" {
		end = domain.NA
	}

	eventTime := normalize.ExtractTime(raw[domain.FieldTime])
	if eventTime == domain.NA {
		eventTime = normalize.ExtractTime(dateText)
	}

	description := sanitize.Text(raw[domain.FieldDescription])

	booking := normalize.ExtractBooking(raw[domain.FieldBooking])
	if booking == domain.NA {
		booking = normalize.ExtractBooking(description)
	}

	eventURL := raw[domain.FieldEventURL]
	if eventURL == "" {
		eventURL = listingURL
	} else {
		eventURL = extract.ResolveURL(listingURL, eventURL)
	}

	targetRaw := raw[domain.FieldTargetGroup]
	return domain.Event{
		EventName:      name,
		DateISO:        start,
		EndDateISO:     end,
		Time:           eventTime,
		Location:       sanitize.Text(raw[domain.FieldLocation]),
		TargetGroupRaw: targetRaw,
		TargetGroup:    normalize.ClassifyTargetGroup(targetRaw, normalize.Context{SourceHint: hint, EventName: name}),
		Description:    description,
		EventURL:       eventURL,
		Status:         normalize.DetectStatus(rawName, description, raw[domain.FieldStatus]),
		BookingInfo:    booking,
	}, true
}

func (c *Crawler) horizonDays(adapter adapters.Adapter) int {
	horizon := c.opts.HorizonDays
	if horizon <= 0 {
		horizon = defaultHorizonDays
	}
	if hz, ok := adapter.(adapters.HorizonOverride); ok && hz.HorizonDays() > 0 {
		horizon = hz.HorizonDays()
	}
	if horizon > maxHorizonDays {
		horizon = maxHorizonDays
	}
	return horizon
}

// filterHorizon drops events outside [today, today+horizon]. Multi-day
// events stay as long as they are still running today.
func filterHorizon(events []domain.Event, now time.Time, horizonDays int) []domain.Event {
	today := now.Format("2006-01-02")
	limit := now.AddDate(0, 0, horizonDays).Format("2006-01-02")

	kept := events[:0]
	for _, e := range events {
		effectiveEnd := e.DateISO
		if e.MultiDay() {
			effectiveEnd = e.EndDateISO
		}
		if effectiveEnd < today || e.DateISO > limit {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

// enrichDescriptions follows event links for events with thin descriptions,
// bounded by the shared per-run budget.
func (c *Crawler) enrichDescriptions(ctx context.Context, events []domain.Event, listingURL string) []domain.Event {
	if c.deps.Details == nil || c.opts.DetailBudget == nil {
		return events
	}
	for i := range events {
		e := &events[i]
		if len(e.Description) >= minDescriptionLen || e.EventURL == listingURL {
			continue
		}
		if c.opts.DetailBudget.Add(-1) < 0 {
			break
		}
		description, err := c.deps.Details.Fetch(ctx, e.EventURL)
		if err != nil {
			c.logger.Debug().Err(err).Str("url", e.EventURL).Msg("crawler: detail fetch failed")
			continue
		}
		metrics.DetailFetches.Inc()
		if description != "" {
			e.Description = description
		}
	}
	return events
}

// consolidate merges same-run duplicates keyed by (name, date): times join
// with ", " and the earliest URL wins.
func consolidate(events []domain.Event) []domain.Event {
	type key struct{ name, date string }
	index := make(map[key]int)
	var out []domain.Event

	for _, e := range events {
		k := key{e.EventName, e.DateISO}
		if i, ok := index[k]; ok {
			existing := &out[i]
			if e.Time != domain.NA && e.Time != "" && !strings.Contains(existing.Time, e.Time) {
				if existing.Time == domain.NA || existing.Time == "" {
					existing.Time = e.Time
				} else {
					existing.Time += ", " + e.Time
				}
			}
			continue
		}
		index[k] = len(out)
		out = append(out, e)
	}
	return out
}

func (c *Crawler) fail(res Result, err error) Result {
	res.State = StateFailed
	res.Err = err
	res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", res.URL, err))
	c.logger.Warn().Err(err).Str("url", res.URL).Msg("crawler: url failed")
	return res
}
