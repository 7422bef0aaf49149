// Package orchestrator fans source URLs out to crawler workers, persists
// their events, and records one run log per invocation.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kulturkartan/kulturkartan/internal/crawler"
	"github.com/kulturkartan/kulturkartan/internal/domain"
	"github.com/kulturkartan/kulturkartan/internal/metrics"
	"github.com/kulturkartan/kulturkartan/internal/storage"
)

const (
	defaultConcurrency   = 2
	defaultPerURLTimeout = 30 * time.Minute
	defaultRetentionDays = 90

	// Settings keys the orchestrator consults after a run.
	SettingAutoDeleteOldEvents = "auto_delete_old_events"
	SettingRetentionDays       = "retention_days"
)

// CrawlRunner is one URL's pipeline. Satisfied by *crawler.Crawler.
type CrawlRunner interface {
	Run(ctx context.Context, url string) crawler.Result
}

// Factory builds one runner per worker; a crawler instance is not safe for
// concurrent use.
type Factory func() CrawlRunner

// Options tunes one run.
type Options struct {
	Concurrency   int
	PerURLTimeout time.Duration
	Mode          domain.RunMode
	DryRun        bool // crawl and report, persist nothing
	Now           time.Time
	Out           io.Writer // summary destination, defaults to stdout
}

// Summary is the aggregated outcome of one run.
type Summary struct {
	RunID    string
	Status   domain.RunStatus
	Events   int
	Failures int
	Warnings []string
	Results  []crawler.Result
}

type Orchestrator struct {
	store      storage.Repository
	newCrawler Factory
	opts       Options
	logger     zerolog.Logger
}

func New(store storage.Repository, factory Factory, opts Options, logger zerolog.Logger) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.PerURLTimeout <= 0 {
		opts.PerURLTimeout = defaultPerURLTimeout
	}
	if opts.Mode == "" {
		opts.Mode = domain.RunAuto
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &Orchestrator{store: store, newCrawler: factory, opts: opts, logger: logger}
}

// Run crawls every enabled source. Workers are isolated: a panic or timeout
// in one URL never takes down the run, and events from finished workers are
// persisted even when later workers fail or the run is cancelled. The run
// log is written on every exit path.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	started := o.now()

	sources, err := o.store.Sources().ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	o.logger.Info().Int("sources", len(sources)).Int("concurrency", o.opts.Concurrency).
		Str("mode", string(o.opts.Mode)).Msg("orchestrator: run starting")

	var (
		mu      sync.Mutex
		results = make([]crawler.Result, 0, len(sources))
		events  int
	)

	g := &errgroup.Group{}
	g.SetLimit(o.opts.Concurrency)
	for _, src := range sources {
		g.Go(func() error {
			res := o.crawlOne(ctx, src.URL)
			persisted := 0
			if res.State == crawler.StateDone {
				persisted = o.persist(ctx, &res)
			}

			mu.Lock()
			results = append(results, res)
			events += persisted
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].URL < results[j].URL })

	summary := &Summary{
		RunID:   ulid.Make().String(),
		Events:  events,
		Results: results,
	}
	for _, res := range results {
		if res.State == crawler.StateFailed {
			summary.Failures++
			metrics.URLFailures.Inc()
		}
		summary.Warnings = append(summary.Warnings, res.Warnings...)
	}
	summary.Status = runStatus(summary.Events, summary.Failures)

	o.appendRunLog(started, summary)
	o.sweep(ctx)
	o.printSummary(summary)

	o.logger.Info().Str("run_id", summary.RunID).Str("status", string(summary.Status)).
		Int("events", summary.Events).Int("failures", summary.Failures).
		Dur("elapsed", time.Since(started)).Msg("orchestrator: run finished")
	return summary, nil
}

// crawlOne runs one URL under its own timeout with panic isolation.
func (o *Orchestrator) crawlOne(ctx context.Context, url string) (res crawler.Result) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().Str("url", url).Interface("panic", r).Msg("orchestrator: worker panicked")
			res = crawler.Result{
				URL:      url,
				State:    crawler.StateFailed,
				Err:      fmt.Errorf("worker panic: %v", r),
				Warnings: []string{fmt.Sprintf("%s: worker panic: %v", url, r)},
			}
		}
	}()

	urlCtx, cancel := context.WithTimeout(ctx, o.opts.PerURLTimeout)
	defer cancel()
	return o.newCrawler().Run(urlCtx, url)
}

// persist upserts a finished worker's events and returns how many made it in.
func (o *Orchestrator) persist(ctx context.Context, res *crawler.Result) int {
	if o.opts.DryRun {
		return len(res.Events)
	}
	persisted := 0
	for _, e := range res.Events {
		e.LastScraped = o.now()
		if err := o.store.Events().Upsert(ctx, e); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: upsert %q: %v", res.URL, e.EventName, err))
			continue
		}
		metrics.EventsUpserted.Inc()
		persisted++
	}
	return persisted
}

// appendRunLog writes the run record on its own context so a cancelled run
// still gets logged.
func (o *Orchestrator) appendRunLog(started time.Time, summary *Summary) {
	if o.opts.DryRun {
		return
	}
	logCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	entry := domain.RunLog{
		ID:          summary.RunID,
		Timestamp:   started,
		Mode:        o.opts.Mode,
		Status:      summary.Status,
		EventsFound: summary.Events,
		Failures:    summary.Failures,
		Warnings:    summary.Warnings,
	}
	if err := o.store.RunLogs().Append(logCtx, entry); err != nil {
		o.logger.Error().Err(err).Str("run_id", summary.RunID).Msg("orchestrator: writing run log failed")
	}
}

// sweep deletes long-past events when the operator has opted in.
func (o *Orchestrator) sweep(ctx context.Context) {
	if o.opts.DryRun {
		return
	}
	enabled, err := o.store.Settings().GetBool(ctx, SettingAutoDeleteOldEvents, false)
	if err != nil || !enabled {
		return
	}

	days := defaultRetentionDays
	if raw, err := o.store.Settings().Get(ctx, SettingRetentionDays); err == nil {
		if n, convErr := strconv.Atoi(raw); convErr == nil && n > 0 {
			days = n
		}
	}

	deleted, err := o.store.Events().DeleteOlderThan(ctx, days)
	if err != nil {
		o.logger.Error().Err(err).Msg("orchestrator: retention sweep failed")
		return
	}
	if deleted > 0 {
		o.logger.Info().Int64("deleted", deleted).Int("retention_days", days).
			Msg("orchestrator: retention sweep removed old events")
	}
}

func (o *Orchestrator) printSummary(summary *Summary) {
	w := tabwriter.NewWriter(o.opts.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "URL\tSTATE\tEVENTS\tWARNINGS")
	for _, res := range summary.Results {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", res.URL, res.State, len(res.Events), len(res.Warnings))
	}
	w.Flush()
	fmt.Fprintf(o.opts.Out, "Scraping complete: %d events, %d failures\n", summary.Events, summary.Failures)
}

func runStatus(events, failures int) domain.RunStatus {
	switch {
	case failures == 0:
		return domain.RunOK
	case events > 0:
		return domain.RunWarn
	default:
		return domain.RunError
	}
}

func (o *Orchestrator) now() time.Time {
	if o.opts.Now.IsZero() {
		return time.Now()
	}
	return o.opts.Now
}
