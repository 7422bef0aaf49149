package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kulturkartan/kulturkartan/internal/crawler"
	"github.com/kulturkartan/kulturkartan/internal/domain"
	"github.com/kulturkartan/kulturkartan/internal/storage"
)

// memRepo is the in-memory storage used by these tests. Only the methods the
// orchestrator touches do real work.
type memRepo struct {
	mu       sync.Mutex
	sources  []domain.SourceURL
	events   []domain.Event
	runLogs  []domain.RunLog
	settings map[string]string

	sweepDays []int
}

func newMemRepo(urls ...string) *memRepo {
	r := &memRepo{settings: map[string]string{}}
	for i, u := range urls {
		r.sources = append(r.sources, domain.SourceURL{ID: int64(i + 1), URL: u, Enabled: true})
	}
	return r
}

func (r *memRepo) Events() storage.EventRepository       { return (*memEvents)(r) }
func (r *memRepo) Selectors() storage.SelectorRepository { return nil }
func (r *memRepo) Sources() storage.SourceRepository     { return (*memSources)(r) }
func (r *memRepo) Settings() storage.SettingsRepository  { return (*memSettings)(r) }
func (r *memRepo) RunLogs() storage.RunLogRepository     { return (*memRunLogs)(r) }

type memEvents memRepo

func (m *memEvents) Upsert(_ context.Context, e domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memEvents) Filter(context.Context, storage.FilterQuery) ([]domain.Event, int, error) {
	return nil, 0, nil
}
func (m *memEvents) Delete(context.Context, string, string, string) error { return nil }
func (m *memEvents) DeleteOlderThan(_ context.Context, days int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepDays = append(m.sweepDays, days)
	return 3, nil
}
func (m *memEvents) Venues(context.Context) ([]string, error)                     { return nil, nil }
func (m *memEvents) CountByVenue(context.Context) ([]storage.VenueCount, error)   { return nil, nil }
func (m *memEvents) CountByTargetGroup(context.Context) ([]storage.GroupCount, error) {
	return nil, nil
}
func (m *memEvents) Timeline(context.Context, int) ([]storage.WeekCount, error) { return nil, nil }

type memSources memRepo

func (m *memSources) Add(context.Context, string, string) (*domain.SourceURL, error) {
	return nil, nil
}
func (m *memSources) ListEnabled(context.Context) ([]domain.SourceURL, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.SourceURL(nil), m.sources...), nil
}
func (m *memSources) ListAll(context.Context) ([]domain.SourceURL, error)  { return nil, nil }
func (m *memSources) SetEnabled(context.Context, int64, bool) error        { return nil }
func (m *memSources) Delete(context.Context, int64) error                  { return nil }

type memSettings memRepo

func (m *memSettings) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.settings[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (m *memSettings) GetBool(ctx context.Context, key string, fallback bool) (bool, error) {
	v, err := m.Get(ctx, key)
	if err != nil {
		return fallback, nil
	}
	return v == "true", nil
}

func (m *memSettings) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

func (m *memSettings) List(context.Context) (map[string]string, error) { return nil, nil }

type memRunLogs memRepo

func (m *memRunLogs) Append(_ context.Context, entry domain.RunLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runLogs = append(m.runLogs, entry)
	return nil
}

func (m *memRunLogs) List(context.Context, int) ([]domain.RunLog, error) { return nil, nil }
func (m *memRunLogs) ClearOlderThan(context.Context, int) (int64, error) { return 0, nil }

// fakeRunner serves canned results per URL. URLs in blockUntilCancel hang
// until their context dies, mimicking a crawl that outlives its timeout.
type fakeRunner struct {
	mu               sync.Mutex
	results          map[string]crawler.Result
	blockUntilCancel map[string]bool
	panicOn          map[string]bool
	calls            []string
}

func (f *fakeRunner) Run(ctx context.Context, url string) crawler.Result {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()

	if f.panicOn[url] {
		panic("selector engine exploded")
	}
	if f.blockUntilCancel[url] {
		<-ctx.Done()
		return crawler.Result{
			URL: url, State: crawler.StateFailed, Err: ctx.Err(),
			Warnings: []string{fmt.Sprintf("%s: %v", url, ctx.Err())},
		}
	}
	res, ok := f.results[url]
	if !ok {
		return crawler.Result{URL: url, State: crawler.StateDone}
	}
	return res
}

func doneResult(url string, names ...string) crawler.Result {
	res := crawler.Result{URL: url, State: crawler.StateDone}
	for _, n := range names {
		res.Events = append(res.Events, domain.Event{
			EventName: n, DateISO: "2025-11-29", EventURL: url, EndDateISO: domain.NA,
		})
	}
	return res
}

func failedResult(url string) crawler.Result {
	err := fmt.Errorf("open %s: net::ERR_CONNECTION_RESET", url)
	return crawler.Result{
		URL: url, State: crawler.StateFailed, Err: err,
		Warnings: []string{fmt.Sprintf("%s: %v", url, err)},
	}
}

func newTestOrchestrator(repo *memRepo, runner *fakeRunner, opts Options) (*Orchestrator, *bytes.Buffer) {
	out := &bytes.Buffer{}
	opts.Out = out
	return New(repo, func() CrawlRunner { return runner }, opts, zerolog.Nop()), out
}

func TestRunPersistsAndReportsOK(t *testing.T) {
	t.Parallel()

	repo := newMemRepo("https://bibliotek.se/kalender", "https://kulturhuset.se/program")
	runner := &fakeRunner{results: map[string]crawler.Result{
		"https://bibliotek.se/kalender":   doneResult("https://bibliotek.se/kalender", "Sagostund", "Julkonsert"),
		"https://kulturhuset.se/program":  doneResult("https://kulturhuset.se/program", "Skaparverkstad"),
	}}
	o, out := newTestOrchestrator(repo, runner, Options{Mode: domain.RunManual})

	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.RunOK, summary.Status)
	assert.Equal(t, 3, summary.Events)
	assert.Zero(t, summary.Failures)
	assert.Len(t, repo.events, 3)
	assert.False(t, repo.events[0].LastScraped.IsZero())
	assert.Contains(t, out.String(), "Scraping complete: 3 events, 0 failures")

	require.Len(t, repo.runLogs, 1)
	entry := repo.runLogs[0]
	assert.Equal(t, summary.RunID, entry.ID)
	assert.Equal(t, domain.RunManual, entry.Mode)
	assert.Equal(t, domain.RunOK, entry.Status)
	assert.Equal(t, 3, entry.EventsFound)
	assert.Len(t, entry.ID, 26) // ULID
}

func TestPartialFailureIsWarn(t *testing.T) {
	t.Parallel()

	repo := newMemRepo("https://bibliotek.se/kalender", "https://nere.se/kalender")
	runner := &fakeRunner{results: map[string]crawler.Result{
		"https://bibliotek.se/kalender": doneResult("https://bibliotek.se/kalender", "Sagostund"),
		"https://nere.se/kalender":      failedResult("https://nere.se/kalender"),
	}}
	o, out := newTestOrchestrator(repo, runner, Options{})

	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.RunWarn, summary.Status)
	assert.Equal(t, 1, summary.Events)
	assert.Equal(t, 1, summary.Failures)
	assert.NotEmpty(t, summary.Warnings)
	assert.Contains(t, out.String(), "Scraping complete: 1 events, 1 failures")
	// The healthy URL's events are persisted despite the failure.
	assert.Len(t, repo.events, 1)
}

func TestAllFailedIsError(t *testing.T) {
	t.Parallel()

	repo := newMemRepo("https://nere.se/kalender")
	runner := &fakeRunner{results: map[string]crawler.Result{
		"https://nere.se/kalender": failedResult("https://nere.se/kalender"),
	}}
	o, _ := newTestOrchestrator(repo, runner, Options{})

	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.RunError, summary.Status)
	require.Len(t, repo.runLogs, 1, "run log must be written even on total failure")
	assert.Equal(t, domain.RunError, repo.runLogs[0].Status)
}

func TestSlowURLTimesOutWithoutStallingRun(t *testing.T) {
	t.Parallel()

	repo := newMemRepo("https://bibliotek.se/kalender", "https://seg.se/kalender")
	runner := &fakeRunner{
		results: map[string]crawler.Result{
			"https://bibliotek.se/kalender": doneResult("https://bibliotek.se/kalender", "Sagostund"),
		},
		blockUntilCancel: map[string]bool{"https://seg.se/kalender": true},
	}
	o, _ := newTestOrchestrator(repo, runner, Options{PerURLTimeout: 20 * time.Millisecond})

	start := time.Now()
	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, domain.RunWarn, summary.Status)
	assert.Equal(t, 1, summary.Events)
	assert.Equal(t, 1, summary.Failures)
	// The timed-out URL contributed nothing; the finished one persisted.
	assert.Len(t, repo.events, 1)
}

func TestWorkerPanicIsIsolated(t *testing.T) {
	t.Parallel()

	repo := newMemRepo("https://bibliotek.se/kalender", "https://trasig.se/kalender")
	runner := &fakeRunner{
		results: map[string]crawler.Result{
			"https://bibliotek.se/kalender": doneResult("https://bibliotek.se/kalender", "Sagostund"),
		},
		panicOn: map[string]bool{"https://trasig.se/kalender": true},
	}
	o, _ := newTestOrchestrator(repo, runner, Options{})

	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.RunWarn, summary.Status)
	assert.Equal(t, 1, summary.Failures)
	assert.Len(t, repo.events, 1)

	var failed *crawler.Result
	for i := range summary.Results {
		if summary.Results[i].State == crawler.StateFailed {
			failed = &summary.Results[i]
		}
	}
	require.NotNil(t, failed)
	assert.ErrorContains(t, failed.Err, "worker panic")
}

func TestDryRunPersistsNothing(t *testing.T) {
	t.Parallel()

	repo := newMemRepo("https://bibliotek.se/kalender")
	repo.settings[SettingAutoDeleteOldEvents] = "true"
	runner := &fakeRunner{results: map[string]crawler.Result{
		"https://bibliotek.se/kalender": doneResult("https://bibliotek.se/kalender", "Sagostund", "Julkonsert"),
	}}
	o, out := newTestOrchestrator(repo, runner, Options{DryRun: true})

	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Events)
	assert.Empty(t, repo.events)
	assert.Empty(t, repo.runLogs)
	assert.Empty(t, repo.sweepDays, "dry run must not sweep")
	assert.Contains(t, out.String(), "Scraping complete: 2 events, 0 failures")
}

func TestRetentionSweep(t *testing.T) {
	t.Parallel()

	t.Run("disabled by default", func(t *testing.T) {
		t.Parallel()
		repo := newMemRepo("https://bibliotek.se/kalender")
		o, _ := newTestOrchestrator(repo, &fakeRunner{}, Options{})
		_, err := o.Run(context.Background())
		require.NoError(t, err)
		assert.Empty(t, repo.sweepDays)
	})

	t.Run("uses configured retention", func(t *testing.T) {
		t.Parallel()
		repo := newMemRepo("https://bibliotek.se/kalender")
		repo.settings[SettingAutoDeleteOldEvents] = "true"
		repo.settings[SettingRetentionDays] = "30"
		o, _ := newTestOrchestrator(repo, &fakeRunner{}, Options{})
		_, err := o.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []int{30}, repo.sweepDays)
	})

	t.Run("falls back to ninety days", func(t *testing.T) {
		t.Parallel()
		repo := newMemRepo("https://bibliotek.se/kalender")
		repo.settings[SettingAutoDeleteOldEvents] = "true"
		o, _ := newTestOrchestrator(repo, &fakeRunner{}, Options{})
		_, err := o.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []int{90}, repo.sweepDays)
	})
}

func TestConcurrencyIsBounded(t *testing.T) {
	t.Parallel()

	var urls []string
	for i := 0; i < 6; i++ {
		urls = append(urls, fmt.Sprintf("https://kommun%d.se/kalender", i))
	}
	repo := newMemRepo(urls...)

	var mu sync.Mutex
	inFlight, peak := 0, 0
	runner := &trackingRunner{onRun: func() {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
	}}
	o, _ := newTestOrchestrator(repo, nil, Options{Concurrency: 2})
	o.newCrawler = func() CrawlRunner { return runner }

	_, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, peak, 2)
}

type trackingRunner struct{ onRun func() }

func (r *trackingRunner) Run(_ context.Context, url string) crawler.Result {
	r.onRun()
	return crawler.Result{URL: url, State: crawler.StateDone}
}
