package cmd

import (
	"fmt"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kulturkartan/kulturkartan/internal/adapters"
	"github.com/kulturkartan/kulturkartan/internal/ai"
	"github.com/kulturkartan/kulturkartan/internal/browser"
	"github.com/kulturkartan/kulturkartan/internal/crawler"
	"github.com/kulturkartan/kulturkartan/internal/domain"
	"github.com/kulturkartan/kulturkartan/internal/metrics"
	"github.com/kulturkartan/kulturkartan/internal/orchestrator"
)

var (
	scrapeDryRun      bool
	scrapeLimit       int
	scrapeAuto        bool
	scrapeMetricsAddr string
	scrapeConcurrency int
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Crawl all enabled sources and update the event catalog",
	Long: `Crawl every enabled source URL, normalize the events found, and upsert
them into the catalog. This is also what running kulturkartan without a
subcommand does.

Each URL runs in its own worker with its own timeout; a broken or slow site
never blocks the rest of the run. The command prints a per-URL table and a
final summary line, and records one run log entry.

Examples:
  # Full scrape
  kulturkartan scrape

  # See what a scrape would ingest without writing anything
  kulturkartan scrape --dry-run

  # Cap events per source while testing a new site
  kulturkartan scrape --limit 5

  # Expose Prometheus counters for the duration of the run
  kulturkartan scrape --metrics-addr :9090`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScrape()
	},
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	scrapeCmd.Flags().BoolVar(&scrapeDryRun, "dry-run", false, "crawl and report, persist nothing")
	scrapeCmd.Flags().IntVar(&scrapeLimit, "limit", 0, "max events per source (0 = unlimited)")
	scrapeCmd.Flags().BoolVar(&scrapeAuto, "auto", false, "mark this run as scheduled rather than manual")
	scrapeCmd.Flags().StringVar(&scrapeMetricsAddr, "metrics-addr", "", "serve /metrics on this address during the run")
	scrapeCmd.Flags().IntVar(&scrapeConcurrency, "concurrency", 0, "worker count (overrides config)")
}

func runScrape() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	if cfg.AI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required: selector discovery needs the AI extractor")
	}

	ctx, stop := signal.NotifyContext(rootCmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	addr := scrapeMetricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		go func() {
			if err := metrics.ListenAndServe(addr); err != nil {
				logger.Warn().Err(err).Str("addr", addr).Msg("scrape: metrics listener stopped")
			}
		}()
	}

	driver, err := browser.NewRodDriver(browser.RodOptions{
		Headless:          cfg.Browser.Headless,
		Stealth:           cfg.Browser.Stealth,
		NavigationTimeout: cfg.NavigationTimeout(),
	}, logger)
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer driver.Close()

	aiClient, err := ai.NewOpenAI(cfg.AI.APIKey, cfg.AI.Model, logger)
	if err != nil {
		return err
	}

	registry := adapters.Builtin(logger)

	var detailBudget atomic.Int64
	detailBudget.Store(int64(cfg.Scrape.DetailFetchPerRun))

	factory := func() orchestrator.CrawlRunner {
		return crawler.New(crawler.Deps{
			Driver:    driver,
			Selectors: store.Selectors(),
			AI:        aiClient,
			Registry:  registry,
			Details:   crawler.NewCollyDetailFetcher(logger),
			Logger:    logger,
		}, crawler.Options{
			HorizonDays:  cfg.Scrape.HorizonDays,
			Limit:        scrapeLimit,
			DetailBudget: &detailBudget,
		})
	}

	mode := domain.RunManual
	if scrapeAuto {
		mode = domain.RunAuto
	}
	concurrency := cfg.Scrape.Concurrency
	if scrapeConcurrency > 0 {
		concurrency = scrapeConcurrency
	}

	orch := orchestrator.New(store, factory, orchestrator.Options{
		Concurrency:   concurrency,
		PerURLTimeout: cfg.PerURLTimeout(),
		Mode:          mode,
		DryRun:        scrapeDryRun,
	}, logger)

	summary, err := orch.Run(ctx)
	if err != nil {
		return err
	}
	if summary.Status == domain.RunError {
		return fmt.Errorf("run %s finished with status Error: %d failures, no events ingested",
			summary.RunID, summary.Failures)
	}
	return nil
}
