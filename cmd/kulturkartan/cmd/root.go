package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kulturkartan/kulturkartan/internal/config"
	"github.com/kulturkartan/kulturkartan/internal/storage/sqlite"
)

var (
	// Global flags
	configPath string
	dbPath     string
	logLevel   string
	logFormat  string

	rootCmd = &cobra.Command{
		Use:   "kulturkartan",
		Short: "Kulturkartan - event scraper for Stockholm culture venues",
		Long: `Kulturkartan collects children's and family events from Stockholm
culture venues into a local catalog.

It renders each source in a headless browser, extracts events with cached
CSS selectors (discovering new ones with AI when a site changes), normalizes
Swedish dates, times, and audience labels, and upserts everything into an
embedded SQLite database.

Running kulturkartan without a subcommand starts a full scrape of all
enabled sources.`,
	}
)

// Execute runs the CLI. Exit code 1 on any command error, which includes a
// scrape run ending in the Error status.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return scrapeCmd.RunE(cmd, args)
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, console)")
}

// loadConfig layers the persistent flags on top of file + env config.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	return cfg, nil
}

func newLogger(cfg config.Config) zerolog.Logger {
	return config.NewLogger(cfg.Logging)
}

func openStore(ctx context.Context, cfg config.Config) (*sqlite.Store, error) {
	store, err := sqlite.Open(ctx, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}
	return store, nil
}
