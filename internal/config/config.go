// Package config loads the YAML configuration file, applies environment
// overrides, and validates the result. Unknown YAML keys are rejected so a
// typo fails fast instead of silently running with defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Scrape   ScrapeConfig   `yaml:"scrape"`
	AI       AIConfig       `yaml:"ai"`
	Browser  BrowserConfig  `yaml:"browser"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

type ScrapeConfig struct {
	Concurrency        int `yaml:"concurrency" validate:"min=1,max=16"`
	PerURLTimeoutS     int `yaml:"per_url_timeout_s" validate:"min=1"`
	HorizonDays        int `yaml:"horizon_days" validate:"min=1,max=45"`
	RetentionDays      int `yaml:"retention_days" validate:"min=1"`
	DetailFetchPerRun  int `yaml:"detail_fetch_per_run" validate:"min=0"`
}

type AIConfig struct {
	Model string `yaml:"model"`
	// APIKey is environment-only (OPENAI_API_KEY); it never lives in the
	// config file.
	APIKey string `yaml:"-"`
}

type BrowserConfig struct {
	Headless           bool `yaml:"headless"`
	Stealth            bool `yaml:"stealth"`
	NavigationTimeoutS int  `yaml:"navigation_timeout_s" validate:"min=1"`
}

type ScheduleConfig struct {
	Frequency string `yaml:"frequency" validate:"oneof=daily weekly monthly custom"`
	Day       string `yaml:"day"`
	Time      string `yaml:"time" validate:"omitempty,datetime=15:04"`
	CustomISO string `yaml:"custom_iso"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the listener
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json console"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Database: DatabaseConfig{Path: "kulturkartan.db"},
		Scrape: ScrapeConfig{
			Concurrency:       2,
			PerURLTimeoutS:    1800,
			HorizonDays:       30,
			RetentionDays:     90,
			DetailFetchPerRun: 200,
		},
		AI:      AIConfig{Model: ""},
		Browser: BrowserConfig{Headless: true, Stealth: true, NavigationTimeoutS: 60},
		Schedule: ScheduleConfig{
			Frequency: "daily",
			Time:      "03:00",
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads path (optional), layers environment overrides on top, and
// validates. A missing file is fine; a malformed or unknown-keyed one is not.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Database.Path = getEnv("KULTURKARTAN_DB_PATH", cfg.Database.Path)
	cfg.Scrape.Concurrency = getEnvInt("KULTURKARTAN_CONCURRENCY", cfg.Scrape.Concurrency)
	cfg.Scrape.HorizonDays = getEnvInt("KULTURKARTAN_HORIZON_DAYS", cfg.Scrape.HorizonDays)
	cfg.AI.Model = getEnv("KULTURKARTAN_AI_MODEL", cfg.AI.Model)
	cfg.AI.APIKey = getEnv("OPENAI_API_KEY", "")
	cfg.Logging.Level = getEnv("KULTURKARTAN_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("KULTURKARTAN_LOG_FORMAT", cfg.Logging.Format)
	cfg.Metrics.Addr = getEnv("KULTURKARTAN_METRICS_ADDR", cfg.Metrics.Addr)
}

// PerURLTimeout is Scrape.PerURLTimeoutS as a duration.
func (c Config) PerURLTimeout() time.Duration {
	return time.Duration(c.Scrape.PerURLTimeoutS) * time.Second
}

// NavigationTimeout is Browser.NavigationTimeoutS as a duration.
func (c Config) NavigationTimeout() time.Duration {
	return time.Duration(c.Browser.NavigationTimeoutS) * time.Second
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
