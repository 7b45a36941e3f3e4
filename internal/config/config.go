// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the aggregator service.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	// Scraping
	LocationFilter     string // e.g. "Hong Kong"; empty keeps all locations
	ScrapeConcurrency  int
	CycleIntervalHours int // how often the cron cycle fires

	// Scoring
	AnthropicAPIKey  string // empty disables the scoring stage
	AnthropicModel   string
	ScoreBatchSize   int
	ScoreConcurrency int
	BlockedKeywords  []string // comma-separated override of the pre-filter list

	// Notification
	SMTPAddr     string // host:port
	SMTPUsername string
	SMTPPassword string
	EmailFrom    string
	EmailTo      []string

	// RunOnce executes a single cycle and exits (CI / external cron mode).
	RunOnce bool
}

// Load reads environment variables (and an optional .env file) and returns a
// validated Config.
func Load() (*Config, error) {
	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	port := os.Getenv("AGGREGATOR_PORT")
	if port == "" {
		port = "8083"
	}

	interval, err := positiveInt("CYCLE_INTERVAL_HOURS", 24)
	if err != nil {
		return nil, err
	}
	scrapeConc, err := positiveInt("SCRAPE_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}
	batchSize, err := positiveInt("SCORE_BATCH_SIZE", 5)
	if err != nil {
		return nil, err
	}
	scoreConc, err := positiveInt("SCORE_CONCURRENCY", 2)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:               port,
		DatabaseURL:        dbURL,
		RedisURL:           redisURL,
		LocationFilter:     os.Getenv("LOCATION_FILTER"),
		ScrapeConcurrency:  scrapeConc,
		CycleIntervalHours: interval,
		AnthropicAPIKey:    os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:     os.Getenv("ANTHROPIC_MODEL"),
		ScoreBatchSize:     batchSize,
		ScoreConcurrency:   scoreConc,
		BlockedKeywords:    splitList(os.Getenv("BLOCKED_KEYWORDS")),
		SMTPAddr:           os.Getenv("SMTP_ADDR"),
		SMTPUsername:       os.Getenv("SMTP_USERNAME"),
		SMTPPassword:       os.Getenv("SMTP_PASSWORD"),
		EmailFrom:          os.Getenv("EMAIL_FROM"),
		EmailTo:            splitList(os.Getenv("EMAIL_TO")),
		RunOnce:            os.Getenv("RUN_ONCE") == "true",
	}

	if cfg.SMTPAddr != "" && len(cfg.EmailTo) == 0 {
		return nil, fmt.Errorf("EMAIL_TO is required when SMTP_ADDR is set")
	}

	return cfg, nil
}

// EmailEnabled reports whether the email channel is configured.
func (c *Config) EmailEnabled() bool {
	return c.SMTPAddr != "" && len(c.EmailTo) > 0
}

func positiveInt(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, s)
	}
	return v, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
