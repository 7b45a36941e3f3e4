// aggregator-service
//
// Job lifecycle engine: scrapes monitored company boards, deduplicates and
// persists postings, scores them against the singleton profile in batches,
// and dispatches at-most-once notifications per (job, channel).
//
// Runs the full cycle on a cron interval (immediately on startup), or a
// single cycle with RUN_ONCE=true for external cron / CI triggering.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"jobwatch/aggregator-service/internal/config"
	"jobwatch/aggregator-service/internal/db"
	"jobwatch/aggregator-service/internal/ingest"
	"jobwatch/aggregator-service/internal/logger"
	"jobwatch/aggregator-service/internal/notify"
	"jobwatch/aggregator-service/internal/scheduler"
	"jobwatch/aggregator-service/internal/scoring"
	"jobwatch/aggregator-service/internal/scraper"
	"jobwatch/aggregator-service/internal/store"
)

const version = "1.0.0"

// cycleLockTTL caps how long a crashed cycle can block the next one.
const cycleLockTTL = 2 * time.Hour

func main() {
	logger.Setup()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("connecting to PostgreSQL")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("postgres error", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	slog.Info("connecting to Redis")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("redis error", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	st := store.New(pool)
	cycle := buildCycle(cfg, st, rdb)

	if cfg.RunOnce {
		if err := cycle.Run(ctx); err != nil {
			slog.Error("cycle failed", "err", err)
			os.Exit(1)
		}
		return
	}

	sched := scheduler.New(cycle, cfg.CycleIntervalHours)
	if err := sched.Start(ctx); err != nil {
		slog.Error("scheduler error", "err", err)
		os.Exit(1)
	}
	defer sched.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/scrapers/failing", failingScrapersHandler(st))
	mux.HandleFunc("/stats", statsHandler(st))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("listening", "version", version, "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	slog.Info("stopped")
}

// buildCycle assembles the pipeline: adapter registry, resolver, scrape
// worker, scoring orchestrator and notification dispatcher.
func buildCycle(cfg *config.Config, st *store.Store, rdb *redis.Client) *scheduler.Cycle {
	scrapers := scraper.Registry{
		"greenhouse": scraper.NewGreenhouseScraper(cfg.LocationFilter),
	}
	resolver := ingest.NewResolver(st)
	worker := scraper.NewWorker(st, resolver, scrapers, cfg.ScrapeConcurrency)

	var orchestrator *scoring.Orchestrator
	if cfg.AnthropicAPIKey != "" {
		keywords := cfg.BlockedKeywords
		if keywords == nil {
			keywords = scoring.DefaultBlockedKeywords
		}
		orchestrator = scoring.NewOrchestrator(
			st,
			scoring.NewClaudeScorer(cfg.AnthropicAPIKey, cfg.AnthropicModel),
			scoring.NewPrefilter(keywords),
			cfg.ScoreBatchSize,
			cfg.ScoreConcurrency,
		)
	} else {
		slog.Warn("ANTHROPIC_API_KEY not set, scoring stage disabled")
	}

	senders := notify.Registry{}
	if cfg.EmailEnabled() {
		senders[notify.ChannelEmail] = notify.NewEmailSender(
			cfg.SMTPAddr, cfg.SMTPUsername, cfg.SMTPPassword, cfg.EmailFrom, cfg.EmailTo)
	} else {
		slog.Warn("SMTP not configured, email channel disabled")
	}
	dispatcher := notify.NewDispatcher(st, senders)

	return scheduler.NewCycle(st, rdb, worker, orchestrator, dispatcher, cycleLockTTL)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "aggregator-service",
		"version": version,
	})
}

// statsHandler reports store-level counts: active companies, new jobs,
// unscored jobs, and jobs at or above the profile threshold.
func statsHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := st.Stats(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	}
}

// failingScrapersHandler surfaces companies whose most recent scrape failed.
func failingScrapersHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		failing, err := st.FailingScrapers(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(failing)
	}
}
