// Package scheduler wires the cron trigger and runs the per-cycle pipeline:
// scrape → score → notify → health report, guarded by a Redis run-lock so
// overlapping cycles never race.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"jobwatch/aggregator-service/internal/notify"
	"jobwatch/aggregator-service/internal/scoring"
	"jobwatch/aggregator-service/internal/scraper"
	"jobwatch/aggregator-service/internal/store"
)

const (
	lockKey      = "aggregator:cycle:lock"
	eventChannel = "EVENT_CYCLE_COMPLETE"
)

// releaseScript deletes the lock only when it still holds this run's token,
// so an expired lock reclaimed by a later run is never clobbered.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0
`)

// Cycle bundles the per-cycle pipeline stages.
type Cycle struct {
	store      *store.Store
	rdb        *redis.Client
	worker     *scraper.Worker
	scorer     *scoring.Orchestrator // nil disables the scoring stage
	dispatcher *notify.Dispatcher
	lockTTL    time.Duration
}

// NewCycle constructs a Cycle. scorer may be nil when no scoring capability
// is configured; postings then surface unscored instead of being suppressed.
func NewCycle(
	st *store.Store,
	rdb *redis.Client,
	worker *scraper.Worker,
	scorer *scoring.Orchestrator,
	dispatcher *notify.Dispatcher,
	lockTTL time.Duration,
) *Cycle {
	return &Cycle{
		store:      st,
		rdb:        rdb,
		worker:     worker,
		scorer:     scorer,
		dispatcher: dispatcher,
		lockTTL:    lockTTL,
	}
}

// Run executes one full cycle under the run-lock. Transient scrape, scoring
// and send failures degrade gracefully inside their stages; only contract
// violations (a missing profile) abort the cycle with an error.
func (c *Cycle) Run(ctx context.Context) error {
	runID := uuid.NewString()

	acquired, err := c.rdb.SetNX(ctx, lockKey, runID, c.lockTTL).Result()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !acquired {
		slog.Warn("previous cycle still running, skipping", "lockKey", lockKey)
		return nil
	}
	defer func() {
		if _, err := releaseScript.Run(ctx, c.rdb, []string{lockKey}, runID).Result(); err != nil {
			slog.Error("release run lock failed", "runId", runID, "err", err)
		}
	}()

	start := time.Now()
	slog.Info("cycle started", "runId", runID)

	// The profile gates scoring and notification; its absence is a contract
	// violation, not a degradable failure.
	profile, err := c.store.GetProfile(ctx)
	if err != nil {
		if errors.Is(err, store.ErrProfileMissing) {
			return fmt.Errorf("cycle %s aborted: %w", runID, err)
		}
		return fmt.Errorf("cycle %s: load profile: %w", runID, err)
	}

	scrapeTotals, err := c.worker.RunAll(ctx)
	if err != nil {
		slog.Error("scrape stage failed, continuing with stored jobs", "err", err)
	}

	var scoreSummary scoring.Summary
	if c.scorer != nil {
		scoreSummary, err = c.scorer.Run(ctx, profile)
		if err != nil {
			slog.Error("scoring stage failed, unscored jobs carry over", "err", err)
		}
	} else {
		slog.Info("scoring disabled, postings surface unscored")
	}

	notifySummary, err := c.dispatcher.Run(ctx, profile.MatchThreshold)
	if err != nil {
		slog.Error("notification stage failed", "err", err)
	}

	c.reportFailingScrapers(ctx)
	c.publishSummary(ctx, runID, scrapeTotals, scoreSummary, notifySummary)

	slog.Info("cycle complete",
		"runId", runID,
		"duration", time.Since(start).Round(time.Millisecond),
		"newJobs", scrapeTotals.New,
		"scored", scoreSummary.Scored,
		"sent", notifySummary.Sent,
	)
	return nil
}

// reportFailingScrapers surfaces companies whose latest scrape failed.
func (c *Cycle) reportFailingScrapers(ctx context.Context) {
	failing, err := c.store.FailingScrapers(ctx)
	if err != nil {
		slog.Error("failing scrapers query failed", "err", err)
		return
	}
	for _, f := range failing {
		slog.Warn("scraper currently failing",
			"company", f.CompanyName,
			"error", f.ErrorMessage,
			"failedAt", f.FailedAt,
		)
	}
}

// publishSummary publishes the cycle outcome for downstream consumers.
// Non-fatal: the digest has already been dispatched.
func (c *Cycle) publishSummary(
	ctx context.Context,
	runID string,
	scrape scraper.Totals,
	score scoring.Summary,
	dispatch notify.Summary,
) {
	stats, err := c.store.Stats(ctx)
	if err != nil {
		slog.Error("stats query failed", "err", err)
	}

	event, _ := json.Marshal(map[string]any{
		"type":        eventChannel,
		"runId":       runID,
		"companies":   scrape.Companies,
		"jobsFound":   scrape.Found,
		"newJobs":     scrape.New,
		"scored":      score.Scored,
		"prefiltered": score.Prefiltered,
		"unresolved":  score.Unresolved,
		"sent":        dispatch.Sent,
		"unscoredDb":  stats.UnscoredJobs,
		"matchingDb":  stats.MatchingJobs,
	})
	if err := c.rdb.Publish(ctx, eventChannel, event).Err(); err != nil {
		slog.Warn("publish cycle summary failed", "err", err)
	}
}
