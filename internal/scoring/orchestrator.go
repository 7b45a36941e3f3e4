package scoring

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"jobwatch/aggregator-service/internal/model"
)

// DefaultBatchSize bounds one scoring call; small enough that a rejected
// batch is cheap to replay individually.
const DefaultBatchSize = 5

// Store is the slice of the job store the scoring stage needs.
// UpdateJobMatch must be monotonic: it never replaces an existing score.
type Store interface {
	UnscoredJobs(ctx context.Context) ([]model.Job, error)
	UpdateJobMatch(ctx context.Context, jobID int64, score float64, reasons []string) error
}

// Orchestrator scores every unscored job per cycle. Pre-filtered jobs are
// settled at 0.0 without touching the scorer; the rest go through batched
// calls with an explicit two-tier degrade path: a batch whose response fails
// validation is replayed one job at a time, and a job that still cannot be
// scored keeps its NULL score for the next cycle.
type Orchestrator struct {
	store       Store
	scorer      Scorer
	prefilter   *Prefilter
	batchSize   int
	concurrency int
}

// NewOrchestrator constructs an Orchestrator. batchSize < 1 falls back to
// DefaultBatchSize, concurrency < 1 to serial batches.
func NewOrchestrator(store Store, scorer Scorer, prefilter *Prefilter, batchSize, concurrency int) *Orchestrator {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{
		store:       store,
		scorer:      scorer,
		prefilter:   prefilter,
		batchSize:   batchSize,
		concurrency: concurrency,
	}
}

// Summary counts one scoring stage's outcomes.
type Summary struct {
	Prefiltered int
	Scored      int
	Fallbacks   int // batches that degraded to individual calls
	Unresolved  int // jobs left NULL, retried next cycle
}

// Run scores all currently unscored jobs against the profile.
func (o *Orchestrator) Run(ctx context.Context, profile *model.Profile) (Summary, error) {
	jobs, err := o.store.UnscoredJobs(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load unscored jobs: %w", err)
	}
	if len(jobs) == 0 {
		slog.Info("no unscored jobs")
		return Summary{}, nil
	}

	var summary Summary

	// Zero-cost keyword pre-filter on title.
	toScore := jobs[:0:0]
	for _, job := range jobs {
		kw := o.prefilter.Match(job.Title)
		if kw == "" {
			toScore = append(toScore, job)
			continue
		}
		reason := fmt.Sprintf("pre-filtered: %s", kw)
		if err := o.store.UpdateJobMatch(ctx, job.ID, 0.0, []string{reason}); err != nil {
			slog.Error("persist pre-filter score failed", "jobId", job.ID, "err", err)
			summary.Unresolved++
			continue
		}
		summary.Prefiltered++
	}

	batches := chunk(toScore, o.batchSize)
	slog.Info("scoring stage started",
		"unscored", len(jobs),
		"prefiltered", summary.Prefiltered,
		"batches", len(batches),
		"batchSize", o.batchSize,
	)

	// Batches touch disjoint jobs, so ordering between them is irrelevant;
	// the limit only respects upstream rate limits.
	outcomes := make([]Summary, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			outcomes[i] = o.scoreBatch(gctx, batch, profile)
			return nil
		})
	}
	_ = g.Wait()

	for _, out := range outcomes {
		summary.Scored += out.Scored
		summary.Fallbacks += out.Fallbacks
		summary.Unresolved += out.Unresolved
	}

	slog.Info("scoring stage complete",
		"scored", summary.Scored,
		"prefiltered", summary.Prefiltered,
		"fallbacks", summary.Fallbacks,
		"unresolved", summary.Unresolved,
	)
	return summary, nil
}

// scoreBatch tries the batch call first; if the response fails wholesale
// validation it replays every job in the batch individually. Results are
// persisted only after the whole batch validated, so a malformed sibling can
// never corrupt the rest of its batch.
func (o *Orchestrator) scoreBatch(ctx context.Context, batch []model.Job, profile *model.Profile) Summary {
	var out Summary

	results, err := o.scorer.ScoreBatch(ctx, batch, profile)
	if err == nil {
		err = ValidateBatch(results, len(batch))
	}
	if err == nil {
		for i, job := range batch {
			if persistErr := o.store.UpdateJobMatch(ctx, job.ID, results[i].Score, results[i].Reasons); persistErr != nil {
				slog.Error("persist score failed", "jobId", job.ID, "err", persistErr)
				out.Unresolved++
				continue
			}
			out.Scored++
		}
		return out
	}

	slog.Warn("batch scoring rejected, falling back to individual calls",
		"batchSize", len(batch), "err", err)
	out.Fallbacks++

	for _, job := range batch {
		result, err := o.scorer.ScoreOne(ctx, job, profile)
		if err == nil {
			err = ValidateResult(result)
		}
		if err != nil {
			// Stays NULL: candidate again next cycle, never defaulted.
			slog.Warn("individual scoring failed, job stays unscored",
				"jobId", job.ID, "title", job.Title, "err", err)
			out.Unresolved++
			continue
		}
		if err := o.store.UpdateJobMatch(ctx, job.ID, result.Score, result.Reasons); err != nil {
			slog.Error("persist score failed", "jobId", job.ID, "err", err)
			out.Unresolved++
			continue
		}
		out.Scored++
	}
	return out
}

// chunk splits jobs into fixed-size batches, last one possibly short.
func chunk(jobs []model.Job, size int) [][]model.Job {
	var batches [][]model.Job
	for start := 0; start < len(jobs); start += size {
		end := start + size
		if end > len(jobs) {
			end = len(jobs)
		}
		batches = append(batches, jobs[start:end])
	}
	return batches
}
