package scoring

import (
	"context"
	"fmt"

	"jobwatch/aggregator-service/internal/model"
)

// maxReasonLen bounds a single reason string; anything longer means the
// scoring capability ignored the response contract.
const maxReasonLen = 300

// Result is one validated scoring outcome.
type Result struct {
	Score   float64
	Reasons []string
}

// Scorer is the external scoring capability. ScoreBatch must return a list
// aligned positionally with jobs; it may fail wholesale (network, auth) or
// return malformed content. Both are handled by the orchestrator's fallback.
type Scorer interface {
	ScoreBatch(ctx context.Context, jobs []model.Job, profile *model.Profile) ([]Result, error)
	ScoreOne(ctx context.Context, job model.Job, profile *model.Profile) (Result, error)
}

// ValidateBatch checks a whole batch response: the length must match the
// request and every entry must pass ValidateResult. Any violation rejects the
// batch wholesale so the orchestrator degrades to individual calls.
func ValidateBatch(results []Result, want int) error {
	if len(results) != want {
		return fmt.Errorf("batch response has %d results, want %d", len(results), want)
	}
	for i, r := range results {
		if err := ValidateResult(r); err != nil {
			return fmt.Errorf("result %d: %w", i+1, err)
		}
	}
	return nil
}

// ValidateResult checks a single scoring outcome: score within [0, 1] and
// reasons a list of short non-empty strings.
func ValidateResult(r Result) error {
	if r.Score < 0.0 || r.Score > 1.0 {
		return fmt.Errorf("score %.2f out of range [0, 1]", r.Score)
	}
	for _, reason := range r.Reasons {
		if reason == "" {
			return fmt.Errorf("empty reason string")
		}
		if len(reason) > maxReasonLen {
			return fmt.Errorf("reason exceeds %d characters", maxReasonLen)
		}
	}
	return nil
}
