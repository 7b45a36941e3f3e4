package scoring_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"jobwatch/aggregator-service/internal/model"
	"jobwatch/aggregator-service/internal/scoring"
)

// anthropicStub serves a canned messages-API response with the given text.
func anthropicStub(t *testing.T, text string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.NotEmpty(t, r.Header.Get("x-api-key"))
		require.NotEmpty(t, r.Header.Get("anthropic-version"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{"type": "text", "text": text}},
		})
	}))
}

func scorerFor(srv *httptest.Server) *scoring.ClaudeScorer {
	s := scoring.NewClaudeScorer("test-key", "test-model")
	s.BaseURL = srv.URL
	return s
}

func batchJobs(n int) []model.Job {
	jobs := make([]model.Job, n)
	for i := range jobs {
		jobs[i] = model.Job{ID: int64(i + 1), Title: fmt.Sprintf("Job %d", i+1), CompanyName: "Acme"}
	}
	return jobs
}

func TestScoreBatch_ParsesAlignedResults(t *testing.T) {
	srv := anthropicStub(t, `[
		{"job": 1, "score": 0.88, "reasons": ["stack match", "entry level"]},
		{"job": 2, "score": 0.22, "reasons": ["requires 5+ years"]}
	]`)
	defer srv.Close()

	results, err := scorerFor(srv).ScoreBatch(context.Background(), batchJobs(2), profile)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, 0.88, results[0].Score)
	require.Equal(t, []string{"requires 5+ years"}, results[1].Reasons)
}

func TestScoreBatch_StripsCodeFences(t *testing.T) {
	srv := anthropicStub(t, "```json\n[{\"job\": 1, \"score\": 0.5, \"reasons\": [\"ok\"]}]\n```")
	defer srv.Close()

	results, err := scorerFor(srv).ScoreBatch(context.Background(), batchJobs(1), profile)
	require.NoError(t, err)
	require.Equal(t, 0.5, results[0].Score)
}

func TestScoreBatch_MissingJobFailsWholeBatch(t *testing.T) {
	srv := anthropicStub(t, `[{"job": 1, "score": 0.5, "reasons": ["ok"]}]`)
	defer srv.Close()

	_, err := scorerFor(srv).ScoreBatch(context.Background(), batchJobs(2), profile)
	require.ErrorContains(t, err, "missing job 2")
}

func TestScoreBatch_OutOfBatchIndexFails(t *testing.T) {
	srv := anthropicStub(t, `[{"job": 7, "score": 0.5, "reasons": ["ok"]}]`)
	defer srv.Close()

	_, err := scorerFor(srv).ScoreBatch(context.Background(), batchJobs(1), profile)
	require.ErrorContains(t, err, "outside batch")
}

func TestScoreBatch_NonArrayResponseFails(t *testing.T) {
	srv := anthropicStub(t, `{"score": 0.5}`)
	defer srv.Close()

	_, err := scorerFor(srv).ScoreBatch(context.Background(), batchJobs(1), profile)
	require.ErrorContains(t, err, "not a JSON array")
}

func TestScoreOne_ParsesObject(t *testing.T) {
	srv := anthropicStub(t, `{"score": 0.82, "reasons": ["good fit", "minor gap"]}`)
	defer srv.Close()

	result, err := scorerFor(srv).ScoreOne(context.Background(), batchJobs(1)[0], profile)
	require.NoError(t, err)
	require.Equal(t, 0.82, result.Score)
	require.Len(t, result.Reasons, 2)
}

func TestScore_UpstreamErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "overloaded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := scorerFor(srv).ScoreBatch(context.Background(), batchJobs(1), profile)
	require.ErrorContains(t, err, "anthropic returned 429")
}
