package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"jobwatch/aggregator-service/internal/model"
)

const (
	anthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
	defaultModel     = "claude-haiku-4-5-20251001"

	scoreTimeout     = 60 * time.Second
	maxTokensPerJob  = 200
	batchDescLimit   = 800
	singleDescLimit  = 2000
)

var htmlTagRe = regexp.MustCompile(`<[^>]+>`)
var spaceRe = regexp.MustCompile(`\s+`)

const batchSystemPrompt = `You are evaluating job-posting fit for a specific candidate.
You will receive the candidate's CV and skills, then a numbered list of jobs.

Score each job 0.0-1.0 for how well it fits the candidate's experience level,
skills and preferences. Experience-level fit is the primary factor: penalise
roles requiring clearly more seniority than the CV shows, boost entry-track
roles matching the candidate's stack.

Respond ONLY with a valid JSON array, one object per job, in order:
[
  {"job": 1, "score": 0.88, "reasons": ["reason 1", "reason 2"]},
  {"job": 2, "score": 0.22, "reasons": ["reason 1", "reason 2"]}
]

2-3 short, specific reasons per job. Mention what matches AND what is missing.`

const singleSystemPrompt = `You are evaluating job-posting fit for a specific candidate.
You will receive the candidate's CV and skills, then one job.

Score the job 0.0-1.0 for fit. Experience-level fit is the primary factor.

Respond ONLY with valid JSON:
{"score": 0.82, "reasons": ["reason 1", "reason 2"]}

2-3 short specific reasons covering fit and gaps.`

// ClaudeScorer scores postings through the Anthropic messages API.
type ClaudeScorer struct {
	// BaseURL overrides the API root; empty means production.
	BaseURL string

	apiKey string
	model  string
	client *http.Client
}

// NewClaudeScorer constructs a scorer. An empty model falls back to the
// default small model; batch scoring keeps per-call cost bounded.
func NewClaudeScorer(apiKey, model string) *ClaudeScorer {
	if model == "" {
		model = defaultModel
	}
	return &ClaudeScorer{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: scoreTimeout},
	}
}

// messagesRequest mirrors the Anthropic messages API request body.
type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// messagesResponse mirrors the response; only text blocks matter here.
type messagesResponse struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// batchItem is one entry of the expected batch response array.
type batchItem struct {
	Job     int      `json:"job"`
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
}

// ScoreBatch scores up to a batch of jobs in one API call. The response must
// cover every job; a missing or duplicate entry fails the whole batch so the
// orchestrator can degrade to individual calls.
func (c *ClaudeScorer) ScoreBatch(ctx context.Context, jobs []model.Job, profile *model.Profile) ([]Result, error) {
	var sb strings.Builder
	for i, job := range jobs {
		fmt.Fprintf(&sb, "Job %d: %s — %s\n", i+1, job.CompanyName, job.Title)
		if desc := cleanDescription(job.Description, batchDescLimit); desc != "" {
			sb.WriteString(desc)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	prompt := fmt.Sprintf("CV:\n%s\n\nSkills: %s\n\n---\n\nJobs to score:\n%s",
		profile.CVText, strings.Join(profile.Skills, ", "), sb.String())

	raw, err := c.complete(ctx, batchSystemPrompt, prompt, maxTokensPerJob*len(jobs))
	if err != nil {
		return nil, err
	}

	var items []batchItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("batch response is not a JSON array: %w", err)
	}

	results := make([]Result, len(jobs))
	seen := make([]bool, len(jobs))
	for _, item := range items {
		idx := item.Job - 1
		if idx < 0 || idx >= len(jobs) {
			return nil, fmt.Errorf("batch response references job %d outside batch of %d", item.Job, len(jobs))
		}
		if seen[idx] {
			return nil, fmt.Errorf("batch response repeats job %d", item.Job)
		}
		seen[idx] = true
		results[idx] = Result{Score: item.Score, Reasons: item.Reasons}
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("batch response missing job %d", i+1)
		}
	}
	return results, nil
}

// ScoreOne scores a single job, the fallback path after a rejected batch.
func (c *ClaudeScorer) ScoreOne(ctx context.Context, job model.Job, profile *model.Profile) (Result, error) {
	jobText := fmt.Sprintf("Company: %s\nTitle: %s", job.CompanyName, job.Title)
	if desc := cleanDescription(job.Description, singleDescLimit); desc != "" {
		jobText += "\n\n" + desc
	}

	prompt := fmt.Sprintf("CV:\n%s\n\nSkills: %s\n\n---\n\nJob:\n%s",
		profile.CVText, strings.Join(profile.Skills, ", "), jobText)

	raw, err := c.complete(ctx, singleSystemPrompt, prompt, maxTokensPerJob)
	if err != nil {
		return Result{}, err
	}

	var item struct {
		Score   float64  `json:"score"`
		Reasons []string `json:"reasons"`
	}
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return Result{}, fmt.Errorf("single response is not a JSON object: %w", err)
	}
	return Result{Score: item.Score, Reasons: item.Reasons}, nil
}

// complete sends one messages request and returns the fence-stripped text.
func (c *ClaudeScorer) complete(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	base := c.BaseURL
	if base == "" {
		base = anthropicBaseURL
	}

	body, err := json.Marshal(messagesRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http POST: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("anthropic returned %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp messagesResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("json unmarshal: %w", err)
	}
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			return stripFences(block.Text), nil
		}
	}
	return "", fmt.Errorf("response contains no text block")
}

// cleanDescription strips HTML tags, collapses whitespace and truncates.
func cleanDescription(raw string, limit int) string {
	if raw == "" {
		return ""
	}
	s := htmlTagRe.ReplaceAllString(raw, " ")
	s = strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
	if len(s) > limit {
		s = s[:limit]
	}
	return s
}

// stripFences removes markdown code fences some models wrap JSON in.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
