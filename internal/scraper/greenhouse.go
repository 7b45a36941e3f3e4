package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"jobwatch/aggregator-service/internal/model"
)

const (
	greenhouseBaseURL = "https://boards-api.greenhouse.io/v1/boards"
	httpTimeout       = 15 * time.Second
)

// GreenhouseScraper fetches postings from the public Greenhouse boards API.
// It works for any company whose platform_token is a Greenhouse board slug.
type GreenhouseScraper struct {
	// BaseURL overrides the boards API root; empty means production.
	BaseURL string
	// LocationFilter keeps only postings whose location contains this string
	// (case-insensitive). Empty keeps everything.
	LocationFilter string

	client *http.Client
}

// NewGreenhouseScraper constructs a scraper with a shared HTTP client.
func NewGreenhouseScraper(locationFilter string) *GreenhouseScraper {
	return &GreenhouseScraper{
		LocationFilter: locationFilter,
		client:         &http.Client{Timeout: httpTimeout},
	}
}

// greenhouseResponse mirrors the top-level boards API JSON response.
type greenhouseResponse struct {
	Jobs []greenhouseJob `json:"jobs"`
}

// greenhouseJob mirrors a single board listing.
type greenhouseJob struct {
	ID          int64               `json:"id"`
	Title       string              `json:"title"`
	AbsoluteURL string              `json:"absolute_url"`
	Content     string              `json:"content"`
	UpdatedAt   string              `json:"updated_at"`
	Location    *greenhouseLocation `json:"location"`
	Metadata    []greenhouseMeta    `json:"metadata"`
}

type greenhouseLocation struct {
	Name string `json:"name"`
}

type greenhouseMeta struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Fetch retrieves the board's current postings, normalised and filtered by
// location. Errors are classified for the scrape health log: connectivity and
// 5xx failures are transient, anything unparseable is a parse error.
func (g *GreenhouseScraper) Fetch(ctx context.Context, company model.Company) ([]model.RawPosting, error) {
	if company.PlatformToken == "" {
		return nil, &ScrapeError{Kind: KindParse, Err: fmt.Errorf("company %s has no board token", company.Name)}
	}

	base := g.BaseURL
	if base == "" {
		base = greenhouseBaseURL
	}
	endpoint := fmt.Sprintf("%s/%s/jobs?content=true", base, company.PlatformToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &ScrapeError{Kind: KindParse, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &ScrapeError{Kind: KindTransient, Err: fmt.Errorf("http GET: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ScrapeError{Kind: KindTransient, Err: fmt.Errorf("read body: %w", err)}
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, &ScrapeError{Kind: KindTransient, Err: fmt.Errorf("greenhouse returned %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, &ScrapeError{Kind: KindParse, Err: fmt.Errorf("greenhouse returned %d: %s", resp.StatusCode, string(body))}
	}

	var apiResp greenhouseResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, &ScrapeError{Kind: KindParse, Err: fmt.Errorf("json unmarshal: %w", err)}
	}

	postings := make([]model.RawPosting, 0, len(apiResp.Jobs))
	for _, j := range apiResp.Jobs {
		location := "Remote"
		if j.Location != nil && j.Location.Name != "" {
			location = j.Location.Name
		}
		if g.LocationFilter != "" &&
			!strings.Contains(strings.ToLower(location), strings.ToLower(g.LocationFilter)) {
			continue
		}

		url := j.AbsoluteURL
		if url == "" {
			url = fmt.Sprintf("https://boards.greenhouse.io/%s/jobs/%d", company.PlatformToken, j.ID)
		}

		postings = append(postings, model.RawPosting{
			Title:       j.Title,
			URL:         url,
			Description: j.Content,
			Location:    location,
			JobType:     employmentType(j.Metadata),
			PostedDate:  parseTimestamp(j.UpdatedAt),
		})
	}

	return postings, nil
}

// employmentType pulls the Employment Type metadata value when present.
func employmentType(meta []greenhouseMeta) string {
	for _, m := range meta {
		if m.Name != "Employment Type" {
			continue
		}
		if s, ok := m.Value.(string); ok {
			return s
		}
	}
	return ""
}

// parseTimestamp parses Greenhouse's ISO timestamps, returning nil when the
// field is missing or malformed. The posted date is optional.
func parseTimestamp(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
