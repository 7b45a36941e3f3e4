// Package scraper implements job posting fetching, ingestion and scrape
// health recording.
package scraper

import (
	"context"
	"errors"
	"fmt"

	"jobwatch/aggregator-service/internal/model"
)

// Scraper fetches the current postings for one company from its job board.
// Implementations are registered per platform identifier; the worker looks
// them up by Company.Platform.
type Scraper interface {
	Fetch(ctx context.Context, company model.Company) ([]model.RawPosting, error)
}

// ErrorKind classifies a scrape failure for the health log.
type ErrorKind string

const (
	// KindTransient covers network and upstream availability failures;
	// these are retried on the next scheduled cycle.
	KindTransient ErrorKind = "transient"
	// KindParse covers malformed or unexpected board responses.
	KindParse ErrorKind = "parse"
	// KindNoResults means the board answered but listed no postings.
	KindNoResults ErrorKind = "no_results"
)

// ScrapeError is the structured failure an adapter reports.
type ScrapeError struct {
	Kind ErrorKind
	Err  error
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("scrape %s: %v", e.Kind, e.Err)
}

func (e *ScrapeError) Unwrap() error { return e.Err }

// Kind extracts the failure classification from err, defaulting to transient
// for errors no adapter classified (network-level failures mostly arrive that
// way).
func Kind(err error) ErrorKind {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindTransient
}

// Registry maps platform identifiers to their scraping adapters.
type Registry map[string]Scraper

// Lookup returns the adapter for a platform identifier.
func (r Registry) Lookup(platform string) (Scraper, bool) {
	s, ok := r[platform]
	return s, ok
}
