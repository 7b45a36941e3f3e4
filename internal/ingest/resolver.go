package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"jobwatch/aggregator-service/internal/lifecycle"
	"jobwatch/aggregator-service/internal/model"
)

// JobStore is the slice of the job store the resolver needs. ResolveJob must
// guarantee exactly one row per logical posting: refresh on fingerprint match,
// convert a URL-uniqueness conflict into an update, insert otherwise. It
// returns true when a new row was created.
type JobStore interface {
	ResolveJob(ctx context.Context, job *model.Job) (created bool, err error)
}

// Result summarises one ingestion run for a single company.
type Result struct {
	New       int
	Refreshed int
	Skipped   int // postings dropped before resolution (missing URL or title)
}

// Resolver turns raw scraped postings into deduplicated job rows.
type Resolver struct {
	store JobStore
}

// NewResolver constructs a Resolver over the given store.
func NewResolver(store JobStore) *Resolver {
	return &Resolver{store: store}
}

// Ingest resolves every raw posting for one company against the store.
// Notification state is never touched here. Individual posting failures are
// logged and skipped so one bad row cannot sink the company's whole batch.
func (r *Resolver) Ingest(ctx context.Context, companyID int64, postings []model.RawPosting) (Result, error) {
	var res Result
	now := time.Now().UTC()

	for _, p := range postings {
		if p.URL == "" || p.Title == "" {
			res.Skipped++
			continue
		}

		job := &model.Job{
			CompanyID:   companyID,
			Fingerprint: Fingerprint(companyID, p.Title, p.URL),
			Title:       p.Title,
			URL:         p.URL,
			Description: p.Description,
			Location:    p.Location,
			JobType:     p.JobType,
			Status:      string(lifecycle.StatusNew),
			PostedDate:  p.PostedDate,
			FirstSeenAt: now,
			LastSeenAt:  now,
		}

		created, err := r.store.ResolveJob(ctx, job)
		if err != nil {
			slog.Error("resolve job failed", "companyId", companyID, "url", p.URL, "err", err)
			res.Skipped++
			continue
		}
		if created {
			res.New++
		} else {
			res.Refreshed++
		}
	}

	if res.Skipped > 0 && res.New == 0 && res.Refreshed == 0 && len(postings) > 0 {
		return res, fmt.Errorf("all %d postings failed to resolve", len(postings))
	}
	return res, nil
}
