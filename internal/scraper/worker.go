package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"jobwatch/aggregator-service/internal/ingest"
	"jobwatch/aggregator-service/internal/model"
)

// Store is the slice of the job store the scrape stage needs.
type Store interface {
	ActiveCompanies(ctx context.Context) ([]model.Company, error)
	TouchCompanyScraped(ctx context.Context, companyID int64) error
	AppendScrapeLog(ctx context.Context, log *model.ScrapeLog) error
}

// Ingestor resolves raw postings into deduplicated job rows.
type Ingestor interface {
	Ingest(ctx context.Context, companyID int64, postings []model.RawPosting) (ingest.Result, error)
}

// Worker runs the scrape stage of a cycle: every active company is fetched
// through its registered adapter, ingested, and health-logged. Companies only
// touch their own jobs, so they run concurrently up to the configured limit;
// the store's uniqueness constraints hold underneath.
type Worker struct {
	store       Store
	ingestor    Ingestor
	registry    Registry
	concurrency int
}

// NewWorker constructs a Worker. concurrency < 1 falls back to serial.
func NewWorker(store Store, ingestor Ingestor, registry Registry, concurrency int) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{store: store, ingestor: ingestor, registry: registry, concurrency: concurrency}
}

// Totals summarises one scrape stage across all companies.
type Totals struct {
	Companies int
	Found     int
	New       int
	Refreshed int
	Failed    int
}

// RunAll scrapes every active company. Per-company failures are logged and
// recorded, never fatal to the stage.
func (w *Worker) RunAll(ctx context.Context) (Totals, error) {
	companies, err := w.store.ActiveCompanies(ctx)
	if err != nil {
		return Totals{}, fmt.Errorf("load active companies: %w", err)
	}
	if len(companies) == 0 {
		slog.Info("no active companies, nothing to scrape")
		return Totals{}, nil
	}

	slog.Info("scrape stage started", "companies", len(companies), "concurrency", w.concurrency)

	results := make([]companyResult, len(companies))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for i, company := range companies {
		i, company := i, company
		g.Go(func() error {
			results[i] = w.scrapeCompany(gctx, company)
			return nil
		})
	}
	// Workers only record, never return errors; Wait is for completion.
	_ = g.Wait()

	var totals Totals
	totals.Companies = len(companies)
	for _, r := range results {
		totals.Found += r.found
		totals.New += r.ingested.New
		totals.Refreshed += r.ingested.Refreshed
		if r.failed {
			totals.Failed++
		}
	}

	slog.Info("scrape stage complete",
		"companies", totals.Companies,
		"found", totals.Found,
		"new", totals.New,
		"refreshed", totals.Refreshed,
		"failed", totals.Failed,
	)
	return totals, nil
}

type companyResult struct {
	found    int
	ingested ingest.Result
	failed   bool
}

// scrapeCompany fetches and ingests one company's board, then appends exactly
// one scrape log row for the attempt.
func (w *Worker) scrapeCompany(ctx context.Context, company model.Company) companyResult {
	start := time.Now()

	adapter, ok := w.registry.Lookup(company.Platform)
	if !ok {
		slog.Warn("no adapter for platform, skipping",
			"company", company.Name, "platform", company.Platform)
		w.appendLog(ctx, company.ID, model.ScrapeLog{
			Outcome:      model.ScrapeFailed,
			ErrorMessage: fmt.Sprintf("no adapter registered for platform %q", company.Platform),
			Duration:     time.Since(start),
		})
		return companyResult{failed: true}
	}

	postings, err := adapter.Fetch(ctx, company)
	if err != nil {
		slog.Warn("scrape failed",
			"company", company.Name, "kind", string(Kind(err)), "err", err)
		w.appendLog(ctx, company.ID, model.ScrapeLog{
			Outcome:      model.ScrapeFailed,
			ErrorMessage: err.Error(),
			Duration:     time.Since(start),
		})
		return companyResult{failed: true}
	}

	w.touch(ctx, company)

	if len(postings) == 0 {
		slog.Info("no postings found", "company", company.Name)
		w.appendLog(ctx, company.ID, model.ScrapeLog{
			Outcome:  model.ScrapeNoJobs,
			Duration: time.Since(start),
		})
		return companyResult{}
	}

	res, err := w.ingestor.Ingest(ctx, company.ID, postings)
	if err != nil {
		slog.Error("ingest failed", "company", company.Name, "err", err)
		w.appendLog(ctx, company.ID, model.ScrapeLog{
			Outcome:      model.ScrapeFailed,
			JobsFound:    len(postings),
			ErrorMessage: err.Error(),
			Duration:     time.Since(start),
		})
		return companyResult{found: len(postings), failed: true}
	}

	slog.Info("company scraped",
		"company", company.Name,
		"found", len(postings),
		"new", res.New,
		"refreshed", res.Refreshed,
	)
	w.appendLog(ctx, company.ID, model.ScrapeLog{
		Outcome:   model.ScrapeSuccess,
		JobsFound: len(postings),
		NewJobs:   res.New,
		Duration:  time.Since(start),
	})
	return companyResult{found: len(postings), ingested: res}
}

func (w *Worker) appendLog(ctx context.Context, companyID int64, log model.ScrapeLog) {
	log.CompanyID = companyID
	if err := w.store.AppendScrapeLog(ctx, &log); err != nil {
		slog.Error("append scrape log failed", "companyId", companyID, "err", err)
	}
}

func (w *Worker) touch(ctx context.Context, company model.Company) {
	if err := w.store.TouchCompanyScraped(ctx, company.ID); err != nil {
		slog.Error("touch company failed", "company", company.Name, "err", err)
	}
}
