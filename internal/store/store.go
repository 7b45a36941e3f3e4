// Package store contains the persistence layer for the aggregator service.
// It is transport-agnostic: the scrape worker, scoring orchestrator and
// notification dispatcher all consume it through narrow interfaces.
//
// Every query is parameterized. Multi-step writes use a single statement with
// CTEs so each logical operation is atomic from the caller's perspective.
// The two audit tables (scrape_logs, notification_records) are insert-only:
// no update or delete methods exist for them at all.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobwatch/aggregator-service/internal/lifecycle"
	"jobwatch/aggregator-service/internal/model"
)

// uniqueViolation is the PostgreSQL error code for unique-constraint conflicts.
const uniqueViolation = "23505"

// Store encapsulates all database operations.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store over the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ─── Companies ───────────────────────────────────────────────────────────────

// ActiveCompanies returns all companies with is_active = true, ordered by name.
func (s *Store) ActiveCompanies(ctx context.Context) ([]model.Company, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, career_url, platform, platform_token, is_active, last_scraped_at
		 FROM companies
		 WHERE is_active = true
		 ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("query companies: %w", err)
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		var c model.Company
		if err := rows.Scan(
			&c.ID, &c.Name, &c.CareerURL, &c.Platform, &c.PlatformToken,
			&c.IsActive, &c.LastScrapedAt,
		); err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// CreateCompany inserts a company to monitor, or refreshes its scrape
// coordinates when a company with the same name already exists.
func (s *Store) CreateCompany(ctx context.Context, c *model.Company) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO companies (name, career_url, platform, platform_token, is_active)
		 VALUES ($1, $2, $3, $4, true)
		 ON CONFLICT (name) DO UPDATE SET
		   career_url     = EXCLUDED.career_url,
		   platform       = EXCLUDED.platform,
		   platform_token = EXCLUDED.platform_token
		 RETURNING id`,
		c.Name, c.CareerURL, c.Platform, c.PlatformToken,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("createCompany: %w", err)
	}
	return nil
}

// DeleteCompany removes a company. The schema cascades the delete to its jobs
// and scrape logs.
func (s *Store) DeleteCompany(ctx context.Context, companyID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM companies WHERE id = $1`, companyID)
	if err != nil {
		return fmt.Errorf("deleteCompany: %w", err)
	}
	return nil
}

// TouchCompanyScraped updates last_scraped_at after a scrape attempt.
func (s *Store) TouchCompanyScraped(ctx context.Context, companyID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE companies SET last_scraped_at = NOW() WHERE id = $1`, companyID)
	if err != nil {
		return fmt.Errorf("touchCompanyScraped: %w", err)
	}
	return nil
}

// ─── Jobs: dedup resolution ─────────────────────────────────────────────────

// ResolveJob inserts a posting, or refreshes the existing row when its
// fingerprint is already known. A URL-uniqueness conflict (same URL, title
// changed at the source) is converted into an update of the existing row:
// the URL is the stronger identity signal and the stored fingerprint stays as
// first computed. Never creates a duplicate row; returns true only for a
// genuinely new posting.
func (s *Store) ResolveJob(ctx context.Context, job *model.Job) (bool, error) {
	var created bool
	err := s.pool.QueryRow(ctx,
		`INSERT INTO jobs (company_id, fingerprint, title, url, description,
		                   requirements, location, job_type, status, posted_date,
		                   first_seen_at, last_seen_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'new', $9, NOW(), NOW())
		 ON CONFLICT (fingerprint) DO UPDATE SET
		   title        = EXCLUDED.title,
		   description  = EXCLUDED.description,
		   requirements = EXCLUDED.requirements,
		   location     = EXCLUDED.location,
		   job_type     = EXCLUDED.job_type,
		   posted_date  = COALESCE(EXCLUDED.posted_date, jobs.posted_date),
		   last_seen_at = NOW()
		 RETURNING id, (xmax = 0)`,
		job.CompanyID, job.Fingerprint, job.Title, job.URL, job.Description,
		job.Requirements, job.Location, job.JobType, job.PostedDate,
	).Scan(&job.ID, &created)
	if err == nil {
		return created, nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false, fmt.Errorf("resolveJob insert: %w", err)
	}

	// Same URL, different fingerprint: update the existing row in place.
	err = s.pool.QueryRow(ctx,
		`UPDATE jobs SET
		   title        = $2,
		   description  = $3,
		   requirements = $4,
		   location     = $5,
		   job_type     = $6,
		   posted_date  = COALESCE($7, posted_date),
		   last_seen_at = NOW()
		 WHERE url = $1
		 RETURNING id`,
		job.URL, job.Title, job.Description, job.Requirements,
		job.Location, job.JobType, job.PostedDate,
	).Scan(&job.ID)
	if err != nil {
		return false, fmt.Errorf("resolveJob url fallback: %w", err)
	}
	return false, nil
}

// ─── Jobs: scoring ──────────────────────────────────────────────────────────

// UnscoredJobs returns every job still awaiting a match score, newest first,
// with the company name joined in for prompt construction.
func (s *Store) UnscoredJobs(ctx context.Context) ([]model.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT j.id, j.company_id, j.fingerprint, j.title, j.url, j.description,
		        j.requirements, j.location, j.job_type, j.status,
		        j.posted_date, j.first_seen_at, j.last_seen_at, c.name
		 FROM jobs j
		 JOIN companies c ON j.company_id = c.id
		 WHERE j.match_score IS NULL
		 ORDER BY j.first_seen_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query unscored jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var j model.Job
		if err := rows.Scan(
			&j.ID, &j.CompanyID, &j.Fingerprint, &j.Title, &j.URL, &j.Description,
			&j.Requirements, &j.Location, &j.JobType, &j.Status,
			&j.PostedDate, &j.FirstSeenAt, &j.LastSeenAt, &j.CompanyName,
		); err != nil {
			return nil, fmt.Errorf("scan unscored job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// UpdateJobMatch persists a validated (score, reasons) pair. The WHERE guard
// keeps scoring monotonic: a job that already carries a score is never
// touched, so re-running a cycle can only fill gaps.
func (s *Store) UpdateJobMatch(ctx context.Context, jobID int64, score float64, reasons []string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs
		 SET match_score = $2, match_reasons = $3
		 WHERE id = $1 AND match_score IS NULL`,
		jobID, score, reasons,
	)
	if err != nil {
		return fmt.Errorf("updateJobMatch: %w", err)
	}
	return nil
}

// ─── Jobs: status ───────────────────────────────────────────────────────────

// AdvanceStatus moves a job to a new lifecycle status. Automated callers may
// only perform transitions the state machine marks as automated; manual=true
// unlocks the user-initiated set (including the archived → seen reopen).
func (s *Store) AdvanceStatus(ctx context.Context, jobID int64, to lifecycle.Status, manual bool) error {
	var currentStr string
	err := s.pool.QueryRow(ctx,
		`SELECT status FROM jobs WHERE id = $1`, jobID,
	).Scan(&currentStr)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("advanceStatus fetch: %w", err)
	}

	current, err := lifecycle.ParseStatus(currentStr)
	if err != nil {
		return fmt.Errorf("advanceStatus: %w", err)
	}

	allowed := lifecycle.AutomatedAllowed(current, to)
	if manual {
		allowed = lifecycle.ManualAllowed(current, to)
	}
	if !allowed {
		return &TransitionError{From: string(current), To: string(to)}
	}

	// Guard on the status read above so a concurrent change cannot slip a
	// transition the state machine never validated.
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2 WHERE id = $1 AND status = $3`,
		jobID, string(to), string(current),
	)
	if err != nil {
		return fmt.Errorf("advanceStatus update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &TransitionError{From: string(current), To: string(to)}
	}
	return nil
}

// ─── Jobs: notification selection & tracking ────────────────────────────────

// UnnotifiedNewJobs returns notification candidates: every job still at
// status new with no notified_at, scored rows first by score descending then
// recency, unscored rows last. Threshold gating happens in the notify package
// against the profile.
func (s *Store) UnnotifiedNewJobs(ctx context.Context) ([]model.DigestJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT j.id, c.name, j.title, j.url, j.location,
		        j.match_score, j.match_reasons, j.first_seen_at
		 FROM jobs j
		 JOIN companies c ON j.company_id = c.id
		 WHERE j.status = 'new' AND j.notified_at IS NULL
		 ORDER BY j.match_score DESC NULLS LAST, j.first_seen_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query unnotified jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.DigestJob
	for rows.Next() {
		var j model.DigestJob
		if err := rows.Scan(
			&j.JobID, &j.CompanyName, &j.Title, &j.URL, &j.Location,
			&j.MatchScore, &j.MatchReasons, &j.FirstSeenAt,
		); err != nil {
			return nil, fmt.Errorf("scan unnotified job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// WasNotified reports whether a 'sent' notification record exists for the
// (job, channel) pair. This, not notified_at, is the authoritative check.
func (s *Store) WasNotified(ctx context.Context, jobID int64, channel string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM notification_records
		   WHERE job_id = $1 AND channel = $2 AND outcome = 'sent'
		 )`,
		jobID, channel,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("wasNotified: %w", err)
	}
	return exists, nil
}

// MarkNotified records a confirmed dispatch in one atomic statement: append
// the 'sent' notification record, set notified_at if not already set, and
// perform the automated new → seen transition. A duplicate (job, channel)
// record trips the partial unique index and returns ErrAlreadyNotified.
func (s *Store) MarkNotified(ctx context.Context, jobID int64, channel string) error {
	tag, err := s.pool.Exec(ctx,
		`WITH rec AS (
		   INSERT INTO notification_records (job_id, channel, outcome)
		   VALUES ($1, $2, 'sent')
		   RETURNING job_id
		 )
		 UPDATE jobs j
		 SET notified_at = COALESCE(j.notified_at, NOW()),
		     status      = CASE WHEN j.status = 'new' THEN 'seen' ELSE j.status END
		 FROM rec
		 WHERE j.id = rec.job_id`,
		jobID, channel,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadyNotified
		}
		return fmt.Errorf("markNotified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// ─── Profile (singleton) ────────────────────────────────────────────────────

// GetProfile reads the singleton profile. A missing row is a contract
// violation (ErrProfileMissing) that aborts the cycle.
func (s *Store) GetProfile(ctx context.Context) (*model.Profile, error) {
	var p model.Profile
	err := s.pool.QueryRow(ctx,
		`SELECT cv_text, skills, preferences, embedding, match_threshold, updated_at
		 FROM profile WHERE id = 1`,
	).Scan(&p.CVText, &p.Skills, &p.Preferences, &p.Embedding, &p.MatchThreshold, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileMissing
	}
	if err != nil {
		return nil, fmt.Errorf("getProfile: %w", err)
	}
	return &p, nil
}

// UpdateProfile replaces the singleton profile contents. The fixed id = 1
// (backed by a CHECK constraint) is what enforces the singleton; there is no
// code path that can create a second profile.
func (s *Store) UpdateProfile(ctx context.Context, p *model.Profile) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE profile
		 SET cv_text = $1, skills = $2, preferences = $3, embedding = $4,
		     match_threshold = $5, updated_at = NOW()
		 WHERE id = 1`,
		p.CVText, p.Skills, p.Preferences, p.Embedding, p.MatchThreshold,
	)
	if err != nil {
		return fmt.Errorf("updateProfile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileMissing
	}
	return nil
}

// ─── Scrape health ──────────────────────────────────────────────────────────

// AppendScrapeLog appends one scrape attempt record. Insert-only.
func (s *Store) AppendScrapeLog(ctx context.Context, log *model.ScrapeLog) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scrape_logs
		   (company_id, outcome, jobs_found, new_jobs_count, error_message, duration_seconds)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)`,
		log.CompanyID, log.Outcome, log.JobsFound, log.NewJobs,
		log.ErrorMessage, log.Duration.Seconds(),
	)
	if err != nil {
		return fmt.Errorf("appendScrapeLog: %w", err)
	}
	return nil
}

// FailingScrapers derives the currently-failing view from the append-only
// log: for each company, its single most recent log, kept only when that log
// has outcome failed. Recomputed on every read; no mutable state.
func (s *Store) FailingScrapers(ctx context.Context) ([]model.FailingScraper, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.name, c.career_url, COALESCE(sl.error_message, ''), sl.scraped_at
		 FROM companies c
		 JOIN scrape_logs sl ON sl.company_id = c.id
		 WHERE sl.id IN (
		   SELECT MAX(id) FROM scrape_logs GROUP BY company_id
		 )
		 AND sl.outcome = 'failed'
		 ORDER BY sl.scraped_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query failing scrapers: %w", err)
	}
	defer rows.Close()

	var failing []model.FailingScraper
	for rows.Next() {
		var f model.FailingScraper
		if err := rows.Scan(&f.CompanyName, &f.CareerURL, &f.ErrorMessage, &f.FailedAt); err != nil {
			return nil, fmt.Errorf("scan failing scraper: %w", err)
		}
		failing = append(failing, f)
	}
	return failing, rows.Err()
}

// ─── Stats ──────────────────────────────────────────────────────────────────

// Stats returns the cycle-summary counters.
func (s *Store) Stats(ctx context.Context) (model.Stats, error) {
	var st model.Stats
	err := s.pool.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM companies WHERE is_active = true),
		   (SELECT COUNT(*) FROM jobs WHERE status = 'new'),
		   (SELECT COUNT(*) FROM jobs WHERE match_score IS NULL),
		   (SELECT COUNT(*) FROM jobs j, profile p
		    WHERE p.id = 1 AND j.status = 'new' AND j.match_score >= p.match_threshold)`,
	).Scan(&st.ActiveCompanies, &st.NewJobs, &st.UnscoredJobs, &st.MatchingJobs)
	if err != nil {
		return model.Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}
