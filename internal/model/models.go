// Package model defines shared data structures for the aggregator service.
package model

import (
	"encoding/json"
	"time"
)

// Company is a monitored employer. Deleting a company cascades to its jobs
// and scrape logs (enforced in the schema).
type Company struct {
	ID            int64
	Name          string
	CareerURL     string
	Platform      string // scraper registry key, e.g. "greenhouse"
	PlatformToken string // board token / slug used by the adapter
	IsActive      bool
	LastScrapedAt *time.Time
}

// Job is a single deduplicated posting. Fingerprint and URL are each unique
// across all jobs; a re-scraped posting refreshes the existing row.
type Job struct {
	ID           int64
	CompanyID    int64
	Fingerprint  string
	Title        string
	URL          string
	Description  string
	Requirements string
	Location     string
	JobType      string
	MatchScore   *float64 // nil = unscored, candidate for the next cycle
	MatchReasons []string
	Status       string
	NotifiedAt   *time.Time
	PostedDate   *time.Time
	FirstSeenAt  time.Time
	LastSeenAt   time.Time

	// CompanyName is populated by joined queries, not a jobs column.
	CompanyName string
}

// Profile is the singleton user profile (row id = 1, enforced in the schema).
type Profile struct {
	CVText         string
	Skills         []string
	Preferences    json.RawMessage
	Embedding      []byte
	MatchThreshold float64
	UpdatedAt      time.Time
}

// ScrapeLog is one append-only scrape attempt record. Never mutated.
type ScrapeLog struct {
	ID           int64
	CompanyID    int64
	Outcome      string // success, no_jobs, failed
	JobsFound    int
	NewJobs      int
	ErrorMessage string
	Duration     time.Duration
	ScrapedAt    time.Time
}

// Scrape log outcomes.
const (
	ScrapeSuccess = "success"
	ScrapeNoJobs  = "no_jobs"
	ScrapeFailed  = "failed"
)

// NotificationRecord is one append-only dispatch record. A 'sent' row for
// (job, channel) is the source of truth preventing re-send; Job.NotifiedAt is
// only a cache of it.
type NotificationRecord struct {
	ID      int64
	JobID   int64
	Channel string
	Outcome string
	SentAt  time.Time
}

// NotificationSent is the only outcome the engine writes; failed dispatches
// leave no record so the job re-selects next cycle.
const NotificationSent = "sent"

// RawPosting is a normalised posting produced by a scraping adapter, before
// dedup resolution.
type RawPosting struct {
	Title       string
	URL         string
	Description string
	Location    string
	JobType     string
	PostedDate  *time.Time
}

// DigestJob is a selection-view row: a job joined with its company name, as
// handed to notification senders.
type DigestJob struct {
	JobID        int64
	CompanyName  string
	Title        string
	URL          string
	Location     string
	MatchScore   *float64
	MatchReasons []string
	FirstSeenAt  time.Time
}

// FailingScraper is the derived health view row: a company whose most recent
// scrape log has outcome failed.
type FailingScraper struct {
	CompanyName  string    `json:"companyName"`
	CareerURL    string    `json:"careerUrl"`
	ErrorMessage string    `json:"errorMessage"`
	FailedAt     time.Time `json:"failedAt"`
}

// Stats summarises the store at the end of a cycle.
type Stats struct {
	ActiveCompanies int `json:"activeCompanies"`
	NewJobs         int `json:"newJobs"`
	UnscoredJobs    int `json:"unscoredJobs"`
	MatchingJobs    int `json:"matchingJobs"`
}
