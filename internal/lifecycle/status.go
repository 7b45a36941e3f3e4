// Package lifecycle defines the status state machine for job postings.
//
// Valid status graph:
//
//	new ──► seen ──► applied ──► archived
//	          ▲ │                    │
//	          │ └──────► archived ◄──┘ (any state may be archived by the user)
//	          └───────── reopen (manual only)
//
// The only automated transition is new → seen, performed exactly when a
// notification dispatch is recorded successfully. Everything else is a
// user-initiated action; the engine never regresses a status on its own.
package lifecycle

import "fmt"

// Status values mirror the job_status enum in PostgreSQL.
type Status string

const (
	StatusNew      Status = "new"
	StatusSeen     Status = "seen"
	StatusApplied  Status = "applied"
	StatusArchived Status = "archived"
)

// automatedTransitions lists (from → to) pairs the engine may perform itself.
var automatedTransitions = map[Status][]Status{
	StatusNew: {StatusSeen},
}

// manualTransitions lists (from → to) pairs a user action may perform.
// archived → seen is the administrative reopen of a terminal state.
var manualTransitions = map[Status][]Status{
	StatusNew:      {StatusSeen, StatusArchived},
	StatusSeen:     {StatusApplied, StatusArchived},
	StatusApplied:  {StatusArchived},
	StatusArchived: {StatusSeen},
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusNew, StatusSeen, StatusApplied, StatusArchived:
		return st, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// AutomatedAllowed returns true when the engine itself may move from → to.
func AutomatedAllowed(from, to Status) bool {
	return contains(automatedTransitions[from], to)
}

// ManualAllowed returns true when a user action may move from → to.
func ManualAllowed(from, to Status) bool {
	return contains(manualTransitions[from], to)
}

func contains(allowed []Status, to Status) bool {
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
