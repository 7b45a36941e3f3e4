package store

import "fmt"

// Sentinel errors surfaced to callers.
var (
	// ErrProfileMissing means the singleton profile row does not exist.
	// This is a contract violation: the cycle must abort, not degrade.
	ErrProfileMissing = fmt.Errorf("profile row missing (id = 1)")

	// ErrJobNotFound is returned when a job id does not exist.
	ErrJobNotFound = fmt.Errorf("job not found")

	// ErrAlreadyNotified is returned when a 'sent' notification record
	// already exists for the (job, channel) pair.
	ErrAlreadyNotified = fmt.Errorf("job already notified on this channel")
)

// TransitionError reports a status change rejected by the state machine.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s → %s is not allowed", e.From, e.To)
}
