// Package notify selects postings eligible for alerting and guarantees each
// is surfaced at most once per channel.
package notify

import (
	"sort"

	"jobwatch/aggregator-service/internal/model"
)

// Digest is the batch of postings surfaced to the user in one cycle.
// Scored entries lead, best and freshest first; unscored entries trail so a
// broken or disabled scorer never makes a posting silently disappear.
type Digest struct {
	Scored   []model.DigestJob
	Unscored []model.DigestJob
}

// Jobs returns the digest in dispatch order: scored first, unscored tail.
func (d Digest) Jobs() []model.DigestJob {
	out := make([]model.DigestJob, 0, len(d.Scored)+len(d.Unscored))
	out = append(out, d.Scored...)
	return append(out, d.Unscored...)
}

// Empty reports whether nothing was selected.
func (d Digest) Empty() bool {
	return len(d.Scored) == 0 && len(d.Unscored) == 0
}

// SelectDigest applies threshold gating to notification candidates (jobs at
// status new with no notified_at, as fetched fresh from the store each
// cycle). A scored job is selected iff its score meets the profile threshold;
// an unscored job always lands in the secondary list. Scored selection is
// ordered by score descending, ties broken by first_seen_at descending.
func SelectDigest(candidates []model.DigestJob, threshold float64) Digest {
	var d Digest
	for _, job := range candidates {
		switch {
		case job.MatchScore == nil:
			d.Unscored = append(d.Unscored, job)
		case *job.MatchScore >= threshold:
			d.Scored = append(d.Scored, job)
		}
	}

	sort.SliceStable(d.Scored, func(i, j int) bool {
		if *d.Scored[i].MatchScore != *d.Scored[j].MatchScore {
			return *d.Scored[i].MatchScore > *d.Scored[j].MatchScore
		}
		return d.Scored[i].FirstSeenAt.After(d.Scored[j].FirstSeenAt)
	})
	sort.SliceStable(d.Unscored, func(i, j int) bool {
		return d.Unscored[i].FirstSeenAt.After(d.Unscored[j].FirstSeenAt)
	})
	return d
}
