package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"jobwatch/aggregator-service/internal/model"
	"jobwatch/aggregator-service/internal/store"
)

// Store is the slice of the job store the notification stage needs.
// MarkNotified must atomically append the 'sent' record, set the notified_at
// cache and perform the automated new → seen transition.
type Store interface {
	UnnotifiedNewJobs(ctx context.Context) ([]model.DigestJob, error)
	WasNotified(ctx context.Context, jobID int64, channel string) (bool, error)
	MarkNotified(ctx context.Context, jobID int64, channel string) error
}

// Dispatcher surfaces the per-cycle digest through every registered channel.
type Dispatcher struct {
	store   Store
	senders Registry
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(store Store, senders Registry) *Dispatcher {
	return &Dispatcher{store: store, senders: senders}
}

// Summary counts one notification stage's outcomes.
type Summary struct {
	Selected int // (job, channel) pairs eligible this cycle
	Sent     int
	Skipped  int // already had a 'sent' record for the channel
	Failed   int // send failed; nothing written, re-selected next cycle
}

// Run selects eligible jobs fresh and dispatches them per channel.
//
// For every (job, channel) pair the authoritative check is the existence of a
// successful NotificationRecord; the notified_at cache only narrows the
// candidate query. The record is written strictly after the send confirms
// success; a failed send writes nothing, so the job is never swallowed into
// "already notified".
func (d *Dispatcher) Run(ctx context.Context, threshold float64) (Summary, error) {
	candidates, err := d.store.UnnotifiedNewJobs(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load notification candidates: %w", err)
	}

	digest := SelectDigest(candidates, threshold)
	if digest.Empty() {
		slog.Info("nothing to notify")
		return Summary{}, nil
	}

	slog.Info("notification stage started",
		"scored", len(digest.Scored),
		"unscored", len(digest.Unscored),
		"channels", len(d.senders),
	)

	var summary Summary
	for _, job := range digest.Jobs() {
		for channel, sender := range d.senders {
			summary.Selected++

			sent, err := d.store.WasNotified(ctx, job.JobID, channel)
			if err != nil {
				slog.Error("notification record lookup failed",
					"jobId", job.JobID, "channel", channel, "err", err)
				summary.Failed++
				continue
			}
			if sent {
				summary.Skipped++
				continue
			}

			if err := sender.Send(ctx, job); err != nil {
				slog.Warn("send failed, job stays eligible",
					"jobId", job.JobID, "channel", channel, "err", err)
				summary.Failed++
				continue
			}

			if err := d.store.MarkNotified(ctx, job.JobID, channel); err != nil {
				if errors.Is(err, store.ErrAlreadyNotified) {
					// Lost a race with a concurrent recorder; the record
					// exists, which is all the invariant asks for.
					summary.Skipped++
					continue
				}
				slog.Error("mark notified failed",
					"jobId", job.JobID, "channel", channel, "err", err)
				summary.Failed++
				continue
			}
			summary.Sent++
		}
	}

	slog.Info("notification stage complete",
		"selected", summary.Selected,
		"sent", summary.Sent,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return summary, nil
}
