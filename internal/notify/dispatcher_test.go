package notify_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"jobwatch/aggregator-service/internal/model"
	"jobwatch/aggregator-service/internal/notify"
	"jobwatch/aggregator-service/internal/store"
)

// memNotifyStore implements notify.Store with the same at-most-once contract
// as the SQL store.
type memNotifyStore struct {
	candidates []model.DigestJob
	records    map[string]bool // "jobID/channel"
	notifiedAt map[int64]time.Time
	status     map[int64]string
}

func newMemNotifyStore(candidates ...model.DigestJob) *memNotifyStore {
	st := &memNotifyStore{
		candidates: candidates,
		records:    make(map[string]bool),
		notifiedAt: make(map[int64]time.Time),
		status:     make(map[int64]string),
	}
	for _, c := range candidates {
		st.status[c.JobID] = "new"
	}
	return st
}

func key(jobID int64, channel string) string { return fmt.Sprintf("%d/%s", jobID, channel) }

func (m *memNotifyStore) UnnotifiedNewJobs(context.Context) ([]model.DigestJob, error) {
	var out []model.DigestJob
	for _, c := range m.candidates {
		if _, done := m.notifiedAt[c.JobID]; !done && m.status[c.JobID] == "new" {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memNotifyStore) WasNotified(_ context.Context, jobID int64, channel string) (bool, error) {
	return m.records[key(jobID, channel)], nil
}

func (m *memNotifyStore) MarkNotified(_ context.Context, jobID int64, channel string) error {
	k := key(jobID, channel)
	if m.records[k] {
		return store.ErrAlreadyNotified
	}
	m.records[k] = true
	if _, ok := m.notifiedAt[jobID]; !ok {
		m.notifiedAt[jobID] = time.Now()
	}
	if m.status[jobID] == "new" {
		m.status[jobID] = "seen"
	}
	return nil
}

// fakeSender records sends and fails for configured job IDs.
type fakeSender struct {
	failFor map[int64]bool
	sent    []int64
}

func (f *fakeSender) Send(_ context.Context, job model.DigestJob) error {
	if f.failFor[job.JobID] {
		return fmt.Errorf("smtp timeout")
	}
	f.sent = append(f.sent, job.JobID)
	return nil
}

func candidate(id int64, score float64) model.DigestJob {
	return model.DigestJob{JobID: id, MatchScore: &score, FirstSeenAt: time.Now(), Title: "T", CompanyName: "C"}
}

func TestDispatch_SuccessRecordsAndAdvancesStatus(t *testing.T) {
	st := newMemNotifyStore(candidate(1, 0.9))
	sender := &fakeSender{}
	d := notify.NewDispatcher(st, notify.Registry{"email": sender})

	sum, err := d.Run(context.Background(), 0.6)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Sent)
	require.Equal(t, []int64{1}, sender.sent)
	require.True(t, st.records[key(1, "email")], "successful send must leave a record")
	require.Contains(t, st.notifiedAt, int64(1))
	require.Equal(t, "seen", st.status[1], "automated new → seen on recorded dispatch")
}

func TestDispatch_FailureWritesNothing(t *testing.T) {
	st := newMemNotifyStore(candidate(1, 0.9))
	sender := &fakeSender{failFor: map[int64]bool{1: true}}
	d := notify.NewDispatcher(st, notify.Registry{"email": sender})

	sum, err := d.Run(context.Background(), 0.6)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Failed)
	require.Equal(t, 0, sum.Sent)
	require.False(t, st.records[key(1, "email")])
	require.NotContains(t, st.notifiedAt, int64(1), "notified_at must stay null on failure")
	require.Equal(t, "new", st.status[1], "status must stay new on failure")

	// Next cycle re-selects the job and delivers it.
	sender.failFor = nil
	sum, err = d.Run(context.Background(), 0.6)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Sent)
}

func TestDispatch_AtMostOncePerChannel(t *testing.T) {
	st := newMemNotifyStore(candidate(1, 0.9))
	// Existing record but stale cache: the record, not notified_at, decides.
	st.records[key(1, "email")] = true

	sender := &fakeSender{}
	d := notify.NewDispatcher(st, notify.Registry{"email": sender})

	sum, err := d.Run(context.Background(), 0.6)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Skipped)
	require.Empty(t, sender.sent, "a recorded (job, channel) pair must never be re-sent")
}

func TestDispatch_ChannelsAreIndependent(t *testing.T) {
	st := newMemNotifyStore(candidate(1, 0.9))
	email := &fakeSender{failFor: map[int64]bool{1: true}}
	push := &fakeSender{}
	d := notify.NewDispatcher(st, notify.Registry{"email": email, "push": push})

	sum, err := d.Run(context.Background(), 0.6)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Sent)
	require.Equal(t, 1, sum.Failed)
	require.False(t, st.records[key(1, "email")])
	require.True(t, st.records[key(1, "push")])

	// Once notified_at is set the job drops out of the candidate query, so
	// the email gap is surfaced only by the failure count.
	require.Equal(t, "seen", st.status[1])
}

func TestDispatch_ThresholdGatingAppliesBeforeSend(t *testing.T) {
	st := newMemNotifyStore(candidate(1, 0.59), candidate(2, 0.60))
	sender := &fakeSender{}
	d := notify.NewDispatcher(st, notify.Registry{"email": sender})

	sum, err := d.Run(context.Background(), 0.6)
	require.NoError(t, err)
	require.Equal(t, []int64{2}, sender.sent)
	require.Equal(t, 1, sum.Sent)
}

func TestDispatch_NoSendersConfigured(t *testing.T) {
	st := newMemNotifyStore(candidate(1, 0.9))
	d := notify.NewDispatcher(st, notify.Registry{})

	sum, err := d.Run(context.Background(), 0.6)
	require.NoError(t, err)
	require.Equal(t, notify.Summary{}, sum)
	require.Equal(t, "new", st.status[1], "no channel means no state change")
}
