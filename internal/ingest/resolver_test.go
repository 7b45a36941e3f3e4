package ingest_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"jobwatch/aggregator-service/internal/ingest"
	"jobwatch/aggregator-service/internal/model"
)

// memJobStore implements ingest.JobStore with the same dedup contract as the
// SQL store: unique fingerprint, unique URL, conflict-to-update fallback.
type memJobStore struct {
	nextID int64
	jobs   []*model.Job
}

func (m *memJobStore) ResolveJob(_ context.Context, job *model.Job) (bool, error) {
	for _, existing := range m.jobs {
		if existing.Fingerprint == job.Fingerprint || existing.URL == job.URL {
			existing.Title = job.Title
			existing.Description = job.Description
			existing.Location = job.Location
			existing.JobType = job.JobType
			existing.LastSeenAt = job.LastSeenAt
			job.ID = existing.ID
			return false, nil
		}
	}
	m.nextID++
	job.ID = m.nextID
	stored := *job
	m.jobs = append(m.jobs, &stored)
	return true, nil
}

func posting(title, url string) model.RawPosting {
	return model.RawPosting{Title: title, URL: url, Location: "Hong Kong"}
}

func TestIngest_TwoDistinctOneDuplicateURL(t *testing.T) {
	st := &memJobStore{}
	r := ingest.NewResolver(st)

	res, err := r.Ingest(context.Background(), 1, []model.RawPosting{
		posting("Quant Developer", "https://example.com/jobs/1"),
		posting("Trading Engineer", "https://example.com/jobs/2"),
		posting("Quantitative Developer", "https://example.com/jobs/1"), // retitled, same URL
	})
	require.NoError(t, err)

	require.Equal(t, 2, res.New)
	require.Equal(t, 1, res.Refreshed)
	require.Len(t, st.jobs, 2, "duplicate URL must never create a third row")
	require.Equal(t, "Quantitative Developer", st.jobs[0].Title,
		"URL conflict updates the existing row's content")
}

func TestIngest_SameBatchTwiceIsIdempotent(t *testing.T) {
	st := &memJobStore{}
	r := ingest.NewResolver(st)
	batch := []model.RawPosting{
		posting("Quant Developer", "https://example.com/jobs/1"),
		posting("Trading Engineer", "https://example.com/jobs/2"),
	}

	first, err := r.Ingest(context.Background(), 1, batch)
	require.NoError(t, err)
	require.Equal(t, 2, first.New)

	before := make([]time.Time, len(st.jobs))
	for i, j := range st.jobs {
		before[i] = j.LastSeenAt
	}
	time.Sleep(time.Millisecond)

	second, err := r.Ingest(context.Background(), 1, batch)
	require.NoError(t, err)
	require.Equal(t, 0, second.New)
	require.Equal(t, 2, second.Refreshed)
	require.Len(t, st.jobs, 2)
	for i, j := range st.jobs {
		require.True(t, j.LastSeenAt.After(before[i]), "re-sighting must bump last_seen_at")
	}
}

func TestIngest_SkipsPostingsWithoutURLOrTitle(t *testing.T) {
	st := &memJobStore{}
	r := ingest.NewResolver(st)

	res, err := r.Ingest(context.Background(), 1, []model.RawPosting{
		posting("Quant Developer", "https://example.com/jobs/1"),
		posting("", "https://example.com/jobs/2"),
		posting("Trading Engineer", ""),
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.New)
	require.Equal(t, 2, res.Skipped)
	require.Len(t, st.jobs, 1)
}

func TestIngest_NewJobsStartAtStatusNew(t *testing.T) {
	st := &memJobStore{}
	r := ingest.NewResolver(st)

	_, err := r.Ingest(context.Background(), 1, []model.RawPosting{
		posting("Quant Developer", "https://example.com/jobs/1"),
	})
	require.NoError(t, err)
	require.Equal(t, "new", st.jobs[0].Status)
	require.Equal(t, st.jobs[0].FirstSeenAt, st.jobs[0].LastSeenAt)
	require.NotEmpty(t, st.jobs[0].Fingerprint)
}
