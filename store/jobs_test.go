package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJobLifecycle(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	id, err := db.CreateJob(ctx, JobTypeContactSync)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job, err := db.GetJob(ctx, id)
	require.NoError(t, err)
	require.Equal(t, JobStatusRunning, job.Status)
	require.Equal(t, JobTypeContactSync, job.JobType)
	require.False(t, job.StartedAt.IsZero())
	require.Nil(t, job.CompletedAt)

	counts := Counts{Fetched: 10, Created: 4, Updated: 5, Skipped: 1}

	require.NoError(t, db.CompleteJob(ctx, id, JobStatusCompleted, counts, ""))

	job, err = db.GetJob(ctx, id)
	require.NoError(t, err)
	require.Equal(t, JobStatusCompleted, job.Status)
	require.Equal(t, 10, job.RecordsFetched)
	require.Equal(t, 4, job.RecordsCreated)
	require.Equal(t, 5, job.RecordsUpdated)
	require.Equal(t, 1, job.RecordsSkipped)
	require.NotNil(t, job.CompletedAt)
	require.Empty(t, job.ErrorMessage)
}

func TestCompleteJobFailed(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	id, err := db.CreateJob(ctx, JobTypeContactSync)
	require.NoError(t, err)

	require.NoError(t, db.CompleteJob(ctx, id, JobStatusFailed, Counts{Errors: 3}, "remote unreachable"))

	job, err := db.GetJob(ctx, id)
	require.NoError(t, err)
	require.Equal(t, JobStatusFailed, job.Status)
	require.Equal(t, 3, job.Errors)
	require.Equal(t, "remote unreachable", job.ErrorMessage)
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)

	_, err := db.GetJob(context.Background(), "missing")
	require.Error(t, err)
}

func TestRecentJobsAndSummary(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id, err := db.CreateJob(ctx, JobTypeContactSync)
		require.NoError(t, err)

		status := JobStatusCompleted
		if i == 2 {
			status = JobStatusFailed
		}

		require.NoError(t, db.CompleteJob(ctx, id, status, Counts{}, ""))
	}

	// a still-running job counts toward total but not the success rate
	_, err := db.CreateJob(ctx, JobTypeContactSync)
	require.NoError(t, err)

	jobs, err := db.RecentJobs(ctx, JobTypeContactSync, 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	summary, err := db.Summarize(ctx, JobTypeContactSync)
	require.NoError(t, err)
	require.Equal(t, 4, summary.Total)
	require.Equal(t, 2, summary.Completed)
	require.Equal(t, 1, summary.Failed)
	require.InDelta(t, 2.0/3.0, summary.SuccessRate, 0.0001)
	require.NotNil(t, summary.LastSuccess)

	empty, err := db.Summarize(ctx, "other_type")
	require.NoError(t, err)
	require.Zero(t, empty.Total)
	require.Zero(t, empty.SuccessRate)
	require.Nil(t, empty.LastSuccess)
}
