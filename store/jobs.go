package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/syncwise/crmsync/common"
)

// JobTypeContactSync is the job_type recorded for contact synchronization
// runs.
const JobTypeContactSync = "contact_sync"

// Job statuses. A job is created running and finalized exactly once as
// completed or failed.
const (
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job is one row of the sync run ledger.
type Job struct {
	ID             string
	JobType        string
	Status         string
	RecordsFetched int
	RecordsCreated int
	RecordsUpdated int
	RecordsSkipped int
	Errors         int
	ErrorMessage   string
	StartedAt      time.Time
	CompletedAt    *time.Time
	DurationMS     int64
}

// CreateJob inserts a running ledger row and returns its identifier.
func (db *DB) CreateJob(ctx context.Context, jobType string) (string, error) {
	id := uuid.NewString()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO sync_jobs (id, job_type, status, started_at)
		VALUES (?, ?, ?, ?)`,
		id, jobType, JobStatusRunning, time.Now().UTC().Format(common.TimeLayout))
	if err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}

	return id, nil
}

// CompleteJob finalizes a ledger row with its terminal status, counters and
// duration. The duration is measured from the stored started_at so it
// reflects the whole run, not the caller's bookkeeping.
func (db *DB) CompleteJob(ctx context.Context, id, status string, counts Counts, errorMessage string) error {
	job, err := db.GetJob(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	durationMS := now.Sub(job.StartedAt).Milliseconds()

	_, err = db.conn.ExecContext(ctx, `
		UPDATE sync_jobs
		SET status = ?,
		    records_fetched = ?,
		    records_created = ?,
		    records_updated = ?,
		    records_skipped = ?,
		    errors = ?,
		    error_message = ?,
		    completed_at = ?,
		    duration_ms = ?
		WHERE id = ?`,
		status, counts.Fetched, counts.Created, counts.Updated, counts.Skipped,
		counts.Errors, nullIfEmpty(errorMessage), now.Format(common.TimeLayout),
		durationMS, id)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	return nil
}

// GetJob returns one ledger row by identifier.
func (db *DB) GetJob(ctx context.Context, id string) (Job, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, job_type, status, records_fetched, records_created,
		       records_updated, records_skipped, errors, error_message,
		       started_at, completed_at, duration_ms
		FROM sync_jobs WHERE id = ?`, id)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return Job{}, fmt.Errorf("job not found: %s", id)
	}

	return job, err
}

// RecentJobs returns up to limit ledger rows for the given job type, most
// recent first.
func (db *DB) RecentJobs(ctx context.Context, jobType string, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, job_type, status, records_fetched, records_created,
		       records_updated, records_skipped, errors, error_message,
		       started_at, completed_at, duration_ms
		FROM sync_jobs
		WHERE job_type = ?
		ORDER BY started_at DESC
		LIMIT ?`, jobType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job

	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}

		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// JobSummary aggregates the ledger for one job type. Running rows count
// toward Total but not toward the success rate denominator.
type JobSummary struct {
	Total       int
	Completed   int
	Failed      int
	SuccessRate float64
	LastSuccess *time.Time
}

// Summarize computes a JobSummary across every ledger row of the given type.
func (db *DB) Summarize(ctx context.Context, jobType string) (JobSummary, error) {
	var summary JobSummary

	row := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM sync_jobs WHERE job_type = ?`,
		JobStatusCompleted, JobStatusFailed, jobType)

	if err := row.Scan(&summary.Total, &summary.Completed, &summary.Failed); err != nil {
		return JobSummary{}, fmt.Errorf("failed to summarize jobs: %w", err)
	}

	if finished := summary.Completed + summary.Failed; finished > 0 {
		summary.SuccessRate = float64(summary.Completed) / float64(finished)
	}

	var last sql.NullString

	err := db.conn.QueryRowContext(ctx, `
		SELECT completed_at FROM sync_jobs
		WHERE job_type = ? AND status = ?
		ORDER BY completed_at DESC LIMIT 1`,
		jobType, JobStatusCompleted).Scan(&last)
	if err != nil && err != sql.ErrNoRows {
		return JobSummary{}, fmt.Errorf("failed to query last success: %w", err)
	}

	summary.LastSuccess = nullStringToTime(last, common.TimeLayout)

	return summary, nil
}

func scanJob(row rowScanner) (Job, error) {
	var (
		job                   Job
		errorMessage, started sql.NullString
		completed             sql.NullString
		durationMS            sql.NullInt64
	)

	err := row.Scan(&job.ID, &job.JobType, &job.Status, &job.RecordsFetched,
		&job.RecordsCreated, &job.RecordsUpdated, &job.RecordsSkipped,
		&job.Errors, &errorMessage, &started, &completed, &durationMS)
	if err != nil {
		return Job{}, err
	}

	job.ErrorMessage = errorMessage.String

	if t := nullStringToTime(started, common.TimeLayout); t != nil {
		job.StartedAt = *t
	}

	job.CompletedAt = nullStringToTime(completed, common.TimeLayout)
	job.DurationMS = durationMS.Int64

	return job, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
