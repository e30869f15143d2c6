package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/site-signals-crawler/internal/crawler"
)

// JobStore implements crawler.JobStore using Postgres.
type JobStore struct {
	db  DB
	now func() time.Time
}

// NewJobStore constructs a JobStore from an existing pool.
func NewJobStore(db DB) (*JobStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// CreateJob inserts a new job row.
func (s *JobStore) CreateJob(ctx context.Context, job crawler.Job) error {
	params, err := json.Marshal(job.Parameters)
	if err != nil {
		return fmt.Errorf("marshal job parameters: %w", err)
	}
	counters, err := json.Marshal(job.Counters)
	if err != nil {
		return fmt.Errorf("marshal job counters: %w", err)
	}
	query := `
		INSERT INTO scan_jobs (id, status, submitted_at, error_text, parameters, counters)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	_, err = s.db.Exec(ctx, query, job.ID, string(job.Status), job.Submitted, job.ErrorText, params, counters)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJobStatus moves a job to a new status and stores its counters. A
// canceled job keeps its status and error text.
func (s *JobStore) UpdateJobStatus(
	ctx context.Context,
	jobID string,
	status crawler.JobStatus,
	errText string,
	counters crawler.JobCounters,
) error {
	countersJSON, err := json.Marshal(counters)
	if err != nil {
		return fmt.Errorf("marshal job counters: %w", err)
	}
	query := `
		UPDATE scan_jobs
		SET status = CASE WHEN status = 'canceled' THEN status ELSE $2 END,
			error_text = CASE WHEN status = 'canceled' THEN error_text ELSE $3 END,
			counters = $4,
			started_at = CASE WHEN $2 = 'running' AND started_at IS NULL THEN $5 ELSE started_at END,
			finished_at = CASE WHEN $6 AND finished_at IS NULL THEN $5 ELSE finished_at END
		WHERE id = $1;
	`
	tag, err := s.db.Exec(ctx, query, jobID, string(status), errText, countersJSON, s.now(), status.Terminal())
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", jobID, crawler.ErrNotFound)
	}
	return nil
}

// RecordDomain stores the outcome of one domain of a job.
func (s *JobStore) RecordDomain(ctx context.Context, report crawler.DomainReport) error {
	query := `
		INSERT INTO scan_job_domains (job_id, domain, report_id, success, error, blob_uri, pages_crawled, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`
	_, err := s.db.Exec(ctx, query,
		report.JobID,
		report.Domain,
		report.ReportID,
		report.Success,
		report.Error,
		report.BlobURI,
		report.PagesCrawled,
		report.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job domain: %w", err)
	}
	return nil
}

// GetJob retrieves a single job by its ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (crawler.Job, error) {
	query := `
		SELECT id, status, submitted_at, started_at, finished_at, error_text, parameters, counters
		FROM scan_jobs
		WHERE id = $1;
	`
	var (
		job            crawler.Job
		status         string
		params, counts []byte
	)
	err := s.db.QueryRow(ctx, query, jobID).Scan(
		&job.ID,
		&status,
		&job.Submitted,
		&job.Started,
		&job.Finished,
		&job.ErrorText,
		&params,
		&counts,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Job{}, fmt.Errorf("job %s: %w", jobID, crawler.ErrNotFound)
	}
	if err != nil {
		return crawler.Job{}, fmt.Errorf("get job: %w", err)
	}
	job.Status = crawler.JobStatus(status)
	if err := json.Unmarshal(params, &job.Parameters); err != nil {
		return crawler.Job{}, fmt.Errorf("unmarshal job parameters: %w", err)
	}
	if err := json.Unmarshal(counts, &job.Counters); err != nil {
		return crawler.Job{}, fmt.Errorf("unmarshal job counters: %w", err)
	}
	return job, nil
}

// ListDomains returns the recorded domain outcomes of a job in completion order.
func (s *JobStore) ListDomains(ctx context.Context, jobID string) ([]crawler.DomainReport, error) {
	query := `
		SELECT job_id, domain, report_id, success, error, blob_uri, pages_crawled, finished_at
		FROM scan_job_domains
		WHERE job_id = $1
		ORDER BY finished_at;
	`
	rows, err := s.db.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job domains: %w", err)
	}
	defer rows.Close()

	var out []crawler.DomainReport
	for rows.Next() {
		var d crawler.DomainReport
		if err := rows.Scan(
			&d.JobID,
			&d.Domain,
			&d.ReportID,
			&d.Success,
			&d.Error,
			&d.BlobURI,
			&d.PagesCrawled,
			&d.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan job domain row: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job domains: %w", err)
	}
	return out, nil
}
