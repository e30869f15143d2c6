package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-signals-crawler/internal/crawler"
)

func newMockJobStore(t *testing.T) (*JobStore, pgxmock.PgxPoolIface, time.Time) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewJobStore(mock)
	require.NoError(t, err)
	now := time.Unix(1700000000, 0).UTC()
	store.now = func() time.Time { return now }
	return store, mock, now
}

func TestCreateJobInsertsRow(t *testing.T) {
	t.Parallel()

	store, mock, now := newMockJobStore(t)
	job := crawler.Job{
		ID:         "job-1",
		Status:     crawler.JobStatusQueued,
		Submitted:  now,
		Parameters: crawler.JobParameters{Domains: []string{"acme.example"}, MaxPages: 10},
	}

	mock.ExpectExec("INSERT INTO scan_jobs").
		WithArgs(
			"job-1", "queued", now, "",
			[]byte(`{"domains":["acme.example"],"max_pages":10,"page_timeout_ms":0}`),
			[]byte(`{"domains_succeeded":0,"domains_failed":0,"pages_crawled":0}`),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateJob(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateJobStatus(t *testing.T) {
	t.Parallel()

	store, mock, now := newMockJobStore(t)
	counters := crawler.JobCounters{DomainsSucceeded: 1, PagesCrawled: 12}

	mock.ExpectExec("UPDATE scan_jobs").
		WithArgs("job-1", "succeeded", "",
			[]byte(`{"domains_succeeded":1,"domains_failed":0,"pages_crawled":12}`), now, true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.UpdateJobStatus(context.Background(), "job-1", crawler.JobStatusSucceeded, "", counters))

	mock.ExpectExec("UPDATE scan_jobs").
		WithArgs("missing", "running", "", pgxmock.AnyArg(), now, false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err := store.UpdateJobStatus(context.Background(), "missing", crawler.JobStatusRunning, "", crawler.JobCounters{})
	require.ErrorIs(t, err, crawler.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDomainInsertsRow(t *testing.T) {
	t.Parallel()

	store, mock, now := newMockJobStore(t)
	rep := crawler.DomainReport{
		JobID:        "job-1",
		Domain:       "acme.example",
		ReportID:     "rep-1",
		Success:      true,
		BlobURI:      "gs://archive/acme.example/rep-1.json",
		PagesCrawled: 9,
		FinishedAt:   now,
	}
	mock.ExpectExec("INSERT INTO scan_job_domains").
		WithArgs("job-1", "acme.example", "rep-1", true, "", rep.BlobURI, 9, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordDomain(context.Background(), rep))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobScansRow(t *testing.T) {
	t.Parallel()

	store, mock, now := newMockJobStore(t)
	started := now.Add(time.Second)
	finished := now.Add(time.Minute)
	rows := pgxmock.NewRows([]string{
		"id", "status", "submitted_at", "started_at", "finished_at", "error_text", "parameters", "counters",
	}).AddRow(
		"job-1", "failed", now, &started, &finished, "all domains failed",
		[]byte(`{"domains":["down.example"],"max_pages":5,"page_timeout_ms":8000}`),
		[]byte(`{"domains_succeeded":0,"domains_failed":1,"pages_crawled":0}`),
	)
	mock.ExpectQuery("FROM scan_jobs").WithArgs("job-1").WillReturnRows(rows)

	job, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusFailed, job.Status)
	require.Equal(t, []string{"down.example"}, job.Parameters.Domains)
	require.Equal(t, 8000, job.Parameters.PageTimeoutMS)
	require.Equal(t, 1, job.Counters.DomainsFailed)
	require.NotNil(t, job.Started)
	require.Equal(t, finished, *job.Finished)

	mock.ExpectQuery("FROM scan_jobs").WithArgs("nope").WillReturnError(pgx.ErrNoRows)
	_, err = store.GetJob(context.Background(), "nope")
	require.ErrorIs(t, err, crawler.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListDomains(t *testing.T) {
	t.Parallel()

	store, mock, now := newMockJobStore(t)
	rows := pgxmock.NewRows([]string{
		"job_id", "domain", "report_id", "success", "error", "blob_uri", "pages_crawled", "finished_at",
	}).
		AddRow("job-1", "acme.example", "rep-1", true, "", "memory://a", 4, now).
		AddRow("job-1", "down.example", "rep-2", false, "root unreachable", "", 0, now.Add(time.Second))
	mock.ExpectQuery("FROM scan_job_domains").WithArgs("job-1").WillReturnRows(rows)

	domains, err := store.ListDomains(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, domains, 2)
	require.False(t, domains[1].Success)
	require.Equal(t, "root unreachable", domains[1].Error)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS domains").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, EnsureSchema(context.Background(), mock))
	require.NoError(t, mock.ExpectationsWereMet())
}
