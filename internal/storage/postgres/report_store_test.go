package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-signals-crawler/internal/crawler"
	"github.com/JakeFAU/site-signals-crawler/internal/report"
)

var reportColumns = []string{
	"id", "domain", "job_id", "scraped_at", "status_code", "success", "error_message", "is_compressed",
	"pages_crawled", "seo_title", "seo_word_count", "seo_links_total", "seo_images_total",
	"tech_requests_count", "tech_total_bytes", "tech_ttfb",
	"contacts_emails_count", "contacts_phones_count", "forms_found",
	"seo_data", "tech_data", "security_data", "site_data", "pages_data",
}

func sampleReport(now time.Time) report.Report {
	return report.Report{
		ID:         "rep-1",
		Domain:     "acme.example",
		JobID:      "job-1",
		ScrapedAt:  now,
		StatusCode: 200,
		Success:    true,
		Metrics: report.Metrics{
			PagesCrawled:        4,
			SEOTitle:            "Acme",
			SEOWordCount:        300,
			SEOLinksTotal:       20,
			SEOImagesTotal:      5,
			TechRequestsCount:   40,
			TechTotalBytes:      4096,
			TechTTFB:            120,
			ContactsEmailsCount: 2,
			ContactsPhonesCount: 1,
			FormsFound:          1,
		},
		SEOData:      `{"title":"Acme"}`,
		TechData:     `{}`,
		SecurityData: `{}`,
		SiteData:     `{"pages_crawled":4}`,
		PagesData:    `[]`,
	}
}

func reportRow(r report.Report) []any {
	m := r.Metrics
	return []any{
		r.ID, r.Domain, r.JobID, r.ScrapedAt, r.StatusCode, r.Success, r.ErrorMessage, r.Compressed,
		m.PagesCrawled, m.SEOTitle, m.SEOWordCount, m.SEOLinksTotal, m.SEOImagesTotal,
		m.TechRequestsCount, m.TechTotalBytes, m.TechTTFB,
		m.ContactsEmailsCount, m.ContactsPhonesCount, m.FormsFound,
		r.SEOData, r.TechData, r.SecurityData, r.SiteData, r.PagesData,
	}
}

func TestSaveReportUpsertsDomainAndInserts(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewReportStore(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	r := sampleReport(now)
	m := r.Metrics

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO domains").
		WithArgs(r.Domain, now).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec("INSERT INTO reports").
		WithArgs(
			r.ID, int64(7), r.JobID, now, 200, true, "", false,
			m.PagesCrawled, m.SEOTitle, m.SEOWordCount, m.SEOLinksTotal, m.SEOImagesTotal,
			m.TechRequestsCount, m.TechTotalBytes, m.TechTTFB,
			m.ContactsEmailsCount, m.ContactsPhonesCount, m.FormsFound,
			r.SEOData, r.TechData, r.SecurityData, r.SiteData, r.PagesData,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.SaveReport(context.Background(), r))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveReportRollsBackOnInsertError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewReportStore(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO domains").
		WithArgs("acme.example", now).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec("INSERT INTO reports").
		WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	err = store.SaveReport(context.Background(), sampleReport(now))
	require.ErrorContains(t, err, "insert report")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveReportRequiresID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewReportStore(mock)
	require.NoError(t, err)
	require.Error(t, store.SaveReport(context.Background(), report.Report{Domain: "acme.example"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReportScansRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewReportStore(mock)
	require.NoError(t, err)

	want := sampleReport(time.Unix(1700000000, 0).UTC())
	mock.ExpectQuery(`FROM reports r`).
		WithArgs("rep-1").
		WillReturnRows(pgxmock.NewRows(reportColumns).AddRow(reportRow(want)...))

	got, err := store.GetReport(context.Background(), "rep-1")
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestReportNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewReportStore(mock)
	require.NoError(t, err)

	mock.ExpectQuery(`ORDER BY r.scraped_at DESC LIMIT 1`).
		WithArgs("missing.example").
		WillReturnError(pgx.ErrNoRows)

	_, err = store.LatestReport(context.Background(), "missing.example")
	require.ErrorIs(t, err, crawler.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewReportStoreRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewReportStore(nil)
	require.Error(t, err)
}
