package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/site-signals-crawler/internal/crawler"
	"github.com/JakeFAU/site-signals-crawler/internal/report"
)

const upsertDomainSQL = `
INSERT INTO domains (domain, total_reports, last_scraped_at)
VALUES ($1, 1, $2)
ON CONFLICT (domain) DO UPDATE
SET total_reports = domains.total_reports + 1,
	last_scraped_at = GREATEST(domains.last_scraped_at, EXCLUDED.last_scraped_at)
RETURNING id`

const insertReportSQL = `
INSERT INTO reports (
	id, domain_id, job_id, scraped_at, status_code, success, error_message, is_compressed,
	pages_crawled, seo_title, seo_word_count, seo_links_total, seo_images_total,
	tech_requests_count, tech_total_bytes, tech_ttfb,
	contacts_emails_count, contacts_phones_count, forms_found,
	seo_data, tech_data, security_data, site_data, pages_data
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24
)`

const selectReportSQL = `
SELECT r.id, d.domain, r.job_id, r.scraped_at, r.status_code, r.success, r.error_message, r.is_compressed,
	r.pages_crawled, r.seo_title, r.seo_word_count, r.seo_links_total, r.seo_images_total,
	r.tech_requests_count, r.tech_total_bytes, r.tech_ttfb,
	r.contacts_emails_count, r.contacts_phones_count, r.forms_found,
	r.seo_data, r.tech_data, r.security_data, r.site_data, r.pages_data
FROM reports r
JOIN domains d ON d.id = r.domain_id`

// ReportStore persists reports into the domains and reports tables.
type ReportStore struct {
	db DB
}

// NewReportStore constructs a store from an existing pool.
func NewReportStore(db DB) (*ReportStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ReportStore{db: db}, nil
}

// SaveReport upserts the domain row (bumping total_reports) and inserts the
// report in one transaction.
func (s *ReportStore) SaveReport(ctx context.Context, r report.Report) (err error) {
	if r.ID == "" {
		return fmt.Errorf("report id is required")
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin report tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var domainID int64
	if err = tx.QueryRow(ctx, upsertDomainSQL, r.Domain, r.ScrapedAt).Scan(&domainID); err != nil {
		return fmt.Errorf("upsert domain: %w", err)
	}
	m := r.Metrics
	args := []any{
		r.ID, domainID, r.JobID, r.ScrapedAt, r.StatusCode, r.Success, r.ErrorMessage, r.Compressed,
		m.PagesCrawled, m.SEOTitle, m.SEOWordCount, m.SEOLinksTotal, m.SEOImagesTotal,
		m.TechRequestsCount, m.TechTotalBytes, m.TechTTFB,
		m.ContactsEmailsCount, m.ContactsPhonesCount, m.FormsFound,
		r.SEOData, r.TechData, r.SecurityData, r.SiteData, r.PagesData,
	}
	if _, err = tx.Exec(ctx, insertReportSQL, args...); err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit report tx: %w", err)
	}
	return nil
}

// GetReport fetches a report by ID.
func (s *ReportStore) GetReport(ctx context.Context, id string) (report.Report, error) {
	r, err := scanReport(s.db.QueryRow(ctx, selectReportSQL+` WHERE r.id = $1`, id))
	if err != nil {
		return report.Report{}, fmt.Errorf("get report %s: %w", id, err)
	}
	return r, nil
}

// LatestReport returns the most recent report of a domain.
func (s *ReportStore) LatestReport(ctx context.Context, domain string) (report.Report, error) {
	query := selectReportSQL + ` WHERE d.domain = $1 ORDER BY r.scraped_at DESC LIMIT 1`
	r, err := scanReport(s.db.QueryRow(ctx, query, domain))
	if err != nil {
		return report.Report{}, fmt.Errorf("latest report for %s: %w", domain, err)
	}
	return r, nil
}

func scanReport(row pgx.Row) (report.Report, error) {
	var r report.Report
	m := &r.Metrics
	err := row.Scan(
		&r.ID, &r.Domain, &r.JobID, &r.ScrapedAt, &r.StatusCode, &r.Success, &r.ErrorMessage, &r.Compressed,
		&m.PagesCrawled, &m.SEOTitle, &m.SEOWordCount, &m.SEOLinksTotal, &m.SEOImagesTotal,
		&m.TechRequestsCount, &m.TechTotalBytes, &m.TechTTFB,
		&m.ContactsEmailsCount, &m.ContactsPhonesCount, &m.FormsFound,
		&r.SEOData, &r.TechData, &r.SecurityData, &r.SiteData, &r.PagesData,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return report.Report{}, crawler.ErrNotFound
	}
	if err != nil {
		return report.Report{}, err
	}
	r.ScrapedAt = r.ScrapedAt.UTC()
	return r, nil
}
