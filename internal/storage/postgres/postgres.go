// Package postgres provides Postgres-backed persistence for jobs and reports.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the tables used by JobStore and ReportStore.
const Schema = `
CREATE TABLE IF NOT EXISTS domains (
	id              BIGSERIAL PRIMARY KEY,
	domain          TEXT NOT NULL UNIQUE,
	total_reports   INTEGER NOT NULL DEFAULT 0,
	last_scraped_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS reports (
	id                    TEXT PRIMARY KEY,
	domain_id             BIGINT NOT NULL REFERENCES domains(id) ON DELETE CASCADE,
	job_id                TEXT NOT NULL DEFAULT '',
	scraped_at            TIMESTAMPTZ NOT NULL,
	status_code           INTEGER NOT NULL DEFAULT 0,
	success               BOOLEAN NOT NULL DEFAULT FALSE,
	error_message         TEXT NOT NULL DEFAULT '',
	is_compressed         BOOLEAN NOT NULL DEFAULT FALSE,
	pages_crawled         INTEGER NOT NULL DEFAULT 0,
	seo_title             TEXT NOT NULL DEFAULT '',
	seo_word_count        INTEGER NOT NULL DEFAULT 0,
	seo_links_total       INTEGER NOT NULL DEFAULT 0,
	seo_images_total      INTEGER NOT NULL DEFAULT 0,
	tech_requests_count   INTEGER NOT NULL DEFAULT 0,
	tech_total_bytes      BIGINT NOT NULL DEFAULT 0,
	tech_ttfb             BIGINT NOT NULL DEFAULT 0,
	contacts_emails_count INTEGER NOT NULL DEFAULT 0,
	contacts_phones_count INTEGER NOT NULL DEFAULT 0,
	forms_found           INTEGER NOT NULL DEFAULT 0,
	seo_data              TEXT NOT NULL DEFAULT '',
	tech_data             TEXT NOT NULL DEFAULT '',
	security_data         TEXT NOT NULL DEFAULT '',
	site_data             TEXT NOT NULL DEFAULT '',
	pages_data            TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_report_domain_date ON reports (domain_id, scraped_at DESC);

CREATE TABLE IF NOT EXISTS scan_jobs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	submitted_at TIMESTAMPTZ NOT NULL,
	started_at   TIMESTAMPTZ,
	finished_at  TIMESTAMPTZ,
	error_text   TEXT NOT NULL DEFAULT '',
	parameters   JSONB NOT NULL,
	counters     JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS scan_job_domains (
	job_id        TEXT NOT NULL REFERENCES scan_jobs(id) ON DELETE CASCADE,
	domain        TEXT NOT NULL,
	report_id     TEXT NOT NULL DEFAULT '',
	success       BOOLEAN NOT NULL,
	error         TEXT NOT NULL DEFAULT '',
	blob_uri      TEXT NOT NULL DEFAULT '',
	pages_crawled INTEGER NOT NULL DEFAULT 0,
	finished_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scan_job_domains_job ON scan_job_domains (job_id, finished_at);
`

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// DB is the subset of pgxpool.Pool the stores use. pgxmock pools satisfy it.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Connect opens a pgx pool using the provided config.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates missing tables and indexes.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
