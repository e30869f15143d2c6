package crawler

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/JakeFAU/site-signals-crawler/internal/page"
)

// Sentinel errors shared by stores and queues.
var (
	ErrNotFound    = errors.New("not found")
	ErrQueueClosed = errors.New("queue closed")
)

// Browser starts rendering sessions. One session serves a whole crawl.
type Browser interface {
	NewSession(ctx context.Context) (Session, error)
}

// Session renders pages in fresh tabs of a shared browser context. A non-2xx
// main document is returned as a page whose OK() is false; navigation
// failures and timeouts are returned as errors.
type Session interface {
	Open(ctx context.Context, rawURL string, timeout time.Duration) (page.RenderedPage, error)
	Close() error
}

// SeedFetcher performs plain GETs for sitemap and robots.txt discovery.
type SeedFetcher interface {
	Fetch(ctx context.Context, rawURL string, timeout time.Duration) (FetchResponse, error)
}

// SeedSource produces the initial candidate URLs for a crawl root.
type SeedSource interface {
	Discover(ctx context.Context, root string, timeout time.Duration) []string
}

// JobStore persists scan jobs and their per-domain outcomes.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errText string, counters JobCounters) error
	RecordDomain(ctx context.Context, report DomainReport) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	ListDomains(ctx context.Context, jobID string) ([]DomainReport, error)
}

// BlobStore writes report archives and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for scan jobs.
type Queue interface {
	Enqueue(ctx context.Context, job QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Params    JobParameters
	Attempt   int
	Submitted int64
}
