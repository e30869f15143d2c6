// Package worker executes scan jobs: one crawl per domain, then report
// assembly, persistence, archiving and notification.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-signals-crawler/internal/crawler"
	"github.com/JakeFAU/site-signals-crawler/internal/metrics"
	"github.com/JakeFAU/site-signals-crawler/internal/report"
)

var tracer = otel.Tracer("github.com/JakeFAU/site-signals-crawler/internal/worker")

// Scanner crawls one domain.
type Scanner interface {
	Scan(ctx context.Context, domain string, opts crawler.Options) crawler.Result
}

// Config controls Worker behavior. Topic is passed to the publisher as is;
// publishers bound to a single topic ignore it.
type Config struct {
	ContentType string
	BlobPrefix  string
	Topic       string
}

// Worker consumes queue items and executes the scan pipeline.
type Worker struct {
	queue     crawler.Queue
	jobStore  crawler.JobStore
	reports   report.Store
	blobStore crawler.BlobStore
	publisher crawler.Publisher
	scanner   Scanner
	ids       crawler.IDGenerator
	clock     crawler.Clock
	cfg       Config
	logger    *zap.Logger
}

// Deps groups the collaborators of a Worker. BlobStore and Publisher are
// optional.
type Deps struct {
	Queue     crawler.Queue
	JobStore  crawler.JobStore
	Reports   report.Store
	BlobStore crawler.BlobStore
	Publisher crawler.Publisher
	Scanner   Scanner
	IDs       crawler.IDGenerator
	Clock     crawler.Clock
}

// New constructs a Worker.
func New(deps Deps, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "application/json"
	}
	metrics.Init()
	return &Worker{
		queue:     deps.Queue,
		jobStore:  deps.JobStore,
		reports:   deps.Reports,
		blobStore: deps.BlobStore,
		publisher: deps.Publisher,
		scanner:   deps.Scanner,
		ids:       deps.IDs,
		clock:     deps.Clock,
		cfg:       cfg,
		logger:    logger.Named("worker"),
	}
}

// Run blocks, consuming queue items until the context finishes or the queue
// is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, crawler.ErrQueueClosed) {
				w.logger.Info("queue closed, worker stopping")
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.ProcessJob(ctx, item)
	}
}

// ProcessJob scans every domain of a job in order. A job canceled through
// the job store stops before its next domain.
func (w *Worker) ProcessJob(ctx context.Context, item crawler.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	logger := w.logger.With(zap.String("job_id", item.JobID))
	if w.scanner == nil || w.reports == nil {
		logger.Error("worker is missing its scanner or report store")
		w.finish(ctx, item.JobID, crawler.JobStatusFailed, "worker is not configured", crawler.JobCounters{})
		return
	}

	counters := crawler.JobCounters{}
	if err := w.jobStore.UpdateJobStatus(ctx, item.JobID, crawler.JobStatusRunning, "", counters); err != nil {
		logger.Error("update job status failed", zap.Error(err))
		return
	}

	var lastErr string
	canceled := false
	for _, domain := range item.Params.Domains {
		if w.canceled(ctx, item.JobID) {
			canceled = true
			logger.Info("job canceled, skipping remaining domains", zap.String("next_domain", domain))
			break
		}
		outcome := w.handleDomain(ctx, item, domain)
		counters.PagesCrawled += outcome.PagesCrawled
		if outcome.Success {
			counters.DomainsSucceeded++
		} else {
			counters.DomainsFailed++
			lastErr = outcome.Error
		}
		if err := w.jobStore.UpdateJobStatus(ctx, item.JobID, crawler.JobStatusRunning, "", counters); err != nil {
			logger.Warn("progress update failed", zap.Error(err))
		}
	}

	status, errText := deriveFinalStatus(canceled || ctx.Err() != nil, counters, lastErr)
	w.finish(ctx, item.JobID, status, errText, counters)
}

func (w *Worker) finish(
	ctx context.Context,
	jobID string,
	status crawler.JobStatus,
	errText string,
	counters crawler.JobCounters,
) {
	metrics.ObserveJob(string(status))
	// The job context may already be done; the final status must still land.
	if err := w.jobStore.UpdateJobStatus(context.WithoutCancel(ctx), jobID, status, errText, counters); err != nil {
		w.logger.Error("final job status update failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	w.logger.Info("job finished",
		zap.String("job_id", jobID),
		zap.String("status", string(status)),
		zap.Int("domains_succeeded", counters.DomainsSucceeded),
		zap.Int("domains_failed", counters.DomainsFailed),
		zap.Int("pages_crawled", counters.PagesCrawled),
	)
}

func (w *Worker) canceled(ctx context.Context, jobID string) bool {
	if ctx.Err() != nil {
		return true
	}
	job, err := w.jobStore.GetJob(ctx, jobID)
	if err != nil {
		return false
	}
	return job.Status == crawler.JobStatusCanceled
}

// handleDomain runs one domain through scan, report, persist, archive and
// publish. Persistence failures turn the domain into a failure; archive and
// publish failures are logged and do not.
func (w *Worker) handleDomain(ctx context.Context, item crawler.QueueItem, domain string) crawler.DomainReport {
	logger := w.logger.With(zap.String("job_id", item.JobID), zap.String("domain", domain))
	outcome := crawler.DomainReport{JobID: item.JobID, Domain: crawler.CleanDomain(domain)}
	ctx, span := tracer.Start(ctx, "worker.scan_domain", trace.WithAttributes(
		attribute.String("job.id", item.JobID),
		attribute.String("scan.domain", outcome.Domain),
	))
	defer func() {
		span.SetAttributes(
			attribute.Bool("scan.success", outcome.Success),
			attribute.Int("scan.pages", outcome.PagesCrawled),
		)
		if !outcome.Success {
			span.SetStatus(codes.Error, outcome.Error)
		}
		span.End()
		outcome.FinishedAt = w.now()
		if err := w.jobStore.RecordDomain(context.WithoutCancel(ctx), outcome); err != nil {
			logger.Warn("record domain failed", zap.Error(err))
		}
	}()

	opts := crawler.Options{MaxPages: item.Params.MaxPages}
	if item.Params.PageTimeoutMS > 0 {
		opts.PageTimeout = time.Duration(item.Params.PageTimeoutMS) * time.Millisecond
	}
	start := time.Now()
	result := w.scanner.Scan(ctx, domain, opts)
	logger.Info("domain scanned",
		zap.Bool("success", result.Success),
		zap.Int("pages", len(result.Pages)),
		zap.Duration("elapsed", time.Since(start)),
	)

	rep, err := w.persist(ctx, item.JobID, result)
	if err != nil {
		logger.Error("persist report failed", zap.Error(err))
		outcome.Error = err.Error()
		return outcome
	}
	outcome.ReportID = rep.ID
	outcome.Success = result.Success
	outcome.Error = result.ErrorText()
	if result.Site != nil {
		outcome.PagesCrawled = result.Site.PagesCrawled
	}

	uri, err := w.archive(ctx, rep)
	if err != nil {
		logger.Warn("archive report failed", zap.String("report_id", rep.ID), zap.Error(err))
	}
	outcome.BlobURI = uri

	if err := w.publish(ctx, outcome); err != nil {
		logger.Warn("publish report event failed", zap.String("report_id", rep.ID), zap.Error(err))
	}
	return outcome
}

func (w *Worker) persist(ctx context.Context, jobID string, result crawler.Result) (report.Report, error) {
	rep, err := report.Build(result, w.now())
	if err != nil {
		return report.Report{}, fmt.Errorf("build report: %w", err)
	}
	if w.ids == nil {
		return report.Report{}, errors.New("no id generator configured")
	}
	id, err := w.ids.NewID()
	if err != nil {
		return report.Report{}, fmt.Errorf("new report id: %w", err)
	}
	rep.ID = id
	rep.JobID = jobID
	if err := w.reports.SaveReport(ctx, rep); err != nil {
		return report.Report{}, fmt.Errorf("save report: %w", err)
	}
	return rep, nil
}

func (w *Worker) archive(ctx context.Context, rep report.Report) (string, error) {
	if w.blobStore == nil {
		return "", nil
	}
	full, err := rep.Full()
	if err != nil {
		return "", fmt.Errorf("decode report: %w", err)
	}
	data, err := json.Marshal(full)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	uri, err := w.blobStore.PutObject(ctx, w.buildBlobPath(rep), w.cfg.ContentType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return uri, nil
}

func (w *Worker) publish(ctx context.Context, outcome crawler.DomainReport) error {
	if w.publisher == nil {
		return nil
	}
	event := crawler.ReportReadyEvent{
		JobID:    outcome.JobID,
		Domain:   outcome.Domain,
		ReportID: outcome.ReportID,
		Success:  outcome.Success,
		BlobURI:  outcome.BlobURI,
	}
	id, err := w.publisher.Publish(ctx, w.cfg.Topic, event)
	if err != nil {
		return fmt.Errorf("publish payload: %w", err)
	}
	w.logger.Debug("report event published",
		zap.String("job_id", outcome.JobID),
		zap.String("report_id", outcome.ReportID),
		zap.String("message_id", id),
	)
	return nil
}

func (w *Worker) buildBlobPath(rep report.Report) string {
	name := fmt.Sprintf("%s/%s.json", rep.Domain, rep.ID)
	prefix := strings.Trim(w.cfg.BlobPrefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func (w *Worker) now() time.Time {
	if w.clock == nil {
		return time.Now().UTC()
	}
	return w.clock.Now()
}

func deriveFinalStatus(canceled bool, counters crawler.JobCounters, errText string) (crawler.JobStatus, string) {
	if counters.DomainsSucceeded == 0 && errText == "" && !canceled {
		errText = "no domains were scanned"
	}
	switch {
	case canceled:
		return crawler.JobStatusCanceled, errText
	case counters.DomainsSucceeded == 0:
		return crawler.JobStatusFailed, errText
	default:
		return crawler.JobStatusSucceeded, ""
	}
}
