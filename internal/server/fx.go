// Package server builds the scan service from configuration and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-signals-crawler/internal/api"
	"github.com/JakeFAU/site-signals-crawler/internal/clock/system"
	"github.com/JakeFAU/site-signals-crawler/internal/config"
	"github.com/JakeFAU/site-signals-crawler/internal/crawler"
	"github.com/JakeFAU/site-signals-crawler/internal/dispatcher"
	"github.com/JakeFAU/site-signals-crawler/internal/id/uuid"
	memorypublisher "github.com/JakeFAU/site-signals-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/site-signals-crawler/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/site-signals-crawler/internal/queue/memory"
	queuePubSub "github.com/JakeFAU/site-signals-crawler/internal/queue/pubsub"
	"github.com/JakeFAU/site-signals-crawler/internal/report"
	gcsstorage "github.com/JakeFAU/site-signals-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/site-signals-crawler/internal/storage/local"
	memoryStorage "github.com/JakeFAU/site-signals-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/site-signals-crawler/internal/storage/postgres"
	"github.com/JakeFAU/site-signals-crawler/internal/telemetry"
	"github.com/JakeFAU/site-signals-crawler/internal/worker"
)

// jobQueue is the queue surface the App drives.
type jobQueue interface {
	crawler.Queue
	Close()
}

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	apiServer    *api.Server
	dispatch     *dispatcher.Dispatcher
	queue        jobQueue
	pool         *pgxpool.Pool
	gcs          *gcsstorage.BlobStore
	pubsub       *gcppublisher.Publisher
	tracing      *sdktrace.TracerProvider
	releaseScans func()
}

// Build creates the application's dependencies. On error everything opened so
// far is released.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.closeInfrastructure()
		}
	}()
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("renderer", cfg.Renderer.Engine),
		zap.String("storage", cfg.Storage.Backend),
		zap.Bool("postgres", cfg.DB.DSN != ""),
	)

	if app.tracing, err = telemetry.InitTracing(ctx, cfg.Telemetry); err != nil {
		return nil, fmt.Errorf("tracing init failed: %w", err)
	}
	jobStore, reportStore, err := app.setupDatabase(ctx)
	if err != nil {
		return nil, err
	}
	blobStore, err := app.setupStorage(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}
	scanner, release, err := NewScanner(cfg, logger)
	if err != nil {
		return nil, err
	}
	app.releaseScans = release

	clock := system.New()
	idGen := uuid.New()
	if app.queue, err = app.setupQueue(ctx); err != nil {
		return nil, err
	}

	runners := make([]dispatcher.Runner, 0, cfg.Crawler.Concurrency)
	for i := 0; i < cfg.Crawler.Concurrency; i++ {
		runners = append(runners, worker.New(worker.Deps{
			Queue:     app.queue,
			JobStore:  jobStore,
			Reports:   reportStore,
			BlobStore: blobStore,
			Publisher: publisher,
			Scanner:   scanner,
			IDs:       idGen,
			Clock:     clock,
		}, worker.Config{
			ContentType: cfg.Storage.ContentType,
			BlobPrefix:  cfg.Storage.Prefix,
			Topic:       cfg.PubSub.TopicName,
		}, logger.With(zap.Int("index", i))))
	}
	app.dispatch = dispatcher.New(app.queue, runners, logger)

	var ready api.ReadyFunc
	if app.pool != nil {
		ready = app.pool.Ping
	}
	app.apiServer = api.NewServer(api.Deps{
		JobStore: jobStore,
		Reports:  reportStore,
		Queue:    app.dispatch,
		IDs:      idGen,
		Clock:    clock,
		Ready:    ready,
	}, cfg, logger)

	return app, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the dispatcher and HTTP server and blocks until the context is
// canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Crawler.Concurrency))
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.queue.Close()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers still running at shutdown deadline")
	}
	a.Close()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases every resource the App opened. It is safe to call more than
// once.
func (a *App) Close() {
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure() {
	if a.queue != nil {
		a.queue.Close()
	}
	if a.releaseScans != nil {
		a.releaseScans()
		a.releaseScans = nil
	}
	if a.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.tracing.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer provider shutdown failed", zap.Error(err))
		}
		cancel()
		a.tracing = nil
	}
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
		a.pubsub = nil
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.gcs = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

func (a *App) setupDatabase(ctx context.Context) (crawler.JobStore, report.Store, error) {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no database DSN configured, keeping jobs and reports in memory")
		return memoryStorage.NewJobStore(), memoryStorage.NewReportStore(), nil
	}
	pool, err := pgstore.Connect(ctx, pgstore.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(a.cfg.DB.MaxConnLifetimeMinutes) * time.Minute,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("postgres init failed: %w", err)
	}
	a.pool = pool
	if a.cfg.DB.AutoMigrate {
		if err := pgstore.EnsureSchema(ctx, pool); err != nil {
			return nil, nil, fmt.Errorf("postgres schema init failed: %w", err)
		}
		a.logger.Info("postgres schema ensured")
	}
	jobStore, err := pgstore.NewJobStore(pool)
	if err != nil {
		return nil, nil, fmt.Errorf("job store init failed: %w", err)
	}
	reportStore, err := pgstore.NewReportStore(pool)
	if err != nil {
		return nil, nil, fmt.Errorf("report store init failed: %w", err)
	}
	a.logger.Info("postgres stores initialized", zap.Int32("max_conns", a.cfg.DB.MaxConns))
	return jobStore, reportStore, nil
}

func (a *App) setupStorage(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.BlobBackendNone:
		a.logger.Info("report archiving disabled")
		return nil, nil
	case config.BlobBackendGCS:
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.gcs = store
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return store, nil
	case config.BlobBackendLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.LocalDir))
		return store, nil
	default:
		a.logger.Info("using in-memory storage backend")
		return memoryStorage.NewBlobStore(), nil
	}
}

func (a *App) setupQueue(ctx context.Context) (jobQueue, error) {
	if !a.cfg.PubSub.SharedQueue() {
		return queueMemory.NewQueue(a.cfg.Crawler.QueueDepth), nil
	}
	q, err := queuePubSub.Open(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.JobTopic, a.cfg.PubSub.JobSubscription, a.logger)
	if err != nil {
		return nil, fmt.Errorf("pubsub job queue init failed: %w", err)
	}
	a.logger.Info("using pubsub job queue",
		zap.String("topic", a.cfg.PubSub.JobTopic),
		zap.String("subscription", a.cfg.PubSub.JobSubscription),
	)
	return q, nil
}

func (a *App) setupPublisher(ctx context.Context) (crawler.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" {
		a.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	pub, err := gcppublisher.Open(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.pubsub = pub
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return pub, nil
}
