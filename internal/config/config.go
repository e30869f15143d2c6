// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/site-signals-crawler/internal/crawler"
)

// Renderer engines.
const (
	EngineChromedp = "chromedp"
	EngineStatic   = "static"
)

// Blob storage backends.
const (
	BlobBackendNone   = "none"
	BlobBackendMemory = "memory"
	BlobBackendLocal  = "local"
	BlobBackendGCS    = "gcs"
)

var regionRe = regexp.MustCompile(`^[A-Z]{2}$`)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Renderer  RendererConfig  `mapstructure:"renderer"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs crawl bounds and the worker pool.
type CrawlerConfig struct {
	MaxPages      int            `mapstructure:"max_pages"`
	PageTimeoutMS int            `mapstructure:"page_timeout_ms"`
	TypeCaps      map[string]int `mapstructure:"type_caps"`
	PhoneRegion   string         `mapstructure:"phone_region"`
	UserAgent     string         `mapstructure:"user_agent"`
	Concurrency   int            `mapstructure:"concurrency"`
	QueueDepth    int            `mapstructure:"queue_depth"`
	SeedMaxBytes  int            `mapstructure:"seed_max_bytes"`
}

// RendererConfig selects and tunes the page renderer.
type RendererConfig struct {
	Engine        string  `mapstructure:"engine"`
	ExecPath      string  `mapstructure:"exec_path"`
	NoSandbox     bool    `mapstructure:"no_sandbox"`
	HostQPS       float64 `mapstructure:"host_qps"`
	SettleDelayMS int     `mapstructure:"settle_delay_ms"`
}

// StorageConfig selects where full report archives are written.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	LocalDir    string `mapstructure:"local_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// DBConfig controls access to Postgres. An empty DSN keeps reports and jobs
// in memory.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
	AutoMigrate            bool   `mapstructure:"auto_migrate"`
}

// PubSubConfig holds Pub/Sub settings. Report-ready publishing is disabled
// when TopicName is empty. Setting JobTopic and JobSubscription replaces the
// in-process job queue with a shared Pub/Sub one.
type PubSubConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	TopicName       string `mapstructure:"topic_name"`
	JobTopic        string `mapstructure:"job_topic"`
	JobSubscription string `mapstructure:"job_subscription"`
}

// SharedQueue reports whether jobs go through Pub/Sub.
func (p PubSubConfig) SharedQueue() bool {
	return p.JobTopic != "" || p.JobSubscription != ""
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig controls OpenTelemetry tracing. Spans are exported to
// Cloud Trace only when TraceProjectID is set.
type TelemetryConfig struct {
	ServiceName    string  `mapstructure:"service_name"`
	ServiceVersion string  `mapstructure:"service_version"`
	TraceProjectID string  `mapstructure:"trace_project_id"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	// Cloud Run injects PORT.
	_ = v.BindEnv("server.port", "CRAWLER_SERVER_PORT", "PORT")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Crawler.PhoneRegion = strings.ToUpper(strings.TrimSpace(cfg.Crawler.PhoneRegion))
	cfg.Renderer.Engine = strings.ToLower(strings.TrimSpace(cfg.Renderer.Engine))
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("crawler.max_pages", crawler.DefaultMaxPages)
	v.SetDefault("crawler.page_timeout_ms", int(crawler.DefaultPageTimeout/time.Millisecond))
	v.SetDefault("crawler.type_caps", crawler.DefaultTypeCaps)
	v.SetDefault("crawler.phone_region", "US")
	v.SetDefault("crawler.user_agent", "site-signals-bot/0.1")
	v.SetDefault("crawler.concurrency", 2)
	v.SetDefault("crawler.queue_depth", 64)
	v.SetDefault("crawler.seed_max_bytes", 10<<20)
	v.SetDefault("renderer.engine", EngineChromedp)
	v.SetDefault("renderer.no_sandbox", false)
	v.SetDefault("renderer.host_qps", 0)
	v.SetDefault("renderer.settle_delay_ms", 500)
	v.SetDefault("storage.backend", BlobBackendMemory)
	v.SetDefault("storage.local_dir", "reports")
	v.SetDefault("storage.prefix", "reports")
	v.SetDefault("storage.content_type", "application/json")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("logging.development", true)
	v.SetDefault("telemetry.service_name", "site-signals-crawler")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be > 0")
	}
	if c.Crawler.PageTimeoutMS <= 0 {
		return fmt.Errorf("crawler.page_timeout_ms must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.QueueDepth <= 0 {
		return fmt.Errorf("crawler.queue_depth must be > 0")
	}
	if !regionRe.MatchString(c.Crawler.PhoneRegion) {
		return fmt.Errorf("crawler.phone_region must be a two-letter region code, got %q", c.Crawler.PhoneRegion)
	}
	for label, limit := range c.Crawler.TypeCaps {
		if !slices.Contains(crawler.Labels, label) {
			return fmt.Errorf("crawler.type_caps: unknown page type %q", label)
		}
		if limit < 0 {
			return fmt.Errorf("crawler.type_caps.%s must be >= 0", label)
		}
	}
	switch c.Renderer.Engine {
	case EngineChromedp, EngineStatic:
	default:
		return fmt.Errorf("renderer.engine must be %q or %q, got %q", EngineChromedp, EngineStatic, c.Renderer.Engine)
	}
	if c.Renderer.HostQPS < 0 {
		return fmt.Errorf("renderer.host_qps must be >= 0")
	}
	switch c.Storage.Backend {
	case BlobBackendNone, BlobBackendMemory:
	case BlobBackendLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir is required for the local backend")
		}
	case BlobBackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if c.PubSub.SharedQueue() {
		if c.PubSub.JobTopic == "" || c.PubSub.JobSubscription == "" {
			return fmt.Errorf("pubsub.job_topic and pubsub.job_subscription must be set together")
		}
		if c.PubSub.ProjectID == "" {
			return fmt.Errorf("pubsub.project_id must be set when a job topic is configured")
		}
	}
	if c.DB.DSN != "" && c.DB.MinConns > c.DB.MaxConns {
		return fmt.Errorf("db.min_conns must not exceed db.max_conns")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// PageTimeout returns the per-page navigation budget.
func (c Config) PageTimeout() time.Duration {
	return time.Duration(c.Crawler.PageTimeoutMS) * time.Millisecond
}

// CrawlSettings converts the crawler section into orchestrator settings.
// Labels missing from type_caps keep their default cap.
func (c Config) CrawlSettings() crawler.Settings {
	return crawler.Settings{
		MaxPages:    c.Crawler.MaxPages,
		PageTimeout: c.PageTimeout(),
		TypeCaps:    c.Crawler.TypeCaps,
		PhoneRegion: c.Crawler.PhoneRegion,
	}
}

// ShutdownTimeout returns how long serve waits for in-flight requests.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}
