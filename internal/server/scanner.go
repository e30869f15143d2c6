package server

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-signals-crawler/internal/config"
	"github.com/JakeFAU/site-signals-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/site-signals-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/site-signals-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/site-signals-crawler/internal/policy/ratelimit"
)

// NewScanner builds the crawl orchestrator for the configured renderer. The
// returned release func shuts the renderer down and is never nil.
func NewScanner(cfg config.Config, logger *zap.Logger) (*crawler.Crawler, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	seedFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.Crawler.UserAgent,
		Timeout:      cfg.PageTimeout(),
		MaxBodyBytes: cfg.Crawler.SeedMaxBytes,
	})

	var (
		browser crawler.Browser
		release = func() {}
	)
	switch cfg.Renderer.Engine {
	case config.EngineStatic:
		browser = collyfetcher.NewStaticBrowser(seedFetcher, ratelimit.New(cfg.Renderer.HostQPS, 1))
		logger.Info("using static renderer", zap.String("user_agent", cfg.Crawler.UserAgent))
	default:
		chrome, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: cfg.PageTimeout(),
			SettleDelay:       time.Duration(cfg.Renderer.SettleDelayMS) * time.Millisecond,
			HostQPS:           cfg.Renderer.HostQPS,
			ExecPath:          cfg.Renderer.ExecPath,
			NoSandbox:         cfg.Renderer.NoSandbox,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init chromedp renderer: %w", err)
		}
		browser = chrome
		release = chrome.Close
		logger.Info("using chromedp renderer",
			zap.Float64("host_qps", cfg.Renderer.HostQPS),
			zap.Bool("no_sandbox", cfg.Renderer.NoSandbox),
		)
	}

	seeds := crawler.NewDiscoverer(seedFetcher, logger)
	return crawler.New(browser, seeds, cfg.CrawlSettings(), logger), release, nil
}
