// Package headless renders pages in headless Chrome through chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-signals-crawler/internal/crawler"
	"github.com/JakeFAU/site-signals-crawler/internal/metrics"
	"github.com/JakeFAU/site-signals-crawler/internal/page"
	"github.com/JakeFAU/site-signals-crawler/internal/policy/ratelimit"
)

// ErrNoResponse is returned when navigation finished without a document response.
var ErrNoResponse = errors.New("no document response")

const defaultNavigationTimeout = 45 * time.Second

// Config controls the behavior of the headless browser.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	// SettleDelay is waited after the body is ready so late scripts can run.
	SettleDelay time.Duration
	// HostQPS spaces navigations per host; zero disables pacing.
	HostQPS   float64
	ExecPath  string
	NoSandbox bool
}

// Browser owns the Chrome allocator. Each crawl gets its own Session.
type Browser struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
	limiter     *ratelimit.Limiter
	logger      *zap.Logger
}

// NewChromedp creates a browser allocator. Chrome itself starts lazily on the
// first session.
func NewChromedp(cfg Config, logger *zap.Logger) (*Browser, error) {
	if cfg.HostQPS < 0 {
		return nil, fmt.Errorf("host qps must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Browser{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		limiter:     ratelimit.New(cfg.HostQPS, 1),
		logger:      logger.Named("headless"),
	}, nil
}

// Close cancels the allocator context, terminating Chrome.
func (b *Browser) Close() {
	b.allocCancel()
}

// NewSession starts a browser context shared by every tab of one crawl.
func (b *Browser) NewSession(ctx context.Context) (crawler.Session, error) {
	browserCtx, cancel := chromedp.NewContext(b.allocator)
	stop := forwardCancel(ctx, cancel)
	if err := chromedp.Run(browserCtx); err != nil {
		stop()
		cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return &Session{browser: b, ctx: browserCtx, cancel: cancel, stopForward: stop}, nil
}

// Session renders URLs in fresh tabs of one browser context.
type Session struct {
	browser     *Browser
	ctx         context.Context
	cancel      context.CancelFunc
	stopForward func()
}

// Close closes the browser context and all its tabs.
func (s *Session) Close() error {
	s.stopForward()
	s.cancel()
	return nil
}

// Open loads rawURL in a new tab and snapshots DOM, text, clickables and the
// network and console activity observed during the load.
func (s *Session) Open(ctx context.Context, rawURL string, timeout time.Duration) (page.RenderedPage, error) {
	if timeout <= 0 {
		timeout = s.browser.cfg.NavigationTimeout
	}
	if err := s.browser.limiter.Wait(ctx, rawURL); err != nil {
		return nil, fmt.Errorf("render rate limit: %w", err)
	}

	tabCtx, cancelTab := chromedp.NewContext(s.ctx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, timeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	rec := newRecorder()
	chromedp.ListenTarget(taskCtx, rec.captureEvent)

	logger := s.browser.logger.With(zap.String("url", rawURL))
	if err := chromedp.Run(taskCtx, s.browser.setupAction()); err != nil {
		logger.Debug("tab setup failed", zap.Error(err))
		return nil, fmt.Errorf("prepare tab: %w", err)
	}
	resp, err := chromedp.RunResponse(taskCtx, chromedp.Navigate(rawURL))
	if err != nil {
		logger.Debug("navigation failed", zap.Duration("timeout", timeout), zap.Error(err))
		return nil, fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	if resp == nil {
		logger.Debug("navigation returned no document")
		return nil, fmt.Errorf("navigate %s: %w", rawURL, ErrNoResponse)
	}

	snap, err := s.browser.snapshot(taskCtx)
	if err != nil {
		logger.Debug("snapshot failed", zap.Int64("status", resp.Status), zap.Error(err))
		return nil, fmt.Errorf("snapshot %s: %w", rawURL, err)
	}
	finalURL := snap.location
	if finalURL == "" {
		finalURL = resp.URL
	}
	if finalURL == "" {
		finalURL = rawURL
	}

	doc := page.Parse(finalURL, int(resp.Status), toHTTPHeader(resp.Headers), snap.html).
		WithText(snap.text).
		WithClickables(snap.clickables()).
		WithResponses(rec.responses()).
		WithConsole(rec.console())
	return doc, nil
}

func (b *Browser) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

const (
	textJS       = `document.body ? document.body.innerText : ''`
	clickablesJS = `Array.from(document.querySelectorAll('a, button, input[type=submit], input[type=button]')).map(el => {
  const style = window.getComputedStyle(el);
  const rect = el.getBoundingClientRect();
  const visible = style.display !== 'none' && style.visibility !== 'hidden' &&
    style.opacity !== '0' && rect.width > 0 && rect.height > 0;
  const raw = el.tagName === 'INPUT' ? (el.value || '') : (el.innerText || '');
  return {tag: el.tagName.toLowerCase(), text: raw.trim().replace(/\s+/g, ' '), href: el.href || '', visible: visible};
})`
)

type jsClickable struct {
	Tag     string `json:"tag"`
	Text    string `json:"text"`
	Href    string `json:"href"`
	Visible bool   `json:"visible"`
}

type domSnapshot struct {
	location string
	html     string
	text     string
	clicks   []jsClickable
}

func (d domSnapshot) clickables() []page.Clickable {
	out := make([]page.Clickable, 0, len(d.clicks))
	for _, c := range d.clicks {
		out = append(out, page.Clickable{Tag: c.Tag, Text: c.Text, Href: c.Href, Visible: c.Visible})
	}
	return out
}

func (b *Browser) snapshot(ctx context.Context) (domSnapshot, error) {
	var snap domSnapshot
	actions := []chromedp.Action{
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if b.cfg.SettleDelay > 0 {
		actions = append(actions, chromedp.Sleep(b.cfg.SettleDelay))
	}
	actions = append(actions,
		chromedp.Location(&snap.location),
		chromedp.OuterHTML("html", &snap.html, chromedp.ByQuery),
		chromedp.Evaluate(textJS, &snap.text),
		chromedp.Evaluate(clickablesJS, &snap.clicks),
	)
	if err := chromedp.Run(ctx, actions...); err != nil {
		return domSnapshot{}, fmt.Errorf("chromedp run: %w", err)
	}
	return snap, nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func toHTTPHeader(src network.Headers) http.Header {
	headers := http.Header{}
	for key, value := range src {
		switch v := value.(type) {
		case string:
			// Chrome joins repeated headers with newlines.
			for _, entry := range strings.Split(v, "\n") {
				headers.Add(key, entry)
			}
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		case []interface{}:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	return headers
}
