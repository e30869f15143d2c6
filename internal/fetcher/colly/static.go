package collyfetcher

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/JakeFAU/site-signals-crawler/internal/crawler"
	"github.com/JakeFAU/site-signals-crawler/internal/page"
	"github.com/JakeFAU/site-signals-crawler/internal/policy/ratelimit"
)

// StaticBrowser satisfies crawler.Browser without a JavaScript engine: pages
// are fetched with a plain GET and parsed as served.
type StaticBrowser struct {
	fetcher *Fetcher
	limiter *ratelimit.Limiter
}

// NewStaticBrowser wraps a Fetcher as a Browser. A nil limiter disables
// per-host pacing.
func NewStaticBrowser(fetcher *Fetcher, limiter *ratelimit.Limiter) *StaticBrowser {
	return &StaticBrowser{fetcher: fetcher, limiter: limiter}
}

// NewSession returns a session backed by the shared fetcher.
func (b *StaticBrowser) NewSession(context.Context) (crawler.Session, error) {
	return staticSession{fetcher: b.fetcher, limiter: b.limiter}, nil
}

type staticSession struct {
	fetcher *Fetcher
	limiter *ratelimit.Limiter
}

func (s staticSession) Open(ctx context.Context, rawURL string, timeout time.Duration) (page.RenderedPage, error) {
	if err := s.limiter.Wait(ctx, rawURL); err != nil {
		return nil, fmt.Errorf("static rate limit: %w", err)
	}
	resp, err := s.fetcher.Fetch(ctx, rawURL, timeout)
	if err != nil {
		return nil, fmt.Errorf("static fetch %s: %w", rawURL, err)
	}
	finalURL := resp.URL
	if finalURL == "" {
		finalURL = rawURL
	}
	host := ""
	if u, perr := url.Parse(finalURL); perr == nil {
		host = strings.ToLower(u.Hostname())
	}
	document := page.Response{
		URL:        finalURL,
		Host:       host,
		Type:       "document",
		MIMEType:   resp.Headers.Get("Content-Type"),
		Status:     resp.StatusCode,
		Size:       int64(len(resp.Body)),
		TTFBMillis: resp.Duration.Milliseconds(),
	}
	return page.Parse(finalURL, resp.StatusCode, resp.Headers, string(resp.Body)).
		WithResponses([]page.Response{document}), nil
}

func (staticSession) Close() error { return nil }
