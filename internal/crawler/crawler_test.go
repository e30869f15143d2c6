package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-signals-crawler/internal/page"
)

type fakePage struct {
	status   int
	html     string
	finalURL string
	err      error
	panics   bool
}

// explodingPage fails inside extraction rather than during rendering.
type explodingPage struct {
	page.RenderedPage
}

func (explodingPage) Forms() []page.Form { panic("malformed form tree") }

type fakeBrowser struct {
	mu         sync.Mutex
	pages      map[string]fakePage
	opened     []string
	sessionErr error
	closed     int
}

func (b *fakeBrowser) NewSession(context.Context) (Session, error) {
	if b.sessionErr != nil {
		return nil, b.sessionErr
	}
	return &fakeSession{browser: b}, nil
}

func (b *fakeBrowser) openedURLs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.opened...)
}

type fakeSession struct {
	browser *fakeBrowser
}

func (s *fakeSession) Open(_ context.Context, rawURL string, _ time.Duration) (page.RenderedPage, error) {
	s.browser.mu.Lock()
	s.browser.opened = append(s.browser.opened, rawURL)
	fp, ok := s.browser.pages[rawURL]
	s.browser.mu.Unlock()
	if !ok {
		return page.Parse(rawURL, http.StatusNotFound, nil, "<html><body>not found</body></html>"), nil
	}
	if fp.err != nil {
		return nil, fp.err
	}
	final := rawURL
	if fp.finalURL != "" {
		final = fp.finalURL
	}
	p := page.Parse(final, fp.status, nil, fp.html)
	if fp.panics {
		return explodingPage{RenderedPage: p}, nil
	}
	return p, nil
}

func (s *fakeSession) Close() error {
	s.browser.mu.Lock()
	s.browser.closed++
	s.browser.mu.Unlock()
	return nil
}

type staticSeeds []string

func (s staticSeeds) Discover(context.Context, string, time.Duration) []string { return s }

func ok(html string) fakePage { return fakePage{status: http.StatusOK, html: html} }

func newTestCrawler(b Browser, seeds SeedSource) *Crawler {
	return New(b, seeds, Settings{PageTimeout: time.Second}, zap.NewNop())
}

func pageURLs(res Result) []string {
	out := make([]string, 0, len(res.Pages))
	for _, p := range res.Pages {
		out = append(out, p.URL)
	}
	return out
}

func TestScanSinglePageWithoutLinks(t *testing.T) {
	t.Parallel()

	b := &fakeBrowser{pages: map[string]fakePage{
		"http://example.com/": ok("<html><head><title>Home</title></head><body><p>Welcome home.</p></body></html>"),
	}}
	res := newTestCrawler(b, NewDiscoverer(nil, nil)).Scan(context.Background(), "example.com", Options{})

	require.True(t, res.Success)
	require.Nil(t, res.Error)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "Home", res.SEO.Title)
	require.Equal(t, []string{"http://example.com/"}, pageURLs(res))
	require.Equal(t, 1, res.Site.PagesCrawled)
	require.Equal(t, LabelHome, res.Pages[0].SeedType)
	require.Equal(t, 0, res.Pages[0].FormsCount)
	require.Equal(t, []string{}, res.Pages[0].JSONLDRaw)
	require.Equal(t, 1, b.closed)

	// The root is rendered once and reused when dequeued.
	rootOpens := 0
	for _, u := range b.openedURLs() {
		if u == "http://example.com/" {
			rootOpens++
		}
	}
	require.Equal(t, 1, rootOpens)
}

func TestScanIsolatesPageFailures(t *testing.T) {
	t.Parallel()

	b := &fakeBrowser{pages: map[string]fakePage{
		"http://example.com/":  ok(`<body><a href="/b">B</a><a href="/c">C</a></body>`),
		"http://example.com/b": {status: http.StatusInternalServerError, html: "<body>oops</body>"},
		"http://example.com/c": ok(`<body>Page C</body>`),
	}}
	res := newTestCrawler(b, nil).Scan(context.Background(), "http://example.com", Options{})

	require.True(t, res.Success)
	require.Equal(t, []string{"http://example.com/", "http://example.com/c"}, pageURLs(res))
	require.Equal(t, 2, res.Site.PagesCrawled)
}

func TestScanRenderErrorIsIsolated(t *testing.T) {
	t.Parallel()

	b := &fakeBrowser{pages: map[string]fakePage{
		"http://example.com/":  ok(`<body><a href="/b">B</a><a href="/c">C</a></body>`),
		"http://example.com/b": {err: errors.New("navigation timeout")},
		"http://example.com/c": ok(`<body>Page C</body>`),
	}}
	res := newTestCrawler(b, nil).Scan(context.Background(), "example.com", Options{})

	require.True(t, res.Success)
	require.Equal(t, []string{"http://example.com/", "http://example.com/c"}, pageURLs(res))
}

func TestScanRootFailureIsFatal(t *testing.T) {
	t.Parallel()

	b := &fakeBrowser{pages: map[string]fakePage{
		"http://example.com/": {err: errors.New("dns failure")},
	}}
	res := newTestCrawler(b, nil).Scan(context.Background(), "example.com", Options{})

	require.False(t, res.Success)
	require.Contains(t, res.ErrorText(), "root unreachable")
	require.Contains(t, res.ErrorText(), "dns failure")
	require.Nil(t, res.Site)
	require.Empty(t, res.Pages)
}

func TestScanSessionFailureIsFatal(t *testing.T) {
	t.Parallel()

	b := &fakeBrowser{sessionErr: errors.New("chrome missing")}
	res := newTestCrawler(b, nil).Scan(context.Background(), "example.com", Options{})

	require.False(t, res.Success)
	require.Contains(t, res.ErrorText(), "chrome missing")
}

func TestScanInvalidDomain(t *testing.T) {
	t.Parallel()

	res := newTestCrawler(&fakeBrowser{}, nil).Scan(context.Background(), "", Options{})
	require.False(t, res.Success)
	require.NotEmpty(t, res.ErrorText())
}

func TestScanRespectsPageBudget(t *testing.T) {
	t.Parallel()

	var links strings.Builder
	pages := map[string]fakePage{}
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&links, `<a href="/p%d">p</a>`, i)
		pages[fmt.Sprintf("http://example.com/p%d", i)] = ok(`<body>leaf</body>`)
	}
	pages["http://example.com/"] = ok("<body>" + links.String() + "</body>")
	b := &fakeBrowser{pages: pages}

	res := newTestCrawler(b, nil).Scan(context.Background(), "example.com", Options{MaxPages: 3})

	require.True(t, res.Success)
	require.Len(t, res.Pages, 3)
	seen := map[string]bool{}
	for _, u := range pageURLs(res) {
		require.False(t, seen[u], "page %s visited twice", u)
		seen[u] = true
	}
}

func TestScanVisitsContactBeforeBlog(t *testing.T) {
	t.Parallel()

	b := &fakeBrowser{pages: map[string]fakePage{
		"http://example.com/":            ok(`<body>home</body>`),
		"http://example.com/blog/post-1": ok(`<body>post</body>`),
		"http://example.com/contact":     ok(`<body>write to us</body>`),
	}}
	seeds := staticSeeds{"http://example.com/blog/post-1", "http://example.com/contact", "http://example.com/"}
	res := newTestCrawler(b, seeds).Scan(context.Background(), "example.com", Options{})

	require.Equal(t, []string{
		"http://example.com/contact",
		"http://example.com/",
		"http://example.com/blog/post-1",
	}, pageURLs(res))
	require.Equal(t, LabelBlog, res.Pages[2].SeedType)
}

func TestScanAggregatesContacts(t *testing.T) {
	t.Parallel()

	b := &fakeBrowser{pages: map[string]fakePage{
		"http://example.com/": ok(`<body>Sales: Sales@Example.com, call +1 415 555 2671
			<a href="/contact">Contact</a><a href="https://wa.me/14155552671">WhatsApp</a>
			<a href="https://www.instagram.com/acme">IG</a>
			<form action="/subscribe"><input name="email"></form></body>`),
		"http://example.com/contact": ok(`<body>Email sales@example.com or call (415) 555-2671.
			<a href="/privacy-policy">Privacy</a>
			<button>Request a quote</button></body>`),
		"http://example.com/privacy-policy": ok(`<body>Privacy policy text</body>`),
	}}
	res := newTestCrawler(b, nil).Scan(context.Background(), "example.com", Options{})

	require.True(t, res.Success)
	site := res.Site
	require.Equal(t, []string{"sales@example.com"}, site.Contacts.Emails)
	require.Equal(t, "generic", site.Contacts.EmailDetails[0].Confidence)
	require.Equal(t, []string{"+1 415-555-2671"}, site.Contacts.Phones)
	require.Equal(t, "+14155552671", site.Contacts.PhoneDetails[0].E164)
	require.Equal(t, []string{"https://wa.me/14155552671"}, site.Contacts.WhatsApp)
	require.Equal(t, []string{"https://www.instagram.com/acme"}, site.Socials["instagram"])
	require.Equal(t, 1, site.FormsFound)
	require.Len(t, site.Forms, 1)
	require.Equal(t, []string{"http://example.com/privacy-policy"}, site.LegalPages)
	require.NotEmpty(t, site.CTAHighlights)
	require.Equal(t, 3, site.PagesCrawled)
}

func TestScanFollowsRootRedirect(t *testing.T) {
	t.Parallel()

	b := &fakeBrowser{pages: map[string]fakePage{
		"http://example.com/": {status: http.StatusOK, finalURL: "https://www.example.com/",
			html: `<body><a href="/about">About</a></body>`},
		"https://www.example.com/about": ok(`<body>about us</body>`),
	}}
	res := newTestCrawler(b, nil).Scan(context.Background(), "example.com", Options{})

	require.True(t, res.Success)
	require.Equal(t, []string{"https://www.example.com/", "https://www.example.com/about"}, pageURLs(res))
}

func TestScanExtractionPanicIsIsolated(t *testing.T) {
	t.Parallel()

	b := &fakeBrowser{pages: map[string]fakePage{
		"http://example.com/":  ok(`<body><a href="/b">B</a><a href="/c">C</a></body>`),
		"http://example.com/b": {status: http.StatusOK, html: `<body>broken</body>`, panics: true},
		"http://example.com/c": ok(`<body>Page C <form action="/x"><input name="q"></form></body>`),
	}}
	res := newTestCrawler(b, nil).Scan(context.Background(), "example.com", Options{})

	require.True(t, res.Success)
	require.Nil(t, res.Error)
	require.Equal(t, []string{"http://example.com/", "http://example.com/c"}, pageURLs(res))
	require.Equal(t, 2, res.Site.PagesCrawled)
	require.Equal(t, 1, res.Site.FormsFound)
	require.Contains(t, b.openedURLs(), "http://example.com/b")
}

func TestResultErrorKeyIsAlwaysPresent(t *testing.T) {
	t.Parallel()

	b := &fakeBrowser{pages: map[string]fakePage{
		"http://example.com/": ok(`<body>home</body>`),
	}}
	okRes := newTestCrawler(b, nil).Scan(context.Background(), "example.com", Options{})
	failed := newTestCrawler(&fakeBrowser{sessionErr: errors.New("chrome missing")}, nil).
		Scan(context.Background(), "example.com", Options{})

	decode := func(res Result) map[string]json.RawMessage {
		raw, err := json.Marshal(res)
		require.NoError(t, err)
		var fields map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(raw, &fields))
		return fields
	}

	fields := decode(okRes)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	require.ElementsMatch(t, []string{
		"domain", "status_code", "seo", "tech", "security", "site", "pages", "success", "error",
	}, keys)
	require.JSONEq(t, "null", string(fields["error"]))

	fields = decode(failed)
	require.Contains(t, fields, "error")
	var msg string
	require.NoError(t, json.Unmarshal(fields["error"], &msg))
	require.Contains(t, msg, "chrome missing")
}

func crawledPages(t *testing.T, site, status string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "crawler_pages_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["site"] == site && labels["status"] == status {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestScanRootFailureCountsByHost(t *testing.T) {
	t.Parallel()

	b := &fakeBrowser{pages: map[string]fakePage{
		"http://root-metrics.example/": {err: errors.New("dns failure")},
	}}
	c := newTestCrawler(b, nil)
	before := crawledPages(t, "root-metrics.example", "failed")

	res := c.Scan(context.Background(), "root-metrics.example", Options{})

	require.False(t, res.Success)
	require.Equal(t, before+1, crawledPages(t, "root-metrics.example", "failed"))
}
