package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-signals-crawler/internal/extract"
	"github.com/JakeFAU/site-signals-crawler/internal/metrics"
	"github.com/JakeFAU/site-signals-crawler/internal/page"
)

// Defaults applied when neither Settings nor Options provide a value.
const (
	DefaultMaxPages    = 60
	DefaultPageTimeout = 10 * time.Second
)

// ErrRootUnreachable marks a crawl whose root page could not be loaded.
var ErrRootUnreachable = errors.New("root unreachable")

// Crawl states, logged on each transition.
const (
	StateSeeding = "SEEDING"
	StateRunning = "RUNNING"
	StateDone    = "DONE"
)

// Settings are the process-wide crawl knobs.
type Settings struct {
	MaxPages    int
	PageTimeout time.Duration
	TypeCaps    map[string]int
	PhoneRegion string
}

// Options override Settings for a single scan. Zero values keep the defaults.
type Options struct {
	MaxPages    int
	PageTimeout time.Duration
}

// Crawler runs bounded, priority-ordered crawls of one site at a time. A
// Crawler holds no per-crawl state and may run several scans concurrently.
type Crawler struct {
	browser  Browser
	seeds    SeedSource
	settings Settings
	logger   *zap.Logger
}

// New wires a Crawler. seeds may be nil, in which case only the root is crawled
// plus whatever it links to.
func New(browser Browser, seeds SeedSource, settings Settings, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.MaxPages <= 0 {
		settings.MaxPages = DefaultMaxPages
	}
	if settings.PageTimeout <= 0 {
		settings.PageTimeout = DefaultPageTimeout
	}
	if settings.PhoneRegion == "" {
		settings.PhoneRegion = extract.DefaultPhoneRegion
	}
	metrics.Init()
	return &Crawler{
		browser:  browser,
		seeds:    seeds,
		settings: settings,
		logger:   logger.Named("crawler"),
	}
}

// pageFailure explains why a page produced no snapshot.
type pageFailure struct {
	url    string
	status int
	err    error
}

func (f *pageFailure) Error() string {
	if f.err != nil {
		return fmt.Sprintf("%s: %v", f.url, f.err)
	}
	return fmt.Sprintf("%s: status %d", f.url, f.status)
}

// pageOutcome is either a snapshot with its signals or a failure.
type pageOutcome struct {
	snapshot PageSnapshot
	signals  pageSignals
	links    []string
	bytes    int
	failure  *pageFailure
}

// crawlState is owned by one Scan call.
type crawlState struct {
	domain   string
	origin   string
	host     string
	timeout  time.Duration
	maxPages int
	session  Session
	frontier *Frontier
	agg      *siteAggregate
	pages    []PageSnapshot
	root     page.RenderedPage
	rootKey  string
}

// Scan crawls domain and returns its result. Only a failure to load the root
// page is reported as Success=false; every later page failure is absorbed.
func (c *Crawler) Scan(ctx context.Context, domain string, opts Options) (res Result) {
	defer func() { metrics.ObserveScan(res.Success, len(res.Pages)) }()

	root, err := NormalizeDomain(domain)
	if err != nil {
		return fatalResult(domain, err)
	}
	st := &crawlState{
		domain:   root,
		timeout:  c.settings.PageTimeout,
		maxPages: c.settings.MaxPages,
		agg:      newSiteAggregate(),
	}
	if opts.MaxPages > 0 {
		st.maxPages = opts.MaxPages
	}
	if opts.PageTimeout > 0 {
		st.timeout = opts.PageTimeout
	}
	logger := c.logger.With(zap.String("domain", root))

	session, err := c.browser.NewSession(ctx)
	if err != nil {
		logger.Error("browser session failed", zap.Error(err))
		return fatalResult(root, fmt.Errorf("new browser session: %w", err))
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Debug("close browser session", zap.Error(cerr))
		}
	}()
	st.session = session

	rootPage, err := session.Open(ctx, root, st.timeout)
	if err != nil {
		logger.Warn("root page failed", zap.Error(err))
		metrics.ObserveCrawl(hostname(root), "failed", 0)
		return fatalResult(root, fmt.Errorf("%w: %v", ErrRootUnreachable, err))
	}
	st.root = rootPage
	st.origin = rootPage.URL()
	if hostname(st.origin) == "" {
		st.origin = root
	}
	st.rootKey, _ = NormalizeURL(st.origin)
	st.host = hostname(st.origin)

	seo := extract.SEOStats(rootPage)
	tech := extract.NetworkStats(rootPage, st.host)
	security := extract.SecurityHeaders(rootPage)

	c.seed(ctx, st, logger)
	c.run(ctx, st, logger)

	logger.Info("crawl state", zap.String("state", StateDone),
		zap.Int("pages", len(st.pages)), zap.Int("visited", st.frontier.VisitedCount()))
	return Result{
		Domain:     root,
		StatusCode: rootPage.Status(),
		SEO:        &seo,
		Tech:       &tech,
		Security:   &security,
		Site:       st.agg.summary(),
		Pages:      st.pages,
		Success:    true,
	}
}

func fatalResult(domain string, err error) Result {
	msg := err.Error()
	return Result{Domain: domain, Success: false, Error: &msg}
}

func (c *Crawler) seed(ctx context.Context, st *crawlState, logger *zap.Logger) {
	logger.Info("crawl state", zap.String("state", StateSeeding), zap.String("origin", st.origin))
	st.frontier = NewFrontier(st.origin, c.settings.TypeCaps)

	var seeds []string
	if c.seeds != nil {
		seeds = c.seeds.Discover(ctx, st.origin, st.timeout)
	}
	accepted := 0
	for _, s := range seeds {
		if st.frontier.Enqueue(s) {
			accepted++
		}
	}
	if st.frontier.Len() == 0 {
		st.frontier.ForceEnqueue(st.origin)
	}
	logger.Debug("seeds enqueued", zap.Int("candidates", len(seeds)), zap.Int("accepted", accepted))
}

func (c *Crawler) run(ctx context.Context, st *crawlState, logger *zap.Logger) {
	logger.Info("crawl state", zap.String("state", StateRunning), zap.Int("max_pages", st.maxPages))
	for st.frontier.Len() > 0 && st.frontier.VisitedCount() < st.maxPages {
		if ctx.Err() != nil {
			logger.Warn("crawl interrupted", zap.Error(ctx.Err()))
			return
		}
		entry, ok := st.frontier.Dequeue()
		if !ok {
			return
		}
		if st.frontier.Visited(entry.URL) {
			continue
		}
		st.frontier.MarkVisited(entry.URL)

		outcome := c.visit(ctx, st, entry)
		if outcome.failure != nil {
			logger.Debug("page skipped", zap.String("url", entry.URL), zap.Error(outcome.failure))
			metrics.ObserveCrawl(st.host, "failed", 0)
			continue
		}
		st.agg.add(outcome.signals)
		for _, link := range outcome.links {
			st.frontier.Enqueue(link)
		}
		st.pages = append(st.pages, outcome.snapshot)
		metrics.ObserveCrawl(st.host, "ok", outcome.bytes)
		logger.Debug("page crawled", zap.String("url", entry.URL),
			zap.String("page_type", outcome.snapshot.PageType), zap.String("seed_type", entry.Label))
	}
}

// visit renders one entry and extracts its signals. Any render error, non-2xx
// status or extractor panic becomes a failure outcome.
func (c *Crawler) visit(ctx context.Context, st *crawlState, entry Entry) (outcome pageOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = pageOutcome{failure: &pageFailure{url: entry.URL, err: fmt.Errorf("extract panic: %v", r)}}
		}
	}()

	var (
		p   page.RenderedPage
		err error
	)
	if st.root != nil && entry.URL == st.rootKey {
		p, st.root = st.root, nil
	} else {
		p, err = st.session.Open(ctx, entry.URL, st.timeout)
	}
	if err != nil {
		return pageOutcome{failure: &pageFailure{url: entry.URL, err: err}}
	}
	if !p.OK() {
		return pageOutcome{failure: &pageFailure{url: entry.URL, status: p.Status()}}
	}
	return c.extractPage(st, entry, p)
}

func (c *Crawler) extractPage(st *crawlState, entry Entry, p page.RenderedPage) pageOutcome {
	text := p.Text()
	emails := extract.Emails(p)
	phones := extract.Phones(p, c.settings.PhoneRegion)
	socials, whatsapp := extract.Socials(p)
	forms := extract.Forms(p)
	ctas := extract.CTAs(p)
	persons := extract.Persons(p)

	sig := pageSignals{
		url:          entry.URL,
		pageType:     ClassifyText(entry.URL, text),
		emails:       emails,
		phones:       phones,
		whatsapp:     whatsapp,
		socials:      socials,
		forms:        forms,
		ctas:         ctas,
		persons:      persons,
		integrations: extract.DetectIntegrations(p),
		business:     extract.ExtractBusiness(p),
		wp:           extract.DetectWordPress(p),
	}

	phonesFound := make([]string, 0, len(phones))
	for _, ph := range phones {
		phonesFound = append(phonesFound, ph.International)
	}
	snapshot := PageSnapshot{
		URL:          entry.URL,
		Status:       p.Status(),
		PageType:     sig.pageType,
		SeedType:     entry.Label,
		EmailsFound:  append([]string{}, emails...),
		PhonesFound:  phonesFound,
		JSONLDRaw:    extract.JSONLDSample(p),
		FormsCount:   len(forms),
		TeamContacts: capSlice(persons, MaxPageSamples),
		CTAs:         capSlice(ctas, MaxPageSamples),
	}

	var links []string
	for _, l := range p.Links() {
		if l.Abs != "" {
			links = append(links, l.Abs)
		}
	}
	return pageOutcome{snapshot: snapshot, signals: sig, links: links, bytes: len(p.HTML())}
}
