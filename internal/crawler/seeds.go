package crawler

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// seedHints are common paths guessed relative to the root. They are not
// verified; missing ones fail later as ordinary page failures.
var seedHints = []string{
	"contacto", "contact", "about", "nosotros", "quienes-somos", "privacy-policy",
	"politica-de-privacidad", "aviso-legal", "terminos", "terms", "blog",
}

const (
	wpSitemapPath = "/wp-sitemap.xml"
	sitemapPath   = "/sitemap.xml"
	robotsPath    = "/robots.txt"
)

var (
	locRe           = regexp.MustCompile(`(?is)<loc>\s*(.*?)\s*</loc>`)
	sitemapDirectRe = regexp.MustCompile(`(?im)^\s*Sitemap:\s*(\S+)`)
)

// Discoverer gathers seed URLs from heuristics, sitemaps and robots.txt.
type Discoverer struct {
	fetcher SeedFetcher
	logger  *zap.Logger
}

// NewDiscoverer builds a Discoverer. A nil fetcher limits discovery to the
// root and heuristic guesses.
func NewDiscoverer(fetcher SeedFetcher, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{fetcher: fetcher, logger: logger}
}

// Discover returns the deduplicated seeds for root, root first. Fetch
// failures are logged and skipped per path.
func (d *Discoverer) Discover(ctx context.Context, root string, timeout time.Duration) []string {
	seeds := newOrderedSet()
	base, err := url.Parse(root)
	if err != nil {
		return []string{root}
	}
	rootURL := base.ResolveReference(&url.URL{Path: "/"}).String()
	seeds.add(rootURL)
	for _, hint := range seedHints {
		seeds.add(base.ResolveReference(&url.URL{Path: "/" + hint}).String())
	}
	if d.fetcher == nil {
		return seeds.items
	}

	for _, path := range []string{wpSitemapPath, sitemapPath, robotsPath} {
		if ctx.Err() != nil {
			break
		}
		target := base.ResolveReference(&url.URL{Path: path}).String()
		resp, err := d.fetcher.Fetch(ctx, target, timeout)
		if err != nil {
			d.logger.Debug("seed fetch failed", zap.String("url", target), zap.Error(err))
			continue
		}
		if !resp.OK() {
			d.logger.Debug("seed fetch non-ok", zap.String("url", target), zap.Int("status", resp.StatusCode))
			continue
		}
		var found []string
		if path == robotsPath {
			found = robotsSitemaps(resp.Body)
		} else {
			for _, loc := range sitemapLocs(resp.Body) {
				if SameSite(loc, rootURL) && !IsAsset(loc) {
					found = append(found, loc)
				}
			}
		}
		for _, u := range found {
			seeds.add(u)
		}
		d.logger.Debug("seed source parsed", zap.String("url", target), zap.Int("found", len(found)))
	}
	return seeds.items
}

// sitemapLocs returns every <loc> value. Malformed XML falls back to a
// regex scan so partially valid sitemaps still yield URLs.
func sitemapLocs(body []byte) []string {
	var out []string
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err == nil {
		for _, n := range xmlquery.Find(doc, "//loc") {
			if loc := strings.TrimSpace(n.InnerText()); loc != "" {
				out = append(out, loc)
			}
		}
		return out
	}
	for _, m := range locRe.FindAllSubmatch(body, -1) {
		if loc := strings.TrimSpace(string(m[1])); loc != "" {
			out = append(out, loc)
		}
	}
	return out
}

// robotsSitemaps returns the Sitemap directives of a robots.txt body.
func robotsSitemaps(body []byte) []string {
	if robots, err := robotstxt.FromBytes(body); err == nil && len(robots.Sitemaps) > 0 {
		return robots.Sitemaps
	}
	var out []string
	for _, m := range sitemapDirectRe.FindAllSubmatch(body, -1) {
		out = append(out, string(m[1]))
	}
	return out
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: map[string]struct{}{}}
}

func (s *orderedSet) add(raw string) {
	key, err := NormalizeURL(raw)
	if err != nil || key == "" {
		return
	}
	if _, dup := s.seen[key]; dup {
		return
	}
	s.seen[key] = struct{}{}
	s.items = append(s.items, key)
}
