package extract

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/site-signals-crawler/internal/page"
)

// Integrations lists third-party analytics and ad pixels detected on a page.
type Integrations struct {
	Analytics []string `json:"analytics"`
	Pixels    []string `json:"pixels"`
}

type marker struct {
	name       string
	scriptSubs []string
	htmlSubs   []string
}

var (
	analyticsMarkers = []marker{
		{name: "google", scriptSubs: []string{"gtag/js", "googletagmanager", "analytics.js"}, htmlSubs: []string{"gtag(", "googletagmanager.com"}},
		{name: "hotjar", scriptSubs: []string{"hotjar"}, htmlSubs: []string{"static.hotjar.com"}},
		{name: "clarity", scriptSubs: []string{"clarity.ms"}, htmlSubs: []string{"clarity.ms/tag"}},
		{name: "hubspot", scriptSubs: []string{"hs-scripts.com", "hs-analytics.net"}, htmlSubs: []string{"js.hs-scripts.com"}},
	}
	pixelMarkers = []marker{
		{name: "meta", scriptSubs: []string{"connect.facebook"}, htmlSubs: []string{"fbq("}},
		{name: "linkedin", scriptSubs: []string{"snap.licdn.com"}, htmlSubs: []string{"_linkedin_partner_id"}},
		{name: "tiktok", scriptSubs: []string{"analytics.tiktok.com"}, htmlSubs: []string{"ttq.load("}},
	}

	wpThemeRe   = regexp.MustCompile(`/wp-content/themes/([^/"'?]+)/`)
	wpPluginRe  = regexp.MustCompile(`/wp-content/plugins/([^/"'?]+)/`)
	wpVersionRe = regexp.MustCompile(`(?i)wordpress\s*([0-9][0-9.]*)`)
)

// DetectIntegrations matches script sources and inline markup against the
// known marker tables.
func DetectIntegrations(p page.RenderedPage) Integrations {
	html := p.HTML()
	scripts := p.Scripts()
	return Integrations{
		Analytics: matchMarkers(analyticsMarkers, scripts, html),
		Pixels:    matchMarkers(pixelMarkers, scripts, html),
	}
}

func matchMarkers(markers []marker, scripts []string, html string) []string {
	out := []string{}
	for _, m := range markers {
		if markerHit(m, scripts, html) {
			out = append(out, m.name)
		}
	}
	return out
}

func markerHit(m marker, scripts []string, html string) bool {
	for _, src := range scripts {
		for _, sub := range m.scriptSubs {
			if strings.Contains(src, sub) {
				return true
			}
		}
	}
	for _, sub := range m.htmlSubs {
		if strings.Contains(html, sub) {
			return true
		}
	}
	return false
}

// WordPress is the platform fingerprint of a WordPress site.
type WordPress struct {
	Theme   string   `json:"theme"`
	Plugins []string `json:"plugins"`
	RESTAPI bool     `json:"rest_api"`
	Version string   `json:"version,omitempty"`
}

// DetectWordPress fingerprints theme, plugins, REST API and generator version
// from the page markup. Theme is the first one referenced.
func DetectWordPress(p page.RenderedPage) WordPress {
	html := p.HTML()
	out := WordPress{
		RESTAPI: strings.Contains(html, "/wp-json"),
		Plugins: []string{},
	}
	if m := wpThemeRe.FindStringSubmatch(html); m != nil {
		out.Theme = m[1]
	}
	seen := map[string]struct{}{}
	for _, m := range wpPluginRe.FindAllStringSubmatch(html, -1) {
		if _, dup := seen[m[1]]; dup {
			continue
		}
		seen[m[1]] = struct{}{}
		out.Plugins = append(out.Plugins, m[1])
	}
	if m := wpVersionRe.FindStringSubmatch(p.Meta("generator")); m != nil {
		out.Version = m[1]
	}
	return out
}
