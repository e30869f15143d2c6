package extract

import (
	"net/url"
	"strings"

	"github.com/JakeFAU/site-signals-crawler/internal/page"
)

// SEO is the per-page SEO summary. Field names are consumed by the report UI.
type SEO struct {
	Title           string   `json:"title"`
	MetaDescription string   `json:"metaDescription"`
	Robots          string   `json:"robots"`
	Canonical       string   `json:"canonical"`
	H1Count         int      `json:"h1Count"`
	WordCount       int      `json:"wordCount"`
	Links           LinkStat `json:"links"`
	Images          ImgStat  `json:"images"`
}

// LinkStat counts anchors by locality.
type LinkStat struct {
	Total    int `json:"total"`
	Internal int `json:"internal"`
	External int `json:"external"`
	Nofollow int `json:"nofollow"`
}

// ImgStat counts images and those lacking alt text.
type ImgStat struct {
	Total      int `json:"total"`
	WithoutAlt int `json:"withoutAlt"`
}

// SEOStats summarizes the page's on-page SEO signals.
func SEOStats(p page.RenderedPage) SEO {
	out := SEO{
		Title:           p.Title(),
		MetaDescription: p.Meta("description"),
		Robots:          p.Meta("robots"),
		Canonical:       p.LinkRel("canonical"),
		H1Count:         p.HeadingCount("h1"),
		WordCount:       len(strings.Fields(p.Text())),
	}

	pageHost := hostOf(p.URL())
	for _, link := range p.Links() {
		href := strings.TrimSpace(link.Href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			continue
		}
		out.Links.Total++
		if strings.Contains(strings.ToLower(link.Rel), "nofollow") {
			out.Links.Nofollow++
		}
		host := hostOf(link.Abs)
		if host == "" || host == pageHost {
			out.Links.Internal++
		} else {
			out.Links.External++
		}
	}

	for _, img := range p.Images() {
		out.Images.Total++
		if strings.TrimSpace(img.Alt) == "" {
			out.Images.WithoutAlt++
		}
	}
	return out
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}
