package crawler

import (
	"net/url"
	"strings"
)

// Page type labels.
const (
	LabelHome    = "home"
	LabelContact = "contact"
	LabelTeam    = "team"
	LabelAbout   = "about"
	LabelPricing = "pricing"
	LabelBlog    = "blog"
	LabelOther   = "other"
)

// Labels lists every page type.
var Labels = []string{LabelHome, LabelContact, LabelTeam, LabelAbout, LabelPricing, LabelBlog, LabelOther}

// labelPriority orders the frontier; lower values are crawled first.
var labelPriority = map[string]int{
	LabelContact: 0,
	LabelTeam:    1,
	LabelAbout:   2,
	LabelHome:    3,
	LabelPricing: 4,
	LabelBlog:    5,
	LabelOther:   6,
}

// DefaultTypeCaps bounds how many URLs of each label may ever be enqueued.
var DefaultTypeCaps = map[string]int{
	LabelContact: 6,
	LabelTeam:    6,
	LabelAbout:   6,
	LabelHome:    2,
	LabelPricing: 4,
	LabelBlog:    8,
	LabelOther:   30,
}

// labelKeywords is scanned in order; the first label with a matching keyword wins.
var labelKeywords = []struct {
	label    string
	keywords []string
}{
	{LabelContact, []string{"contact", "contacto", "contactanos", "contáctanos", "get-in-touch", "escribenos"}},
	{LabelTeam, []string{"team", "equipo", "staff", "our-people", "leadership", "nuestro-equipo"}},
	{LabelAbout, []string{"about", "nosotros", "quienes-somos", "sobre-nosotros", "who-we-are", "empresa"}},
	{LabelPricing, []string{"pricing", "prices", "precios", "tarifas", "plans", "planes"}},
	{LabelBlog, []string{"blog", "news", "noticias", "articles", "articulos"}},
}

// Priority returns the frontier priority of a label.
func Priority(label string) int {
	if p, ok := labelPriority[label]; ok {
		return p
	}
	return labelPriority[LabelOther]
}

// Classify labels a URL from its path alone.
func Classify(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" || path == "/" {
		return LabelHome
	}
	if label, ok := matchLabel(path); ok {
		return label
	}
	return LabelOther
}

// ClassifyText refines the URL label with the page text. A keyword match in
// the text replaces the URL label; no match keeps it.
func ClassifyText(rawURL, text string) string {
	label := Classify(rawURL)
	if text == "" {
		return label
	}
	if byText, ok := matchLabel(strings.ToLower(text)); ok {
		return byText
	}
	return label
}

func matchLabel(haystack string) (string, bool) {
	for _, entry := range labelKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(haystack, kw) {
				return entry.label, true
			}
		}
	}
	return "", false
}
