package page

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Document is a RenderedPage backed by a parsed HTML tree. The headless
// adapter fills the browser-only pieces (text, clickables, network, console)
// through the With* helpers; tests build it straight from fixture markup.
type Document struct {
	url      string
	base     *url.URL
	status   int
	headers  http.Header
	html     string
	text     string
	doc      *goquery.Document
	links    []Link
	images   []Image
	forms    []Form
	scripts  []string
	jsonld   []string
	clicks   []Clickable
	network  []Response
	console  []ConsoleEvent
	headings map[string]int
}

// Parse builds a Document from raw markup. Unparseable markup yields an empty
// document rather than an error so extractors still run.
func Parse(rawURL string, status int, headers http.Header, html string) *Document {
	d := &Document{
		url:      rawURL,
		status:   status,
		headers:  headers,
		html:     html,
		headings: map[string]int{},
	}
	if d.headers == nil {
		d.headers = http.Header{}
	}
	if base, err := url.Parse(rawURL); err == nil {
		d.base = base
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader(""))
	}
	d.doc = doc
	d.collect()
	return d
}

// WithText overrides the visible text (the browser's innerText).
func (d *Document) WithText(text string) *Document {
	d.text = text
	return d
}

// WithClickables replaces the attribute-derived clickables with ones whose
// visibility was computed by a browser.
func (d *Document) WithClickables(clicks []Clickable) *Document {
	d.clicks = clicks
	return d
}

// WithResponses attaches the network responses observed during load.
func (d *Document) WithResponses(responses []Response) *Document {
	d.network = responses
	return d
}

// WithConsole attaches console and exception events raised during load.
func (d *Document) WithConsole(events []ConsoleEvent) *Document {
	d.console = events
	return d
}

func (d *Document) collect() {
	d.doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		d.links = append(d.links, Link{
			Href: href,
			Abs:  d.resolve(href),
			Rel:  s.AttrOr("rel", ""),
			Text: collapse(s.Text()),
		})
	})
	d.doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		alt, hasAlt := s.Attr("alt")
		d.images = append(d.images, Image{
			Src:    s.AttrOr("src", ""),
			Alt:    alt,
			HasAlt: hasAlt,
		})
	})
	d.doc.Find("form").Each(func(_ int, s *goquery.Selection) {
		form := Form{
			Action: s.AttrOr("action", ""),
			Method: strings.ToLower(s.AttrOr("method", "get")),
			Inputs: []FormInput{},
		}
		s.Find("input, textarea, select").Each(func(_ int, in *goquery.Selection) {
			kind := in.AttrOr("type", "")
			if kind == "" {
				kind = goquery.NodeName(in)
			}
			form.Inputs = append(form.Inputs, FormInput{
				Name:        in.AttrOr("name", ""),
				Type:        strings.ToLower(kind),
				Placeholder: in.AttrOr("placeholder", ""),
			})
		})
		d.forms = append(d.forms, form)
	})
	d.doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if src := strings.TrimSpace(s.AttrOr("src", "")); src != "" {
			d.scripts = append(d.scripts, d.resolveOr(src))
		}
		if strings.EqualFold(strings.TrimSpace(s.AttrOr("type", "")), "application/ld+json") {
			if body := strings.TrimSpace(s.Text()); body != "" {
				d.jsonld = append(d.jsonld, body)
			}
		}
	})
	d.doc.Find("a, button, input[type=submit], input[type=button]").Each(func(_ int, s *goquery.Selection) {
		tag := goquery.NodeName(s)
		text := collapse(s.Text())
		if tag == "input" {
			text = collapse(s.AttrOr("value", ""))
		}
		d.clicks = append(d.clicks, Clickable{
			Tag:     tag,
			Text:    text,
			Href:    d.resolve(s.AttrOr("href", "")),
			Visible: attributeVisible(s),
		})
	})
	for _, tag := range []string{"h1", "h2", "h3"} {
		d.headings[tag] = d.doc.Find(tag).Length()
	}
}

func (d *Document) resolve(href string) string {
	if href == "" || d.base == nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := d.base.ResolveReference(ref)
	abs.Fragment = ""
	return abs.String()
}

func (d *Document) resolveOr(href string) string {
	if abs := d.resolve(href); abs != "" {
		return abs
	}
	return href
}

// attributeVisible approximates visibility when no browser layout is available.
func attributeVisible(s *goquery.Selection) bool {
	for node := s; node.Length() > 0; node = node.Parent() {
		if _, hidden := node.Attr("hidden"); hidden {
			return false
		}
		if strings.EqualFold(node.AttrOr("aria-hidden", ""), "true") {
			return false
		}
		if strings.EqualFold(node.AttrOr("type", ""), "hidden") {
			return false
		}
		style := strings.ToLower(strings.ReplaceAll(node.AttrOr("style", ""), " ", ""))
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false
		}
	}
	return true
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// URL returns the final page URL.
func (d *Document) URL() string { return d.url }

// Status returns the HTTP status of the main document.
func (d *Document) Status() int { return d.status }

// OK reports a 2xx main-document status.
func (d *Document) OK() bool { return d.status >= 200 && d.status < 300 }

// Headers returns the main-document response headers.
func (d *Document) Headers() http.Header { return d.headers }

// HTML returns the serialized DOM.
func (d *Document) HTML() string { return d.html }

// Text returns the visible text, falling back to the body text of the markup
// with one line per block element.
func (d *Document) Text() string {
	if d.text != "" {
		return d.text
	}
	var b strings.Builder
	for _, n := range d.doc.Find("body").Nodes {
		writeText(&b, n)
	}
	lines := strings.Split(b.String(), "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = collapse(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

var skippedTags = map[string]bool{"script": true, "style": true, "noscript": true, "template": true}

var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "br": true,
	"button": true, "dd": true, "details": true, "div": true, "dl": true, "dt": true,
	"fieldset": true, "figcaption": true, "figure": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "main": true, "nav": true, "ol": true,
	"option": true, "p": true, "pre": true, "section": true, "summary": true,
	"table": true, "td": true, "th": true, "tr": true, "ul": true,
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if skippedTags[n.Data] {
			return
		}
	}
	block := n.Type == html.ElementNode && blockTags[n.Data]
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
	if block {
		b.WriteByte('\n')
	}
}

// Title returns the document title.
func (d *Document) Title() string {
	return collapse(d.doc.Find("title").First().Text())
}

// Meta returns the content of the first <meta name=...> match.
func (d *Document) Meta(name string) string {
	var content string
	d.doc.Find("meta[name]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.EqualFold(s.AttrOr("name", ""), name) {
			content = strings.TrimSpace(s.AttrOr("content", ""))
			return false
		}
		return true
	})
	return content
}

// LinkRel returns the href of the first <link rel=...> match.
func (d *Document) LinkRel(rel string) string {
	var href string
	d.doc.Find("link[rel]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.EqualFold(s.AttrOr("rel", ""), rel) {
			href = strings.TrimSpace(s.AttrOr("href", ""))
			return false
		}
		return true
	})
	return href
}

// HeadingCount returns how many h1/h2/h3 elements the page has.
func (d *Document) HeadingCount(tag string) int { return d.headings[strings.ToLower(tag)] }

// Links returns every anchor with an href.
func (d *Document) Links() []Link { return d.links }

// Images returns every <img>.
func (d *Document) Images() []Image { return d.images }

// Forms returns every <form>.
func (d *Document) Forms() []Form { return d.forms }

// Scripts returns external script URLs.
func (d *Document) Scripts() []string { return d.scripts }

// JSONLD returns the raw bodies of ld+json script blocks.
func (d *Document) JSONLD() []string { return d.jsonld }

// Clickables returns anchors, buttons and submit inputs.
func (d *Document) Clickables() []Clickable { return d.clicks }

// Responses returns the observed network responses.
func (d *Document) Responses() []Response { return d.network }

// Console returns console and exception events.
func (d *Document) Console() []ConsoleEvent { return d.console }
