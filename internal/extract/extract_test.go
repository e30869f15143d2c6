package extract

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-signals-crawler/internal/page"
)

func TestEmptyPageYieldsEmptySignals(t *testing.T) {
	t.Parallel()

	p := htmlPage(t, "https://example.com/", `<html><body><p>Nothing here.</p></body></html>`)

	require.Empty(t, Forms(p))
	require.NotNil(t, JSONLDSample(p))
	require.Empty(t, JSONLDSample(p))
	require.Empty(t, Persons(p))
	require.Empty(t, CTAs(p))
	profiles, whatsapp := Socials(p)
	require.Empty(t, profiles)
	require.Empty(t, whatsapp)
	require.Equal(t, LinkStat{}, SEOStats(p).Links)
	require.Equal(t, Integrations{Analytics: []string{}, Pixels: []string{}}, DetectIntegrations(p))
	require.False(t, DetectWordPress(p).RESTAPI)
}

func TestSEOStats(t *testing.T) {
	t.Parallel()

	p := htmlPage(t, "https://example.com/", `<html><head><title>Home</title>
	<meta name="description" content="desc"><meta name="robots" content="index">
	<link rel="canonical" href="https://example.com/"></head>
	<body><h1>Hi</h1><p>one two three</p>
	<a href="/a">a</a><a href="https://other.test/" rel="nofollow noopener">b</a>
	<a href="#top">top</a><a href="javascript:void(0)">js</a><a href="">empty</a>
	<img src="x.png" alt="x"><img src="y.png" alt=" "></body></html>`)

	seo := SEOStats(p)
	require.Equal(t, "Home", seo.Title)
	require.Equal(t, "desc", seo.MetaDescription)
	require.Equal(t, "index", seo.Robots)
	require.Equal(t, "https://example.com/", seo.Canonical)
	require.Equal(t, 1, seo.H1Count)
	require.Equal(t, LinkStat{Total: 2, Internal: 1, External: 1, Nofollow: 1}, seo.Links)
	require.Equal(t, ImgStat{Total: 2, WithoutAlt: 1}, seo.Images)
	require.Positive(t, seo.WordCount)
}

func TestSocials(t *testing.T) {
	t.Parallel()

	p := htmlPage(t, "https://example.com/", `<body>
	<a href="https://www.facebook.com/acme">fb</a>
	<a href="https://twitter.com/acme">tw</a>
	<a href="https://wa.me/14155552671">wa</a>
	<a href="https://netflix.com/">not social</a></body>`)

	profiles, whatsapp := Socials(p)
	require.Equal(t, []string{"https://www.facebook.com/acme"}, profiles["facebook"])
	require.Equal(t, []string{"https://twitter.com/acme"}, profiles["x"])
	require.Equal(t, []string{"https://wa.me/14155552671"}, profiles["whatsapp"])
	require.Equal(t, []string{"https://wa.me/14155552671"}, whatsapp)
	require.Len(t, profiles, 3)
}

func TestCTAs(t *testing.T) {
	t.Parallel()

	p := htmlPage(t, "https://example.com/", `<body>
	<a href="/quote">Get a free quote</a>
	<a href="/quote2">GET A FREE QUOTE</a>
	<button>Book a demo</button>
	<a href="/x">https://example.com/contact</a>
	<a href="tel:123">tel:+1 415 555 2671</a>
	<a href="/about">About the company</a>
	<a href="/long">Contact us for a very long explanation of everything we might possibly do</a>
	<span style="display:none"><a href="/hidden">Contact us</a></span></body>`)

	require.Equal(t, []CTA{
		{Text: "Get a free quote", Href: "https://example.com/quote"},
		{Text: "Book a demo"},
	}, CTAs(p))
}

func TestPersonsFromJSONLD(t *testing.T) {
	t.Parallel()

	p := htmlPage(t, "https://example.com/team", `<head>
	<script type="application/ld+json">{not json</script>
	<script type="application/ld+json">{"@context":"https://schema.org","@graph":[
	  {"@type":"Organization","name":"Acme"},
	  {"@type":["Thing","person"],"name":"Ana Ruiz","jobTitle":"CEO",
	   "contactPoint":{"@type":"ContactPoint","email":"mailto:ana@acme.test","telephone":"+34 600 000 000"},
	   "sameAs":["https://linkedin.com/in/ana"]}]}</script>
	<script type="application/ld+json">[{"@type":"Person","name":"Bo","email":"bo@acme.test"}]</script>
	</head><body></body>`)

	persons := Persons(p)
	require.Len(t, persons, 2)
	require.Equal(t, Person{
		Name:     "Ana Ruiz",
		JobTitle: "CEO",
		Email:    "ana@acme.test",
		Phone:    "+34 600 000 000",
		Profiles: []string{"https://linkedin.com/in/ana"},
		Source:   "https://example.com/team",
	}, persons[0])
	require.Equal(t, "bo@acme.test", persons[1].Email)
	require.Len(t, JSONLDSample(p), 3)
}

func TestPersonsNestedOrderIsStable(t *testing.T) {
	t.Parallel()

	p := htmlPage(t, "https://example.com/about", `<head>
	<script type="application/ld+json">{"@type":"Organization","name":"Acme",
	  "member":{"@type":"Person","name":"Di"},
	  "founder":{"@type":"Person","name":"Ana"},
	  "employee":[{"@type":"Person","name":"Bo"},{"@type":"Person","name":"Cy"}],
	  "@graph":[{"@type":"Person","name":"Ed"}]}</script>
	</head><body></body>`)

	want := []string{"Ed", "Bo", "Cy", "Ana", "Di"}
	for i := 0; i < 50; i++ {
		var names []string
		for _, person := range Persons(p) {
			names = append(names, person.Name)
		}
		require.Equal(t, want, names)
	}
}

func TestClassifyFragments(t *testing.T) {
	t.Parallel()

	text := "We offer plumbing services for homes and offices.\nShort one.\n" +
		"Plans start at $49 per month with no setup fee!" +
		"Our customers say we are the most reliable team in town. " +
		"Visit us at 100 Main Street, Suite 4, Springfield."

	got := ClassifyFragments(text, MaxBusinessPerPage)
	require.Equal(t, []string{"We offer plumbing services for homes and offices"}, got[CategoryServices])
	require.Equal(t, []string{"Plans start at $49 per month with no setup fee"}, got[CategoryPricing])
	require.Equal(t, []string{"Our customers say we are the most reliable team in town"}, got[CategoryTestimonials])
	require.Equal(t, []string{"Visit us at 100 Main Street, Suite 4, Springfield"}, got[CategoryAddresses])
	require.Empty(t, got[CategoryValueProps])
}

func TestClassifyFragmentsCapsPerCategory(t *testing.T) {
	t.Parallel()

	text := ""
	for i := 0; i < 8; i++ {
		text += "We offer a dedicated service number " + string(rune('a'+i)) + ".\n"
	}
	got := ClassifyFragments(text, 5)
	require.Len(t, got[CategoryServices], 5)
	require.Equal(t, "We offer a dedicated service number a", got[CategoryServices][0])
}

func TestIntegrationsAndWordPress(t *testing.T) {
	t.Parallel()

	p := htmlPage(t, "https://example.com/", `<html><head>
	<meta name="generator" content="WordPress 6.4.2">
	<link rel="https://api.w.org/" href="https://example.com/wp-json/">
	<link rel="stylesheet" href="/wp-content/themes/astra/style.css">
	<script src="https://www.googletagmanager.com/gtag/js?id=G-1"></script>
	<script src="/wp-content/plugins/elementor/x.js"></script>
	<script src="/wp-content/plugins/elementor/y.js"></script>
	<script src="/wp-content/plugins/wpforms/z.js"></script>
	<script>!function(f,b,e,v,n,t,s){};fbq('init','1');</script>
	</head><body></body></html>`)

	require.Equal(t, Integrations{Analytics: []string{"google"}, Pixels: []string{"meta"}}, DetectIntegrations(p))
	require.Equal(t, WordPress{
		Theme:   "astra",
		Plugins: []string{"elementor", "wpforms"},
		RESTAPI: true,
		Version: "6.4.2",
	}, DetectWordPress(p))
}

func TestIsLegalURL(t *testing.T) {
	t.Parallel()

	require.True(t, IsLegalURL("https://example.com/politica-de-privacidad"))
	require.True(t, IsLegalURL("https://example.com/Terms-of-Service"))
	require.False(t, IsLegalURL("https://example.com/blog"))
}

func TestNetworkStats(t *testing.T) {
	t.Parallel()

	p := page.Parse("https://example.com/", http.StatusOK, nil, "<body></body>").
		WithResponses([]page.Response{
			{URL: "https://example.com/", Host: "example.com", Type: "Document", Size: 1000, TTFBMillis: 120},
			{URL: "https://example.com/app.js", Host: "example.com", Size: 500},
			{URL: "https://cdn.test/hero.webp?v=2", Host: "cdn.test", Type: "Image", MIMEType: "image/webp", Size: 2000},
			{URL: "https://cdn.test/logo.png", Host: "cdn.test", Size: -1},
			{URL: "https://api.test/v1", Host: "api.test", Type: "Fetch"},
		}).
		WithConsole([]page.ConsoleEvent{{Level: "error", Text: "boom"}, {Level: "log"}})

	tech := NetworkStats(p, "example.com")
	require.Equal(t, 5, tech.Requests.Count)
	require.Equal(t, int64(3500), tech.Requests.TotalBytes)
	require.Equal(t, int64(1500), tech.Requests.FirstPartyBytes)
	require.Equal(t, int64(2000), tech.Requests.ThirdPartyBytes)
	require.Equal(t, []string{"api.test", "cdn.test"}, tech.Requests.ThirdPartyHosts)
	require.Equal(t, TypeStats{Count: 1, Bytes: 500}, tech.Requests.ByType[ResourceScript])
	require.Equal(t, TypeStats{Count: 2, Bytes: 2000}, tech.Requests.ByType[ResourceImage])
	require.Equal(t, 1, tech.Requests.ByType[ResourceXHR].Count)
	require.Equal(t, map[string]int{"webp": 1, "png": 1}, tech.Images.ByFormat)
	require.Equal(t, int64(120), tech.Timing.TTFB)
	require.Equal(t, 1, tech.ConsoleErrors)
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	h.Set("Strict-Transport-Security", "max-age=63072000")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Server", "nginx")
	p := page.Parse("https://example.com/", http.StatusOK, h, "")

	sec := SecurityHeaders(p)
	require.True(t, sec.HTTPS)
	require.Equal(t, "max-age=63072000", sec.HSTS)
	require.Equal(t, "DENY", sec.XFrameOptions)
	require.Equal(t, "nginx", sec.Server)
	require.Equal(t, 2, sec.HeadersPresent)
	require.False(t, SecurityHeaders(page.Parse("http://example.com/", http.StatusOK, nil, "")).HTTPS)
}
