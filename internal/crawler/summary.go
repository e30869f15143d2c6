package crawler

import (
	"strings"

	"github.com/JakeFAU/site-signals-crawler/internal/extract"
	"github.com/JakeFAU/site-signals-crawler/internal/page"
)

// Collection caps applied to the site summary and page snapshots.
const (
	MaxFormsDetail     = 20
	MaxCTAHighlights   = 15
	MaxTeamContacts    = 20
	MaxBusinessPerSite = 10
	MaxPageSamples     = 5
)

// siteAggregate accumulates signals across pages. Every collection keeps
// first-seen order and is deduplicated on insert.
type siteAggregate struct {
	pages      int
	emails     *keyedList[string]
	phones     *keyedList[extract.Phone]
	whatsapp   *keyedList[string]
	socials    map[string]*keyedList[string]
	formsFound int
	forms      []page.Form
	ctas       *keyedList[extract.CTA]
	team       *keyedList[extract.Person]
	legal      *keyedList[string]
	analytics  *keyedList[string]
	pixels     *keyedList[string]
	business   map[string]*keyedList[string]
	wpTheme    string
	wpVersion  string
	wpPlugins  *keyedList[string]
	wpREST     bool
	pageTypes  map[string]int
}

func newSiteAggregate() *siteAggregate {
	agg := &siteAggregate{
		emails:    newKeyedList[string](0),
		phones:    newKeyedList[extract.Phone](0),
		whatsapp:  newKeyedList[string](0),
		socials:   map[string]*keyedList[string]{},
		ctas:      newKeyedList[extract.CTA](MaxCTAHighlights),
		team:      newKeyedList[extract.Person](MaxTeamContacts),
		legal:     newKeyedList[string](0),
		analytics: newKeyedList[string](0),
		pixels:    newKeyedList[string](0),
		business:  map[string]*keyedList[string]{},
		wpPlugins: newKeyedList[string](0),
		pageTypes: map[string]int{},
	}
	for _, platform := range extract.SocialPlatforms {
		agg.socials[platform] = newKeyedList[string](0)
	}
	for _, category := range extract.BusinessCategories {
		agg.business[category] = newKeyedList[string](MaxBusinessPerSite)
	}
	return agg
}

// pageSignals is everything extracted from one page that feeds the aggregate.
type pageSignals struct {
	url          string
	pageType     string
	emails       []string
	phones       []extract.Phone
	whatsapp     []string
	socials      map[string][]string
	forms        []page.Form
	ctas         []extract.CTA
	persons      []extract.Person
	integrations extract.Integrations
	business     extract.Business
	wp           extract.WordPress
}

func (a *siteAggregate) add(sig pageSignals) {
	a.pages++
	a.pageTypes[sig.pageType]++
	for _, e := range sig.emails {
		a.emails.add(strings.ToLower(e), e)
	}
	for _, p := range sig.phones {
		a.phones.add(p.E164, p)
	}
	for _, w := range sig.whatsapp {
		a.whatsapp.add(w, w)
	}
	for platform, links := range sig.socials {
		list, ok := a.socials[platform]
		if !ok {
			list = newKeyedList[string](0)
			a.socials[platform] = list
		}
		for _, l := range links {
			list.add(l, l)
		}
	}
	a.formsFound += len(sig.forms)
	for _, f := range sig.forms {
		if len(a.forms) >= MaxFormsDetail {
			break
		}
		a.forms = append(a.forms, f)
	}
	for _, c := range sig.ctas {
		a.ctas.add(strings.ToLower(c.Text), c)
	}
	for _, p := range sig.persons {
		a.team.add(personKey(p), p)
	}
	if extract.IsLegalURL(sig.url) {
		a.legal.add(sig.url, sig.url)
	}
	for _, name := range sig.integrations.Analytics {
		a.analytics.add(name, name)
	}
	for _, name := range sig.integrations.Pixels {
		a.pixels.add(name, name)
	}
	for category, fragments := range sig.business {
		list, ok := a.business[category]
		if !ok {
			continue
		}
		for _, f := range fragments {
			list.add(strings.ToLower(f), f)
		}
	}
	if a.wpTheme == "" {
		a.wpTheme = sig.wp.Theme
	}
	if a.wpVersion == "" {
		a.wpVersion = sig.wp.Version
	}
	for _, p := range sig.wp.Plugins {
		a.wpPlugins.add(p, p)
	}
	a.wpREST = a.wpREST || sig.wp.RESTAPI
}

func (a *siteAggregate) summary() *SiteSummary {
	s := &SiteSummary{
		PagesCrawled: a.pages,
		Contacts: Contacts{
			Emails:       a.emails.values(),
			EmailDetails: make([]extract.Email, 0, len(a.emails.items)),
			Phones:       make([]string, 0, len(a.phones.items)),
			PhoneDetails: a.phones.values(),
			WhatsApp:     a.whatsapp.values(),
		},
		Socials:       map[string][]string{},
		FormsFound:    a.formsFound,
		Forms:         append([]page.Form{}, a.forms...),
		CTAHighlights: a.ctas.values(),
		TeamContacts:  a.team.values(),
		LegalPages:    a.legal.values(),
		Integrations: extract.Integrations{
			Analytics: a.analytics.values(),
			Pixels:    a.pixels.values(),
		},
		Business: extract.Business{},
		WP: extract.WordPress{
			Theme:   a.wpTheme,
			Plugins: a.wpPlugins.values(),
			RESTAPI: a.wpREST,
			Version: a.wpVersion,
		},
		PageTypes: a.pageTypes,
	}
	for _, e := range s.Contacts.Emails {
		s.Contacts.EmailDetails = append(s.Contacts.EmailDetails, extract.Email{
			Address:    e,
			Confidence: extract.EmailConfidence(e),
		})
	}
	for _, p := range s.Contacts.PhoneDetails {
		s.Contacts.Phones = append(s.Contacts.Phones, p.International)
	}
	for platform, list := range a.socials {
		if len(list.items) > 0 {
			s.Socials[platform] = list.values()
		}
	}
	for category, list := range a.business {
		s.Business[category] = list.values()
	}
	return s
}

func personKey(p extract.Person) string {
	return strings.ToLower(strings.TrimSpace(p.Name)) + "|" +
		strings.ToLower(strings.TrimSpace(p.Email)) + "|" + strings.TrimSpace(p.Phone)
}

// keyedList is an insertion-ordered set with an optional size cap. Items past
// the cap are dropped; limit 0 means unbounded.
type keyedList[T any] struct {
	limit int
	seen  map[string]struct{}
	items []T
}

func newKeyedList[T any](limit int) *keyedList[T] {
	return &keyedList[T]{limit: limit, seen: map[string]struct{}{}}
}

func (l *keyedList[T]) add(key string, item T) {
	if key == "" {
		return
	}
	if _, dup := l.seen[key]; dup {
		return
	}
	if l.limit > 0 && len(l.items) >= l.limit {
		return
	}
	l.seen[key] = struct{}{}
	l.items = append(l.items, item)
}

func (l *keyedList[T]) values() []T {
	out := make([]T, len(l.items))
	copy(out, l.items)
	return out
}

func capSlice[T any](items []T, limit int) []T {
	if len(items) > limit {
		items = items[:limit]
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}
