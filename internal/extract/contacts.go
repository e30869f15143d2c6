// Package extract holds the pure signal extractors run against each rendered
// page. Extractors never fail: missing markup simply yields empty results.
package extract

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"

	"github.com/JakeFAU/site-signals-crawler/internal/page"
)

// DefaultPhoneRegion is used when a phone candidate carries no country prefix.
const DefaultPhoneRegion = "US"

// Email confidence buckets.
const (
	ConfidenceGeneric  = "generic"
	ConfidencePersonal = "personal"
)

var (
	emailRe    = regexp.MustCompile(`(?i)[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phoneRe    = regexp.MustCompile(`(?:\+?\d{1,3}[\s.-]?)?(?:\(?\d{2,4}\)?[\s.-]?)?\d{3,5}[\s.-]?\d{3,5}`)
	nonDigitRe = regexp.MustCompile(`\D`)

	// Addresses that are really asset names such as logo@2x.png.
	assetEmailRe = regexp.MustCompile(`(?i)\.(png|jpe?g|gif|webp|svg|css|js)$`)

	genericLocalParts = map[string]struct{}{
		"info": {}, "contact": {}, "contacto": {}, "sales": {}, "ventas": {}, "hello": {},
		"hola": {}, "support": {}, "soporte": {}, "help": {}, "ayuda": {}, "admin": {},
		"administracion": {}, "office": {}, "oficina": {}, "team": {}, "marketing": {},
		"billing": {}, "facturacion": {}, "noreply": {}, "no-reply": {}, "webmaster": {},
		"rrhh": {}, "jobs": {}, "careers": {}, "empleo": {}, "press": {}, "prensa": {},
		"booking": {}, "reservas": {}, "hr": {}, "mail": {}, "general": {},
	}
)

// Email is a discovered address with its confidence bucket.
type Email struct {
	Address    string `json:"email"`
	Confidence string `json:"confidence"`
}

// Phone is a normalized phone number.
type Phone struct {
	E164          string `json:"e164"`
	International string `json:"international"`
}

// Emails returns the lowercased, deduplicated addresses found in the page text
// and mailto links, in first-seen order.
func Emails(p page.RenderedPage) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(candidate string) {
		addr := strings.ToLower(strings.TrimSpace(candidate))
		if addr == "" || assetEmailRe.MatchString(addr) {
			return
		}
		if _, dup := seen[addr]; dup {
			return
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	for _, m := range emailRe.FindAllString(p.Text(), -1) {
		add(m)
	}
	for _, link := range p.Links() {
		if !strings.HasPrefix(strings.ToLower(link.Href), "mailto:") {
			continue
		}
		for _, m := range emailRe.FindAllString(link.Href, -1) {
			add(m)
		}
	}
	return out
}

// EmailConfidence buckets an address by its local part.
func EmailConfidence(addr string) string {
	local, _, found := strings.Cut(strings.ToLower(addr), "@")
	if !found {
		return ConfidencePersonal
	}
	if _, ok := genericLocalParts[local]; ok {
		return ConfidenceGeneric
	}
	return ConfidencePersonal
}

// Phones returns the normalized phone numbers found in the page text and tel:
// links, deduplicated by E.164 form in first-seen order.
func Phones(p page.RenderedPage, region string) []Phone {
	seen := map[string]struct{}{}
	var out []Phone
	add := func(candidate string) {
		phone, ok := NormalizePhone(candidate, region)
		if !ok {
			return
		}
		if _, dup := seen[phone.E164]; dup {
			return
		}
		seen[phone.E164] = struct{}{}
		out = append(out, phone)
	}
	for _, m := range phoneRe.FindAllString(p.Text(), -1) {
		add(m)
	}
	for _, link := range p.Links() {
		if strings.HasPrefix(strings.ToLower(link.Href), "tel:") {
			add(link.Href[len("tel:"):])
		}
	}
	return out
}

// NormalizePhone validates a raw candidate and returns its canonical forms.
// Candidates with fewer than 8 or more than 15 digits, or only zeros, are
// rejected before any parsing.
func NormalizePhone(candidate, region string) (Phone, bool) {
	digits := nonDigitRe.ReplaceAllString(candidate, "")
	if len(digits) < 8 || len(digits) > 15 || strings.Trim(digits, "0") == "" {
		return Phone{}, false
	}
	if region == "" {
		region = DefaultPhoneRegion
	}
	num, err := phonenumbers.Parse(strings.TrimSpace(candidate), region)
	if err != nil {
		num, err = phonenumbers.Parse("+"+digits, "")
		if err != nil {
			return Phone{}, false
		}
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return Phone{}, false
	}
	return Phone{
		E164:          phonenumbers.Format(num, phonenumbers.E164),
		International: phonenumbers.Format(num, phonenumbers.INTERNATIONAL),
	}, true
}
