package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/site-signals-crawler/internal/page"
)

// MaxCTALength is the longest clickable text still considered a call to action.
const MaxCTALength = 60

var (
	ctaKeywords = []string{
		"contact", "contacta", "contáctanos", "contactanos", "call", "llama", "llámanos",
		"book", "reserva", "schedule", "agenda", "quote", "cotiza", "presupuesto",
		"demo", "trial", "prueba", "start", "empieza", "comienza", "get started",
		"sign up", "signup", "regístrate", "registrate", "subscribe", "suscríbete",
		"buy", "compra", "order", "pide", "shop", "tienda", "download", "descarga",
		"request", "solicita", "learn more", "más información", "mas informacion",
		"whatsapp", "chat", "escríbenos", "escribenos", "join", "únete",
	}
	ctaRejectPrefixRe = regexp.MustCompile(`(?i)^([a-z][a-z0-9+.-]*://|www\.|tel:|mailto:)`)
	legalKeywords     = []string{"privacidad", "privacy", "terminos", "terms", "cookies", "aviso-legal", "legal"}
)

// Forms returns the page's forms with nil-safe input lists.
func Forms(p page.RenderedPage) []page.Form {
	forms := p.Forms()
	out := make([]page.Form, 0, len(forms))
	for _, f := range forms {
		if f.Method == "" {
			f.Method = "get"
		}
		if f.Inputs == nil {
			f.Inputs = []page.FormInput{}
		}
		out = append(out, f)
	}
	return out
}

// CTA is a call-to-action candidate.
type CTA struct {
	Text string `json:"text"`
	Href string `json:"href,omitempty"`
}

// CTAs returns the visible clickables whose text reads like a call to action,
// deduplicated case-insensitively by text.
func CTAs(p page.RenderedPage) []CTA {
	seen := map[string]struct{}{}
	var out []CTA
	for _, c := range p.Clickables() {
		if !c.Visible {
			continue
		}
		text := strings.TrimSpace(c.Text)
		if !IsCTAText(text) {
			continue
		}
		key := strings.ToLower(text)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, CTA{Text: text, Href: c.Href})
	}
	return out
}

// IsCTAText applies the length, prefix and vocabulary filters to one label.
func IsCTAText(text string) bool {
	if text == "" || utf8.RuneCountInString(text) > MaxCTALength {
		return false
	}
	if ctaRejectPrefixRe.MatchString(text) {
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range ctaKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// IsLegalURL reports whether the URL looks like a privacy, terms or cookies page.
func IsLegalURL(raw string) bool {
	lower := strings.ToLower(raw)
	for _, kw := range legalKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
