package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/site-signals-crawler/internal/page"
)

const (
	// MinFragmentLength drops fragments too short to carry meaning.
	MinFragmentLength = 25
	// MaxBusinessPerPage caps each category for a single page.
	MaxBusinessPerPage = 5
)

// Business categories.
const (
	CategoryValueProps   = "value_props"
	CategoryServices     = "services"
	CategoryPricing      = "pricing"
	CategoryTestimonials = "testimonials"
	CategoryAddresses    = "addresses"
)

// BusinessCategories lists categories in output order.
var BusinessCategories = []string{
	CategoryValueProps, CategoryServices, CategoryPricing, CategoryTestimonials, CategoryAddresses,
}

var (
	fragmentSplitRe = regexp.MustCompile(`[.!?\n\r]+`)

	businessKeywords = map[string][]string{
		CategoryValueProps: {
			"we help", "our mission", "leading", "trusted", "quality", "experience", "years of",
			"best", "guarantee", "ayudamos", "nuestra misión", "nuestra mision", "líderes",
			"lideres", "calidad", "experiencia", "años de", "garantía", "garantia", "confianza",
		},
		CategoryServices: {
			"service", "we offer", "we provide", "solutions", "consulting", "installation",
			"repair", "maintenance", "servicio", "ofrecemos", "soluciones", "consultoría",
			"consultoria", "instalación", "instalacion", "reparación", "reparacion", "mantenimiento",
		},
		CategoryPricing: {
			"price", "pricing", "per month", "/month", "plan", "free", "discount", "$", "€",
			"precio", "tarifa", "al mes", "/mes", "gratis", "descuento", "desde",
		},
		CategoryTestimonials: {
			"testimonial", "review", "customers say", "clients say", "recommend", "five stars",
			"5 stars", "testimonio", "opiniones", "reseña", "recomiendo", "nuestros clientes",
		},
		CategoryAddresses: {
			"street", "avenue", "suite", "road", "zip code", "calle", "avenida",
			"colonia", "código postal", "codigo postal", "piso", "oficina",
		},
	}
)

// Business holds narrative sentences per category.
type Business map[string][]string

// ExtractBusiness splits the page text into fragments and assigns each to the
// categories whose keywords it contains. Each category keeps at most
// MaxBusinessPerPage fragments in first-seen order.
func ExtractBusiness(p page.RenderedPage) Business {
	return ClassifyFragments(p.Text(), MaxBusinessPerPage)
}

// ClassifyFragments is the text-only core of ExtractBusiness.
func ClassifyFragments(text string, limit int) Business {
	out := Business{}
	for _, category := range BusinessCategories {
		out[category] = []string{}
	}
	seen := map[string]struct{}{}
	for _, raw := range fragmentSplitRe.Split(text, -1) {
		fragment := collapseSpace(raw)
		if utf8.RuneCountInString(fragment) < MinFragmentLength {
			continue
		}
		key := strings.ToLower(fragment)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		for _, category := range BusinessCategories {
			if len(out[category]) >= limit {
				continue
			}
			if containsAny(key, businessKeywords[category]) {
				out[category] = append(out[category], fragment)
			}
		}
	}
	return out
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
