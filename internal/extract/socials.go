package extract

import (
	"strings"

	"github.com/JakeFAU/site-signals-crawler/internal/page"
)

// socialHosts maps host fragments to platform keys. Order matters for hosts
// containing more than one fragment.
var socialHosts = []struct {
	fragment string
	platform string
}{
	{"facebook.com", "facebook"},
	{"instagram.com", "instagram"},
	{"twitter.com", "x"},
	{"x.com", "x"},
	{"linkedin.com", "linkedin"},
	{"youtube.com", "youtube"},
	{"tiktok.com", "tiktok"},
	{"api.whatsapp.com", "whatsapp"},
	{"wa.me", "whatsapp"},
}

// SocialPlatforms lists every platform key in display order.
var SocialPlatforms = []string{"facebook", "instagram", "x", "linkedin", "youtube", "tiktok", "whatsapp"}

// Socials groups the page's absolute link URLs by social platform. WhatsApp
// click-to-chat links are returned separately as well.
func Socials(p page.RenderedPage) (profiles map[string][]string, whatsapp []string) {
	profiles = map[string][]string{}
	for _, link := range p.Links() {
		if link.Abs == "" {
			continue
		}
		lower := strings.ToLower(link.Abs)
		if strings.Contains(lower, "wa.me") || strings.Contains(lower, "api.whatsapp.com") {
			whatsapp = append(whatsapp, link.Abs)
		}
		if platform := SocialPlatform(link.Abs); platform != "" {
			profiles[platform] = append(profiles[platform], link.Abs)
		}
	}
	return profiles, whatsapp
}

// SocialPlatform returns the platform key for a URL, or "" when it is not a
// known social host.
func SocialPlatform(raw string) string {
	host := hostOf(raw)
	if host == "" {
		return ""
	}
	for _, entry := range socialHosts {
		if host == entry.fragment || strings.HasSuffix(host, "."+entry.fragment) {
			return entry.platform
		}
	}
	return ""
}
