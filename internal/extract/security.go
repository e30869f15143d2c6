package extract

import (
	"net/http"
	"strings"

	"github.com/JakeFAU/site-signals-crawler/internal/page"
)

// Security summarizes the security posture of the root response.
type Security struct {
	HTTPS               bool   `json:"https"`
	HSTS                string `json:"hsts"`
	CSP                 string `json:"csp"`
	XFrameOptions       string `json:"x_frame_options"`
	XContentTypeOptions string `json:"x_content_type_options"`
	ReferrerPolicy      string `json:"referrer_policy"`
	PermissionsPolicy   string `json:"permissions_policy"`
	Server              string `json:"server"`
	HeadersPresent      int    `json:"headers_present"`
}

// SecurityHeaders inspects the main-document response headers of p.
func SecurityHeaders(p page.RenderedPage) Security {
	h := p.Headers()
	if h == nil {
		h = http.Header{}
	}
	out := Security{
		HTTPS:               strings.HasPrefix(strings.ToLower(p.URL()), "https://"),
		HSTS:                h.Get("Strict-Transport-Security"),
		CSP:                 h.Get("Content-Security-Policy"),
		XFrameOptions:       h.Get("X-Frame-Options"),
		XContentTypeOptions: h.Get("X-Content-Type-Options"),
		ReferrerPolicy:      h.Get("Referrer-Policy"),
		PermissionsPolicy:   h.Get("Permissions-Policy"),
		Server:              h.Get("Server"),
	}
	for _, v := range []string{out.HSTS, out.CSP, out.XFrameOptions, out.XContentTypeOptions, out.ReferrerPolicy, out.PermissionsPolicy} {
		if v != "" {
			out.HeadersPresent++
		}
	}
	return out
}
