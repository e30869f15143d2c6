package crawler

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var assetRe = regexp.MustCompile(`(?i)\.(pdf|jpe?g|png|gif|webp|svg|zip|rar|7z|docx?|xlsx?|pptx?)($|\?)`)

// NormalizeURL standardizes a URL to avoid duplicates.
// It lowercases the scheme and host, removes default ports, sorts query
// parameters, drops the fragment and maps an empty path to "/".
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" && u.Host != "" {
		u.Path = "/"
	}

	if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}

	return u.String(), nil
}

// NormalizeDomain turns user input such as "example.com" or
// "https://example.com/path" into a crawl root URL. A scheme is prepended
// when absent.
func NormalizeDomain(domain string) (string, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return "", fmt.Errorf("empty domain")
	}
	lower := strings.ToLower(domain)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		domain = "http://" + domain
	}
	root, err := NormalizeURL(domain)
	if err != nil {
		return "", err
	}
	u, _ := url.Parse(root)
	if u.Hostname() == "" {
		return "", fmt.Errorf("domain %q has no host", domain)
	}
	return root, nil
}

// CleanDomain strips scheme, path and slashes so that job inputs and report
// lookups agree on one spelling of a domain.
func CleanDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "https://")
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	return strings.Trim(d, "/")
}

// IsAsset reports whether the URL points at a document, image or archive.
func IsAsset(rawURL string) bool {
	return assetRe.MatchString(rawURL)
}

// SameSite reports whether rawURL is an http(s) URL on the same host as base.
func SameSite(rawURL, base string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	b, err := url.Parse(base)
	if err != nil {
		return false
	}
	return hostKey(u) != "" && hostKey(u) == hostKey(b)
}

func hostKey(u *url.URL) string {
	host := strings.ToLower(u.Host)
	host = strings.TrimSuffix(host, ":80")
	return strings.TrimSuffix(host, ":443")
}

func hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
