// Package report turns a crawl result into the persisted report entity:
// cached headline metrics for cheap listing plus the full result sections as
// JSON blobs, compressed when they grow large.
package report

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/JakeFAU/site-signals-crawler/internal/crawler"
)

// CompressThreshold is the blob length (in characters) above which blobs are
// stored zlib-compressed and base64-encoded.
const CompressThreshold = 10000

// Blob fields.
const (
	FieldSEO      = "seo"
	FieldTech     = "tech"
	FieldSecurity = "security"
	FieldSite     = "site"
	FieldPages    = "pages"
)

// ErrCorruptBlob is returned when a stored blob is neither JSON nor a
// compressed JSON payload.
var ErrCorruptBlob = errors.New("corrupt report blob")

// Store persists reports.
type Store interface {
	SaveReport(ctx context.Context, r Report) error
	GetReport(ctx context.Context, id string) (Report, error)
	LatestReport(ctx context.Context, domain string) (Report, error)
}

// Metrics are the headline numbers cached next to the blobs.
type Metrics struct {
	PagesCrawled        int    `json:"pages_crawled"`
	SEOTitle            string `json:"seo_title"`
	SEOWordCount        int    `json:"seo_word_count"`
	SEOLinksTotal       int    `json:"seo_links_total"`
	SEOImagesTotal      int    `json:"seo_images_total"`
	TechRequestsCount   int    `json:"tech_requests_count"`
	TechTotalBytes      int64  `json:"tech_total_bytes"`
	TechTTFB            int64  `json:"tech_ttfb"`
	ContactsEmailsCount int    `json:"contacts_emails_count"`
	ContactsPhonesCount int    `json:"contacts_phones_count"`
	FormsFound          int    `json:"forms_found"`
}

// Report is one stored scan of a domain.
type Report struct {
	ID           string    `json:"id"`
	Domain       string    `json:"domain"`
	JobID        string    `json:"job_id,omitempty"`
	ScrapedAt    time.Time `json:"scraped_at"`
	StatusCode   int       `json:"status_code"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Metrics      Metrics   `json:"metrics"`
	Compressed   bool      `json:"is_compressed"`

	SEOData      string `json:"-"`
	TechData     string `json:"-"`
	SecurityData string `json:"-"`
	SiteData     string `json:"-"`
	PagesData    string `json:"-"`
}

// Full is a report with its blobs decoded, as served when the caller asks for
// the complete data.
type Full struct {
	Report
	SEO      json.RawMessage `json:"seo"`
	Tech     json.RawMessage `json:"tech"`
	Security json.RawMessage `json:"security"`
	Site     json.RawMessage `json:"site"`
	Pages    json.RawMessage `json:"pages"`
}

// ContactOptions are the candidate contacts a user may mark as trusted.
type ContactOptions struct {
	Emails []string `json:"emails"`
	Phones []string `json:"phones"`
}

// Build assembles a report from a crawl result. The domain is stored in its
// cleaned form. Missing sections (a failed crawl has no site or pages) are
// stored as empty blobs.
func Build(res crawler.Result, now time.Time) (Report, error) {
	r := Report{
		Domain:       crawler.CleanDomain(res.Domain),
		ScrapedAt:    now.UTC(),
		StatusCode:   res.StatusCode,
		Success:      res.Success,
		ErrorMessage: res.ErrorText(),
		Metrics:      metricsOf(res),
	}
	sections := []struct {
		field   string
		present bool
		value   any
		dst     *string
	}{
		{FieldSEO, res.SEO != nil, res.SEO, &r.SEOData},
		{FieldTech, res.Tech != nil, res.Tech, &r.TechData},
		{FieldSecurity, res.Security != nil, res.Security, &r.SecurityData},
		{FieldSite, res.Site != nil, res.Site, &r.SiteData},
		{FieldPages, res.Pages != nil, res.Pages, &r.PagesData},
	}
	for _, sec := range sections {
		if !sec.present {
			continue
		}
		data, compressed, err := encodeBlob(sec.value)
		if err != nil {
			return Report{}, fmt.Errorf("encode %s blob: %w", sec.field, err)
		}
		*sec.dst = data
		if compressed {
			r.Compressed = true
		}
	}
	return r, nil
}

func metricsOf(res crawler.Result) Metrics {
	var m Metrics
	if res.SEO != nil {
		m.SEOTitle = res.SEO.Title
		m.SEOWordCount = res.SEO.WordCount
		m.SEOLinksTotal = res.SEO.Links.Total
		m.SEOImagesTotal = res.SEO.Images.Total
	}
	if res.Tech != nil {
		m.TechRequestsCount = res.Tech.Requests.Count
		m.TechTotalBytes = res.Tech.Requests.TotalBytes
		m.TechTTFB = res.Tech.Timing.TTFB
	}
	if res.Site != nil {
		m.PagesCrawled = res.Site.PagesCrawled
		m.ContactsEmailsCount = len(res.Site.Contacts.Emails)
		m.ContactsPhonesCount = len(res.Site.Contacts.Phones)
		m.FormsFound = res.Site.FormsFound
	}
	return m
}

// Decode returns the JSON of one blob field, or nil when the field is empty.
func (r Report) Decode(field string) (json.RawMessage, error) {
	var raw string
	switch field {
	case FieldSEO:
		raw = r.SEOData
	case FieldTech:
		raw = r.TechData
	case FieldSecurity:
		raw = r.SecurityData
	case FieldSite:
		raw = r.SiteData
	case FieldPages:
		raw = r.PagesData
	default:
		return nil, fmt.Errorf("unknown report field %q", field)
	}
	data, err := decodeBlob(raw, r.Compressed)
	if err != nil {
		return nil, fmt.Errorf("decode %s blob: %w", field, err)
	}
	return data, nil
}

// Full decodes every blob.
func (r Report) Full() (Full, error) {
	out := Full{Report: r}
	targets := []struct {
		field string
		dst   *json.RawMessage
	}{
		{FieldSEO, &out.SEO},
		{FieldTech, &out.Tech},
		{FieldSecurity, &out.Security},
		{FieldSite, &out.Site},
		{FieldPages, &out.Pages},
	}
	for _, t := range targets {
		data, err := r.Decode(t.field)
		if err != nil {
			return Full{}, err
		}
		*t.dst = data
	}
	return out, nil
}

// Frontend rebuilds the crawl result shape from a stored report.
func (r Report) Frontend() (crawler.Result, error) {
	res := crawler.Result{
		Domain:     r.Domain,
		StatusCode: r.StatusCode,
		Success:    r.Success,
	}
	if r.ErrorMessage != "" {
		msg := r.ErrorMessage
		res.Error = &msg
	}
	targets := []struct {
		field string
		dst   any
	}{
		{FieldSEO, &res.SEO},
		{FieldTech, &res.Tech},
		{FieldSecurity, &res.Security},
		{FieldSite, &res.Site},
		{FieldPages, &res.Pages},
	}
	for _, t := range targets {
		data, err := r.Decode(t.field)
		if err != nil {
			return crawler.Result{}, err
		}
		if len(data) == 0 {
			continue
		}
		if err := json.Unmarshal(data, t.dst); err != nil {
			return crawler.Result{}, fmt.Errorf("unmarshal %s blob: %w", t.field, err)
		}
	}
	return res, nil
}

// TrustedContactOptions lists the trimmed, deduplicated and sorted emails and
// phones of a report's site contacts.
func TrustedContactOptions(r Report) (ContactOptions, error) {
	opts := ContactOptions{Emails: []string{}, Phones: []string{}}
	data, err := r.Decode(FieldSite)
	if err != nil {
		return opts, err
	}
	if len(data) == 0 {
		return opts, nil
	}
	var site crawler.SiteSummary
	if err := json.Unmarshal(data, &site); err != nil {
		return opts, fmt.Errorf("unmarshal site blob: %w", err)
	}
	opts.Emails = sortedUnique(site.Contacts.Emails)
	opts.Phones = sortedUnique(site.Contacts.Phones)
	return opts, nil
}

func sortedUnique(values []string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func encodeBlob(v any) (string, bool, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", false, err
	}
	if len(raw) <= CompressThreshold {
		return string(raw), false, nil
	}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return "", false, fmt.Errorf("zlib write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", false, fmt.Errorf("zlib close: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), true, nil
}

// decodeBlob accepts both plain and compressed payloads. The compressed flag
// is per report, so a small blob of a compressed report is still plain JSON.
func decodeBlob(raw string, compressed bool) (json.RawMessage, error) {
	if raw == "" {
		return nil, nil
	}
	if compressed {
		if data, err := inflate(raw); err == nil && json.Valid(data) {
			return data, nil
		}
	}
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw), nil
	}
	if data, err := inflate(raw); err == nil && json.Valid(data) {
		return data, nil
	}
	return nil, ErrCorruptBlob
}

func inflate(raw string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	zr, err := zlib.NewReader(bytes.NewReader(decoded))
	if err != nil {
		return nil, fmt.Errorf("zlib reader: %w", err)
	}
	defer func() { _ = zr.Close() }()
	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("zlib read: %w", err)
	}
	return data, nil
}
