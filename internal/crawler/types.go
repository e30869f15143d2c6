package crawler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/JakeFAU/site-signals-crawler/internal/extract"
	"github.com/JakeFAU/site-signals-crawler/internal/page"
)

// JobStatus represents the lifecycle state of a scan job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// Terminal reports whether no further transitions are expected.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed || s == JobStatusCanceled
}

// JobParameters captures per-job knobs requested by the client.
type JobParameters struct {
	Domains       []string `json:"domains"`
	MaxPages      int      `json:"max_pages"`
	PageTimeoutMS int      `json:"page_timeout_ms"`
}

// Job represents the metadata persisted for each submitted scan request.
type Job struct {
	ID         string        `json:"id"`
	Status     JobStatus     `json:"status"`
	Submitted  time.Time     `json:"submitted_at"`
	Started    *time.Time    `json:"started_at,omitempty"`
	Finished   *time.Time    `json:"finished_at,omitempty"`
	ErrorText  string        `json:"error_text,omitempty"`
	Parameters JobParameters `json:"parameters"`
	Counters   JobCounters   `json:"counters"`
}

// JobCounters tracks per-job progress.
type JobCounters struct {
	DomainsSucceeded int `json:"domains_succeeded"`
	DomainsFailed    int `json:"domains_failed"`
	PagesCrawled     int `json:"pages_crawled"`
}

// DomainReport links one scanned domain of a job to its stored report.
type DomainReport struct {
	JobID        string    `json:"job_id"`
	Domain       string    `json:"domain"`
	ReportID     string    `json:"report_id,omitempty"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	BlobURI      string    `json:"blob_uri,omitempty"`
	PagesCrawled int       `json:"pages_crawled"`
	FinishedAt   time.Time `json:"finished_at"`
}

// ReportReadyEvent is published once a domain's report has been stored.
type ReportReadyEvent struct {
	JobID    string `json:"job_id"`
	Domain   string `json:"domain"`
	ReportID string `json:"report_id"`
	Success  bool   `json:"success"`
	BlobURI  string `json:"blob_uri,omitempty"`
}

// Attributes returns the message attributes used for subscription filters.
func (e ReportReadyEvent) Attributes() map[string]string {
	return map[string]string{
		"event":   "report.ready",
		"domain":  e.Domain,
		"job_id":  e.JobID,
		"success": strconv.FormatBool(e.Success),
	}
}

// FetchResponse is the result of a plain (non-rendered) GET used for seeds.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// OK reports a 2xx status.
func (r FetchResponse) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// Result is the output of one domain scan. Field names are part of the
// persisted report format.
type Result struct {
	Domain     string            `json:"domain"`
	StatusCode int               `json:"status_code"`
	SEO        *extract.SEO      `json:"seo"`
	Tech       *extract.Tech     `json:"tech"`
	Security   *extract.Security `json:"security"`
	Site       *SiteSummary      `json:"site"`
	Pages      []PageSnapshot    `json:"pages"`
	Success    bool              `json:"success"`
	Error      *string           `json:"error"`
}

// ErrorText returns the failure message, or "" for a successful scan.
func (r Result) ErrorText() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

// SiteSummary aggregates every successfully rendered page of a crawl.
type SiteSummary struct {
	PagesCrawled  int                  `json:"pages_crawled"`
	Contacts      Contacts             `json:"contacts"`
	Socials       map[string][]string  `json:"socials"`
	FormsFound    int                  `json:"forms_found"`
	Forms         []page.Form          `json:"forms"`
	CTAHighlights []extract.CTA        `json:"cta_highlights"`
	TeamContacts  []extract.Person     `json:"team_contacts"`
	LegalPages    []string             `json:"legal_pages"`
	Integrations  extract.Integrations `json:"integrations"`
	Business      extract.Business     `json:"business"`
	WP            extract.WordPress    `json:"wp"`
	PageTypes     map[string]int       `json:"page_types"`
}

// Contacts holds the deduplicated contact identifiers of a site. Phones are
// international display strings, one per distinct E.164 number.
type Contacts struct {
	Emails       []string        `json:"emails"`
	EmailDetails []extract.Email `json:"email_details"`
	Phones       []string        `json:"phones"`
	PhoneDetails []extract.Phone `json:"phone_details"`
	WhatsApp     []string        `json:"whatsapp"`
}

// PageSnapshot is the per-page record kept in the crawl output.
type PageSnapshot struct {
	URL          string           `json:"url"`
	Status       int              `json:"status"`
	PageType     string           `json:"page_type"`
	SeedType     string           `json:"seed_type"`
	EmailsFound  []string         `json:"emails_found"`
	PhonesFound  []string         `json:"phones_found"`
	JSONLDRaw    []string         `json:"jsonld_raw"`
	FormsCount   int              `json:"forms_count"`
	TeamContacts []extract.Person `json:"team_contacts"`
	CTAs         []extract.CTA    `json:"ctas"`
}
