package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-signals-crawler/internal/crawler"
	"github.com/JakeFAU/site-signals-crawler/internal/extract"
	"github.com/JakeFAU/site-signals-crawler/internal/report"
)

func seedReport(t *testing.T, env *testEnv, id string, scrapedAt time.Time) report.Report {
	t.Helper()
	seo := extract.SEO{Title: "Acme", WordCount: 250}
	res := crawler.Result{
		Domain:     "https://acme.example/",
		StatusCode: 200,
		SEO:        &seo,
		Tech:       &extract.Tech{},
		Security:   &extract.Security{HTTPS: true},
		Site: &crawler.SiteSummary{
			PagesCrawled: 2,
			Contacts: crawler.Contacts{
				Emails: []string{"sales@acme.example", " info@acme.example", "sales@acme.example"},
				Phones: []string{"+1 650-253-0000"},
			},
		},
		Pages:   []crawler.PageSnapshot{{URL: "https://acme.example/", Status: 200, PageType: "home"}},
		Success: true,
	}
	rep, err := report.Build(res, scrapedAt)
	require.NoError(t, err)
	rep.ID = id
	require.NoError(t, env.reports.SaveReport(context.Background(), rep))
	return rep
}

func TestReports_GetReport(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testConfig(), nil)
	seedReport(t, env, "rep-1", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))

	rec := env.do(http.MethodGet, "/v1/reports/rep-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	require.Equal(t, "acme.example", summary["domain"])
	require.NotContains(t, summary, "pages")

	rec = env.do(http.MethodGet, "/v1/reports/rep-1?full=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var full map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &full))
	require.Contains(t, string(full["seo"]), `"title":"Acme"`)
	require.Contains(t, string(full["pages"]), "acme.example")

	rec = env.do(http.MethodGet, "/v1/reports/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReports_LatestForDomain(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testConfig(), nil)
	seedReport(t, env, "old", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	seedReport(t, env, "new", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	rec := env.do(http.MethodGet, "/v1/domains/ACME.example/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got report.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "new", got.ID)

	rec = env.do(http.MethodGet, "/v1/domains/unknown.example/latest", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReports_GetResult(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testConfig(), nil)
	seedReport(t, env, "rep-1", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))

	rec := env.do(http.MethodGet, "/v1/reports/rep-1/result", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res crawler.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.True(t, res.Success)
	require.NotNil(t, res.Site)
	require.Equal(t, 2, res.Site.PagesCrawled)
	require.Len(t, res.Pages, 1)
}

func TestReports_TrustedContact(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testConfig(), nil)
	seedReport(t, env, "rep-1", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))

	rec := env.do(http.MethodGet, "/v1/reports/rep-1/trusted-contact", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{
		"report_id": "rep-1",
		"options": {
			"emails": ["info@acme.example", "sales@acme.example"],
			"phones": ["+1 650-253-0000"]
		}
	}`, rec.Body.String())
}

func TestReports_StoreUnavailable(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testConfig(), func(d *Deps) { d.Reports = nil })
	rec := env.do(http.MethodGet, "/v1/reports/rep-1", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
