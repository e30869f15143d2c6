package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-signals-crawler/internal/crawler"
)

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><head><title>Acme Plumbing</title></head>
<body><h1>Acme</h1><a href="mailto:Hello@Acme.example">Write to us</a></body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCrawlCommandPrintsResult(t *testing.T) {
	srv := newSite(t)

	out, err := runRoot(t, "crawl", srv.URL, "--engine", "static", "--max-pages", "3", "--page-timeout", "2s")
	require.NoError(t, err)

	var res crawler.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.True(t, res.Success)
	require.NotNil(t, res.SEO)
	require.Equal(t, "Acme Plumbing", res.SEO.Title)
	require.NotNil(t, res.Site)
	require.GreaterOrEqual(t, res.Site.PagesCrawled, 1)
}

func TestCrawlCommandReportToFile(t *testing.T) {
	srv := newSite(t)
	path := filepath.Join(t.TempDir(), "report.json")

	out, err := runRoot(t, "crawl", srv.URL, "--engine", "static", "--report", "-o", path)
	require.NoError(t, err)
	require.Empty(t, out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var full map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &full))
	require.Contains(t, full, "metrics")
	require.Contains(t, full, "seo")
	require.JSONEq(t, `true`, string(full["success"]))
}

func TestCrawlCommandRejectsUnknownEngine(t *testing.T) {
	_, err := runRoot(t, "crawl", "acme.example", "--engine", "lynx")
	require.ErrorContains(t, err, "--engine")
}

func TestCrawlCommandRequiresDomain(t *testing.T) {
	_, err := runRoot(t, "crawl")
	require.Error(t, err)
}

func TestRootRejectsMissingConfigFile(t *testing.T) {
	_, err := runRoot(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "crawl", "acme.example")
	require.ErrorContains(t, err, "load config")
}

func TestResolveRuntimeWithoutInit(t *testing.T) {
	t.Parallel()

	_, err := resolveRuntime(context.Background())
	require.Error(t, err)
}
