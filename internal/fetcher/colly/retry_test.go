package collyfetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-signals-crawler/internal/metrics"
)

type roundTripResult struct {
	resp *http.Response
	err  error
}

type stubRoundTripper struct {
	results []roundTripResult
	calls   int
}

func (s *stubRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	res := s.results[s.calls]
	s.calls++
	return res.resp, res.err
}

func TestRetryTransportGivesUpAfterBackoff(t *testing.T) {
	t.Parallel()
	metrics.Init()

	base := &stubRoundTripper{results: []roundTripResult{
		{err: context.DeadlineExceeded},
		{err: context.DeadlineExceeded},
		{err: context.DeadlineExceeded},
	}}
	transport := &retryTransport{base: base, backoff: []time.Duration{0, 0}}

	req := httptest.NewRequest(http.MethodGet, "https://example.com/sitemap.xml", nil)
	_, err := transport.RoundTrip(req)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 3, base.calls)
}

func TestRetryTransportStopsAfterSuccess(t *testing.T) {
	t.Parallel()
	metrics.Init()

	base := &stubRoundTripper{results: []roundTripResult{
		{err: errors.New("tls: handshake timeout")},
		{resp: httptest.NewRecorder().Result()},
	}}
	transport := &retryTransport{base: base, backoff: []time.Duration{0, 0, 0}}

	req := httptest.NewRequest(http.MethodGet, "https://example.com/robots.txt", nil)
	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, 2, base.calls)
}

func TestRetryTransportNonTransient(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{{err: errors.New("connection refused")}}}
	transport := newRetryTransport(base)

	req := httptest.NewRequest(http.MethodGet, "https://example.com/robots.txt", nil)
	_, err := transport.RoundTrip(req)
	require.Error(t, err)
	require.Equal(t, 1, base.calls)
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func statusResponse(code int, body io.ReadCloser) *http.Response {
	return &http.Response{StatusCode: code, Status: http.StatusText(code), Body: body, Header: http.Header{}}
}

func TestRetryTransportRetriesServerErrors(t *testing.T) {
	t.Parallel()
	metrics.Init()

	first := &closeTracker{Reader: strings.NewReader("busy")}
	base := &stubRoundTripper{results: []roundTripResult{
		{resp: statusResponse(http.StatusServiceUnavailable, first)},
		{resp: statusResponse(http.StatusOK, io.NopCloser(strings.NewReader("<urlset/>")))},
	}}
	transport := &retryTransport{base: base, backoff: []time.Duration{0, 0}}

	req := httptest.NewRequest(http.MethodGet, "https://example.com/sitemap.xml", nil)
	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 2, base.calls)
	require.True(t, first.closed)
}

func TestRetryTransportReturnsLastServerError(t *testing.T) {
	t.Parallel()
	metrics.Init()

	base := &stubRoundTripper{results: []roundTripResult{
		{resp: statusResponse(http.StatusBadGateway, io.NopCloser(strings.NewReader("")))},
		{resp: statusResponse(http.StatusBadGateway, io.NopCloser(strings.NewReader("")))},
		{resp: statusResponse(http.StatusInternalServerError, io.NopCloser(strings.NewReader("down")))},
	}}
	transport := &retryTransport{base: base, backoff: []time.Duration{0, 0}}

	req := httptest.NewRequest(http.MethodGet, "https://example.com/robots.txt", nil)
	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, 3, base.calls)
}

func TestRetryTransportLeavesClientErrorsAlone(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{
		{resp: statusResponse(http.StatusNotFound, io.NopCloser(strings.NewReader("")))},
	}}
	transport := &retryTransport{base: base, backoff: []time.Duration{0, 0}}

	req := httptest.NewRequest(http.MethodGet, "https://example.com/sitemap.xml", nil)
	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, 1, base.calls)
}
