package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/site-signals-crawler/internal/metrics"
)

var retryBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// retryTransport retries GETs that fail with transient TLS or timeout errors
// or answer with a 5xx status. Slow TLS handshakes are common on small hosts
// serving sitemaps. The last 5xx response is returned as is once retries run out.
type retryTransport struct {
	base    http.RoundTripper
	backoff []time.Duration
}

func newRetryTransport(base http.RoundTripper) *retryTransport {
	return &retryTransport{base: base, backoff: retryBackoff}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("retry transport received nil request")
	}
	if req.Method != http.MethodGet {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("retry transport base roundtrip: %w", err)
		}
		return resp, nil
	}
	maxAttempts := len(t.backoff) + 1
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		last := attempt == maxAttempts-1
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			if resp.StatusCode < http.StatusInternalServerError || last || req.Context().Err() != nil {
				return resp, nil
			}
			drainAndClose(resp)
			lastErr = fmt.Errorf("server error: %s", resp.Status)
		} else {
			lastErr = err
			if !isTransientTLSError(err) || req.Context().Err() != nil {
				return nil, fmt.Errorf("roundtrip non-transient: %w", err)
			}
			if last {
				break
			}
		}
		metrics.ObserveSeedFetchRetry()
		if err := sleepWithContext(req.Context(), t.backoff[attempt]); err != nil {
			return nil, fmt.Errorf("roundtrip backoff sleep: %w", err)
		}
	}
	return nil, fmt.Errorf("roundtrip exhausted retries: %w", lastErr)
}

func drainAndClose(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff sleep context: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func isTransientTLSError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
