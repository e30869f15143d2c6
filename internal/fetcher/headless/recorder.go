package headless

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"

	"github.com/JakeFAU/site-signals-crawler/internal/page"
)

// recorder collects target events for one tab. Listener callbacks run on the
// chromedp event goroutine, so all access is locked.
type recorder struct {
	mu     sync.Mutex
	resps  []page.Response
	events []page.ConsoleEvent
}

func newRecorder() *recorder {
	return &recorder{}
}

func (r *recorder) captureEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventResponseReceived:
		r.captureResponse(e)
	case *runtime.EventConsoleAPICalled:
		r.captureConsole(e)
	case *runtime.EventExceptionThrown:
		r.captureException(e)
	}
}

func (r *recorder) captureResponse(e *network.EventResponseReceived) {
	if e == nil || e.Response == nil {
		return
	}
	resp := page.Response{
		URL:      e.Response.URL,
		Host:     hostOf(e.Response.URL),
		Type:     strings.ToLower(string(e.Type)),
		MIMEType: e.Response.MimeType,
		Status:   int(e.Response.Status),
		Size:     contentLength(e.Response.Headers),
	}
	if e.Type == network.ResourceTypeDocument && e.Response.Timing != nil {
		resp.TTFBMillis = ttfbMillis(e.Response.Timing)
	}
	r.mu.Lock()
	r.resps = append(r.resps, resp)
	r.mu.Unlock()
}

func (r *recorder) captureConsole(e *runtime.EventConsoleAPICalled) {
	if e == nil {
		return
	}
	parts := make([]string, 0, len(e.Args))
	for _, arg := range e.Args {
		if arg == nil {
			continue
		}
		switch {
		case arg.Description != "":
			parts = append(parts, arg.Description)
		case len(arg.Value) > 0:
			parts = append(parts, strings.Trim(string(arg.Value), `"`))
		}
	}
	r.mu.Lock()
	r.events = append(r.events, page.ConsoleEvent{Level: string(e.Type), Text: strings.Join(parts, " ")})
	r.mu.Unlock()
}

func (r *recorder) captureException(e *runtime.EventExceptionThrown) {
	if e == nil || e.ExceptionDetails == nil {
		return
	}
	text := e.ExceptionDetails.Text
	if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
		text = fmt.Sprintf("%s %s", text, e.ExceptionDetails.Exception.Description)
	}
	r.mu.Lock()
	r.events = append(r.events, page.ConsoleEvent{Level: "exception", Text: strings.TrimSpace(text)})
	r.mu.Unlock()
}

func (r *recorder) responses() []page.Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]page.Response(nil), r.resps...)
}

func (r *recorder) console() []page.ConsoleEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]page.ConsoleEvent(nil), r.events...)
}

// contentLength reads the content-length header, 0 when absent or invalid.
func contentLength(h network.Headers) int64 {
	for key, value := range h {
		if !strings.EqualFold(key, "content-length") {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(fmt.Sprint(value)), 10, 64)
		if err != nil || n < 0 {
			return 0
		}
		return n
	}
	return 0
}

// ttfbMillis is the time from request sent to response headers received.
func ttfbMillis(t *network.ResourceTiming) int64 {
	ttfb := t.ReceiveHeadersEnd - t.SendEnd
	if t.SendEnd <= 0 || ttfb <= 0 {
		ttfb = t.ReceiveHeadersEnd
	}
	if ttfb < 0 {
		return 0
	}
	return int64(ttfb)
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
