package extract

import (
	"mime"
	"path"
	"sort"
	"strings"

	"github.com/JakeFAU/site-signals-crawler/internal/page"
)

// Resource buckets.
const (
	ResourceDocument   = "document"
	ResourceScript     = "script"
	ResourceStylesheet = "stylesheet"
	ResourceImage      = "image"
	ResourceFont       = "font"
	ResourceMedia      = "media"
	ResourceXHR        = "xhr"
	ResourceOther      = "other"
)

var extensionBuckets = map[string]string{
	".js": ResourceScript, ".mjs": ResourceScript,
	".css": ResourceStylesheet,
	".png": ResourceImage, ".jpg": ResourceImage, ".jpeg": ResourceImage, ".gif": ResourceImage,
	".webp": ResourceImage, ".svg": ResourceImage, ".avif": ResourceImage, ".ico": ResourceImage,
	".woff": ResourceFont, ".woff2": ResourceFont, ".ttf": ResourceFont, ".otf": ResourceFont, ".eot": ResourceFont,
	".mp4": ResourceMedia, ".webm": ResourceMedia, ".mp3": ResourceMedia, ".ogg": ResourceMedia,
	".json": ResourceXHR,
	".html": ResourceDocument, ".htm": ResourceDocument, ".php": ResourceDocument,
}

// Tech is the network and runtime accounting for one page load.
type Tech struct {
	Requests      Requests `json:"requests"`
	Images        Images   `json:"images"`
	Timing        Timing   `json:"timing"`
	ConsoleErrors int      `json:"console_errors"`
}

// Requests tallies responses by bucket and party.
type Requests struct {
	Count           int                  `json:"count"`
	TotalBytes      int64                `json:"total_bytes"`
	ByType          map[string]TypeStats `json:"by_type"`
	FirstPartyBytes int64                `json:"first_party_bytes"`
	ThirdPartyBytes int64                `json:"third_party_bytes"`
	ThirdPartyHosts []string             `json:"third_party_hosts"`
}

// TypeStats is the count and byte total of one bucket.
type TypeStats struct {
	Count int   `json:"count"`
	Bytes int64 `json:"bytes"`
}

// Images breaks image responses down by format.
type Images struct {
	Count    int              `json:"count"`
	ByFormat map[string]int   `json:"by_format"`
	Bytes    map[string]int64 `json:"bytes_by_format"`
}

// Timing holds document timing in milliseconds.
type Timing struct {
	TTFB int64 `json:"ttfb"`
}

// NetworkStats accounts for every response observed while loading p. Bytes
// are split into first and third party by exact host comparison with rootHost.
func NetworkStats(p page.RenderedPage, rootHost string) Tech {
	rootHost = strings.ToLower(rootHost)
	out := Tech{
		Requests: Requests{ByType: map[string]TypeStats{}, ThirdPartyHosts: []string{}},
		Images:   Images{ByFormat: map[string]int{}, Bytes: map[string]int64{}},
	}
	thirdParty := map[string]struct{}{}
	for _, resp := range p.Responses() {
		bucket := ResourceBucket(resp)
		size := resp.Size
		if size < 0 {
			size = 0
		}
		out.Requests.Count++
		out.Requests.TotalBytes += size
		stats := out.Requests.ByType[bucket]
		stats.Count++
		stats.Bytes += size
		out.Requests.ByType[bucket] = stats

		host := strings.ToLower(resp.Host)
		if host == "" {
			host = hostOf(resp.URL)
		}
		if host == rootHost {
			out.Requests.FirstPartyBytes += size
		} else {
			out.Requests.ThirdPartyBytes += size
			if host != "" {
				thirdParty[host] = struct{}{}
			}
		}

		if bucket == ResourceImage {
			format := imageFormat(resp)
			out.Images.Count++
			out.Images.ByFormat[format]++
			out.Images.Bytes[format] += size
		}
		if bucket == ResourceDocument && out.Timing.TTFB == 0 && resp.TTFBMillis > 0 {
			out.Timing.TTFB = resp.TTFBMillis
		}
	}
	for host := range thirdParty {
		out.Requests.ThirdPartyHosts = append(out.Requests.ThirdPartyHosts, host)
	}
	sort.Strings(out.Requests.ThirdPartyHosts)

	for _, ev := range p.Console() {
		if ev.IsError() {
			out.ConsoleErrors++
		}
	}
	return out
}

// ResourceBucket prefers the renderer's type hint and falls back to the URL
// extension.
func ResourceBucket(resp page.Response) string {
	switch strings.ToLower(resp.Type) {
	case "document":
		return ResourceDocument
	case "script":
		return ResourceScript
	case "stylesheet":
		return ResourceStylesheet
	case "image":
		return ResourceImage
	case "font":
		return ResourceFont
	case "media":
		return ResourceMedia
	case "xhr", "fetch", "eventsource", "websocket":
		return ResourceXHR
	case "":
	default:
		return ResourceOther
	}
	if bucket, ok := extensionBuckets[urlExtension(resp.URL)]; ok {
		return bucket
	}
	return ResourceOther
}

func imageFormat(resp page.Response) string {
	if mt, _, err := mime.ParseMediaType(resp.MIMEType); err == nil {
		if sub, found := strings.CutPrefix(mt, "image/"); found {
			return strings.TrimSuffix(sub, "+xml")
		}
	}
	ext := strings.TrimPrefix(urlExtension(resp.URL), ".")
	switch ext {
	case "":
		return "unknown"
	case "jpg":
		return "jpeg"
	}
	return ext
}

func urlExtension(raw string) string {
	u := raw
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.ToLower(path.Ext(u))
}
