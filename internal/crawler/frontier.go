package crawler

import (
	"container/heap"
	"strings"
)

// Entry is a queued crawl target.
type Entry struct {
	Priority int
	Seq      int
	URL      string
	Label    string
}

type entryHeap []Entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].Seq < h[j].Seq
}
func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)   { *h = append(*h, x.(Entry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Frontier is the per-crawl priority queue of same-site URLs. A URL is
// enqueued at most once and each label is enqueued at most its cap times.
// It is owned by a single crawl and is not safe for concurrent use.
type Frontier struct {
	origin   string
	caps     map[string]int
	queue    entryHeap
	seq      int
	pending  map[string]struct{}
	visited  map[string]struct{}
	enqueued map[string]int
}

// NewFrontier creates a frontier restricted to the host of origin. Labels
// missing from caps fall back to DefaultTypeCaps.
func NewFrontier(origin string, caps map[string]int) *Frontier {
	merged := make(map[string]int, len(DefaultTypeCaps))
	for label, limit := range DefaultTypeCaps {
		merged[label] = limit
	}
	for label, limit := range caps {
		merged[strings.ToLower(label)] = limit
	}
	return &Frontier{
		origin:   origin,
		caps:     merged,
		pending:  map[string]struct{}{},
		visited:  map[string]struct{}{},
		enqueued: map[string]int{},
	}
}

// Enqueue admits rawURL unless it is an asset, off-site, already seen, or its
// label is at cap. It reports whether the URL was queued.
func (f *Frontier) Enqueue(rawURL string) bool {
	return f.push(rawURL, false)
}

// ForceEnqueue queues rawURL even when its label is at cap, without counting
// it against the cap. Used to guarantee the crawl root is attempted.
func (f *Frontier) ForceEnqueue(rawURL string) bool {
	return f.push(rawURL, true)
}

func (f *Frontier) push(rawURL string, force bool) bool {
	key, err := NormalizeURL(rawURL)
	if err != nil || key == "" {
		return false
	}
	if IsAsset(key) || !SameSite(key, f.origin) {
		return false
	}
	if _, seen := f.visited[key]; seen {
		return false
	}
	if _, queued := f.pending[key]; queued {
		return false
	}
	label := Classify(key)
	atCap := f.enqueued[label] >= f.caps[label]
	if atCap && !force {
		return false
	}
	if !atCap {
		f.enqueued[label]++
	}
	f.pending[key] = struct{}{}
	f.seq++
	heap.Push(&f.queue, Entry{Priority: Priority(label), Seq: f.seq, URL: key, Label: label})
	return true
}

// Dequeue pops the highest-priority entry. The caller marks it visited.
func (f *Frontier) Dequeue() (Entry, bool) {
	if f.queue.Len() == 0 {
		return Entry{}, false
	}
	e := heap.Pop(&f.queue).(Entry)
	delete(f.pending, e.URL)
	return e, true
}

// MarkVisited records that rawURL has been attempted.
func (f *Frontier) MarkVisited(rawURL string) {
	if key, err := NormalizeURL(rawURL); err == nil {
		f.visited[key] = struct{}{}
	}
}

// Visited reports whether rawURL has been attempted.
func (f *Frontier) Visited(rawURL string) bool {
	key, err := NormalizeURL(rawURL)
	if err != nil {
		return false
	}
	_, ok := f.visited[key]
	return ok
}

// VisitedCount returns how many distinct URLs were attempted.
func (f *Frontier) VisitedCount() int { return len(f.visited) }

// Len returns the number of pending entries.
func (f *Frontier) Len() int { return f.queue.Len() }

// EnqueuedCount returns how many URLs were ever queued under label.
func (f *Frontier) EnqueuedCount(label string) int { return f.enqueued[label] }

// Cap returns the enqueue cap for label.
func (f *Frontier) Cap(label string) int { return f.caps[label] }
