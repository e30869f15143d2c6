package crawler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrontierPriorityOrdering(t *testing.T) {
	t.Parallel()

	f := NewFrontier("https://example.com/", nil)
	require.True(t, f.Enqueue("https://example.com/blog/post-1"))
	require.True(t, f.Enqueue("https://example.com/contact"))

	first, ok := f.Dequeue()
	require.True(t, ok)
	require.Equal(t, "https://example.com/contact", first.URL)
	require.Equal(t, LabelContact, first.Label)

	second, ok := f.Dequeue()
	require.True(t, ok)
	require.Equal(t, "https://example.com/blog/post-1", second.URL)

	_, ok = f.Dequeue()
	require.False(t, ok)
}

func TestFrontierFIFOWithinLabel(t *testing.T) {
	t.Parallel()

	f := NewFrontier("https://example.com/", nil)
	for i := 1; i <= 3; i++ {
		require.True(t, f.Enqueue(fmt.Sprintf("https://example.com/page-%d", i)))
	}
	for i := 1; i <= 3; i++ {
		e, ok := f.Dequeue()
		require.True(t, ok)
		require.Equal(t, fmt.Sprintf("https://example.com/page-%d", i), e.URL)
	}
}

func TestFrontierRejections(t *testing.T) {
	t.Parallel()

	f := NewFrontier("https://example.com/", nil)
	require.False(t, f.Enqueue("https://example.com/brochure.pdf"))
	require.False(t, f.Enqueue("https://example.com/logo.PNG?v=1"))
	require.False(t, f.Enqueue("https://other.com/contact"))
	require.False(t, f.Enqueue("mailto:hi@example.com"))
	require.False(t, f.Enqueue("javascript:void(0)"))

	require.True(t, f.Enqueue("https://example.com/about"))
	require.False(t, f.Enqueue("https://example.com/about#team"), "pending duplicate")
	require.False(t, f.Enqueue("HTTPS://EXAMPLE.COM:443/about"), "normalized duplicate")

	e, ok := f.Dequeue()
	require.True(t, ok)
	f.MarkVisited(e.URL)
	require.True(t, f.Visited("https://example.com/about"))
	require.False(t, f.Enqueue("https://example.com/about"), "visited")
	require.Equal(t, 1, f.VisitedCount())
}

func TestFrontierCapInvariant(t *testing.T) {
	t.Parallel()

	f := NewFrontier("https://example.com/", map[string]int{LabelBlog: 3})
	accepted := 0
	for i := 0; i < 10; i++ {
		if f.Enqueue(fmt.Sprintf("https://example.com/blog/post-%d", i)) {
			accepted++
		}
	}
	require.Equal(t, 3, accepted)
	require.Equal(t, 3, f.EnqueuedCount(LabelBlog))
	require.Equal(t, 3, f.Len())
	require.Equal(t, DefaultTypeCaps[LabelContact], f.Cap(LabelContact))

	// Draining does not free cap slots.
	for f.Len() > 0 {
		e, _ := f.Dequeue()
		f.MarkVisited(e.URL)
	}
	require.False(t, f.Enqueue("https://example.com/blog/post-99"))
}

func TestFrontierForceEnqueue(t *testing.T) {
	t.Parallel()

	f := NewFrontier("https://example.com/", map[string]int{LabelHome: 0})
	require.False(t, f.Enqueue("https://example.com/"))
	require.True(t, f.ForceEnqueue("https://example.com/"))
	require.Equal(t, 0, f.EnqueuedCount(LabelHome))
	require.Equal(t, 1, f.Len())
}
