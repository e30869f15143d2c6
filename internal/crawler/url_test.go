package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	got, err := NormalizeURL("HTTP://Example.COM:80?b=2&a=1#frag")
	require.NoError(t, err)
	require.Equal(t, "http://example.com/?a=1&b=2", got)

	_, err = NormalizeURL("http://[::1")
	require.Error(t, err)
}

func TestNormalizeDomain(t *testing.T) {
	t.Parallel()

	got, err := NormalizeDomain("example.com")
	require.NoError(t, err)
	require.Equal(t, "http://example.com/", got)

	got, err = NormalizeDomain("https://example.com/about")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/about", got)

	_, err = NormalizeDomain("  ")
	require.Error(t, err)
}

func TestCleanDomain(t *testing.T) {
	t.Parallel()

	require.Equal(t, "example.com", CleanDomain("https://Example.com/"))
	require.Equal(t, "example.com", CleanDomain("example.com/path?q=1"))
	require.Equal(t, "example.com", CleanDomain("http://example.com"))
}

func TestSameSite(t *testing.T) {
	t.Parallel()

	require.True(t, SameSite("https://example.com/a", "http://example.com/"))
	require.True(t, SameSite("http://example.com:80/a", "http://example.com/"))
	require.False(t, SameSite("https://www.example.com/a", "https://example.com/"))
	require.False(t, SameSite("ftp://example.com/a", "https://example.com/"))
}
