package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydrafrog/hydrafrog/internal/models"
)

func defaultIgnoreSet() map[string]struct{} {
	s := models.DefaultCrawlSettings()
	return s.IgnoreParamSet()
}

func TestNormalize_Basic(t *testing.T) {
	ignore := defaultIgnoreSet()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercase host", "https://EXAMPLE.com/Path", "https://example.com/Path"},
		{"drop fragment", "https://example.com/page#section", "https://example.com/page"},
		{"strip default http port", "http://example.com:80/page", "http://example.com/page"},
		{"strip default https port", "https://example.com:443/page", "https://example.com/page"},
		{"keep custom port", "https://example.com:8443/page", "https://example.com:8443/page"},
		{"empty path becomes root", "https://example.com", "https://example.com/"},
		{"root path stays", "https://example.com/", "https://example.com/"},
		{"strip trailing slash", "https://example.com/about/", "https://example.com/about"},
		{"sort query params", "https://example.com/x?b=2&a=1", "https://example.com/x?a=1&b=2"},
		{"strip tracking params", "https://example.com/x?a=1&utm_source=news&fbclid=abc", "https://example.com/x?a=1"},
		{"strip all params leaves bare path", "https://example.com/x?utm_source=news", "https://example.com/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input, ignore)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalize_Invalid(t *testing.T) {
	ignore := defaultIgnoreSet()

	for _, input := range []string{
		"ftp://example.com/file",
		"mailto:someone@example.com",
		"javascript:void(0)",
		"not a url at all ::",
		"",
	} {
		_, err := Normalize(input, ignore)
		assert.ErrorIs(t, err, ErrInvalidURL, "input %q", input)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	ignore := defaultIgnoreSet()

	inputs := []string{
		"https://Example.com:443/a/b/?z=1&a=2&utm_medium=email#frag",
		"http://example.com",
		"https://example.com/x?b=2&b=1&a=3",
	}
	for _, input := range inputs {
		once, err := Normalize(input, ignore)
		require.NoError(t, err)
		twice, err := Normalize(once, ignore)
		require.NoError(t, err)
		assert.Equal(t, once, twice, "normalize must be idempotent for %q", input)
	}
}

func TestNormalize_CollapsesEquivalentURLs(t *testing.T) {
	ignore := defaultIgnoreSet()

	variants := []string{
		"https://a.test/x?b=2&a=1&utm_source=x",
		"https://a.test/x?a=1&b=2",
		"https://A.TEST/x?a=1&b=2#top",
		"https://a.test:443/x?b=2&a=1",
	}

	first, err := Normalize(variants[0], ignore)
	require.NoError(t, err)
	for _, v := range variants[1:] {
		got, err := Normalize(v, ignore)
		require.NoError(t, err)
		assert.Equal(t, first, got, "variant %q", v)
	}
}

func TestResolveAndNormalize(t *testing.T) {
	ignore := defaultIgnoreSet()

	tests := []struct {
		href     string
		base     string
		expected string
	}{
		{"/about", "https://example.com/page", "https://example.com/about"},
		{"sibling", "https://example.com/dir/page", "https://example.com/dir/sibling"},
		{"../up", "https://example.com/dir/page", "https://example.com/up"},
		{"https://other.com/x", "https://example.com/", "https://other.com/x"},
		{"?a=1", "https://example.com/page", "https://example.com/page?a=1"},
	}

	for _, tt := range tests {
		got, err := ResolveAndNormalize(tt.href, tt.base, ignore)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, got)
	}
}

func TestIsInternal(t *testing.T) {
	assert.True(t, IsInternal("https://a.test/x", "a.test", false))
	assert.True(t, IsInternal("https://A.TEST/x", "a.test", false))
	assert.False(t, IsInternal("https://sub.a.test/x", "a.test", false))
	assert.True(t, IsInternal("https://sub.a.test/x", "a.test", true))
	assert.False(t, IsInternal("https://nota.test/x", "a.test", true))
	assert.False(t, IsInternal("https://b.test/x", "a.test", false))
	// Suffix match must respect label boundaries.
	assert.False(t, IsInternal("https://evil-a.test/x", "a.test", true))
}
