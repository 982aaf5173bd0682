package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL marks URLs the engine cannot crawl: unparseable strings and
// non-http(s) schemes.
var ErrInvalidURL = errors.New("invalid url")

// Normalize reduces a raw URL to its canonical string form so that URLs
// differing only in fragment, ignored query parameters, default port, host
// case, or query-key order compare equal. Normalize is idempotent.
func Normalize(rawURL string, ignoreParams map[string]struct{}) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}
	return normalizeURL(u, ignoreParams)
}

// ResolveAndNormalize resolves a candidate href against the page it was
// found on, then normalizes the result.
func ResolveAndNormalize(href, baseURL string, ignoreParams map[string]struct{}) (string, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("%w: base %s", ErrInvalidURL, baseURL)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, href)
	}
	return normalizeURL(base.ResolveReference(ref), ignoreParams)
}

func normalizeURL(u *url.URL, ignoreParams map[string]struct{}) (string, error) {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	// Strip default ports.
	host := u.Host
	if scheme == "http" && strings.HasSuffix(host, ":80") {
		u.Host = strings.TrimSuffix(host, ":80")
	} else if scheme == "https" && strings.HasSuffix(host, ":443") {
		u.Host = strings.TrimSuffix(host, ":443")
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: empty host", ErrInvalidURL)
	}

	// Drop ignored params, then re-encode. url.Values.Encode sorts keys and
	// keeps insertion order for repeats, which gives the stable ordering.
	if u.RawQuery != "" {
		params := u.Query()
		for name := range params {
			if _, ignored := ignoreParams[strings.ToLower(name)]; ignored {
				params.Del(name)
			}
		}
		u.RawQuery = params.Encode()
	}

	// Trailing slash is insignificant except at the root. An empty path also
	// becomes "/", collapsing "https://a.test" with "https://a.test/".
	switch u.Path {
	case "", "/":
		u.Path = "/"
	default:
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	u.User = nil
	return u.String(), nil
}

// IsInternal reports whether a normalized URL belongs to the project's
// domain. With includeSubdomains, any host under the base domain counts.
func IsInternal(normalizedURL, baseDomain string, includeSubdomains bool) bool {
	u, err := url.Parse(normalizedURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	base := strings.ToLower(strings.TrimSpace(baseDomain))
	if host == "" || base == "" {
		return false
	}
	if host == base {
		return true
	}
	return includeSubdomains && strings.HasSuffix(host, "."+base)
}
