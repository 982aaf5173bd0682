package crawler

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/temoto/robotstxt"
	"github.com/ternarybob/arbor"
)

// RobotsCache fetches and caches robots.txt per host for the duration of a
// run. A missing or unreachable robots.txt allows everything, matching the
// crawler convention of failing open.
type RobotsCache struct {
	client    *http.Client
	userAgent string
	logger    arbor.ILogger
	groups    map[string]*robotstxt.Group // keyed on scheme://host
}

// NewRobotsCache creates a per-run robots.txt cache.
func NewRobotsCache(timeout time.Duration, userAgent string, logger arbor.ILogger) *RobotsCache {
	return &RobotsCache{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		logger:    logger,
		groups:    make(map[string]*robotstxt.Group),
	}
}

// Allowed reports whether the URL may be fetched under the host's
// robots.txt. Each host is fetched at most once per run.
func (r *RobotsCache) Allowed(ctx context.Context, normalizedURL string) bool {
	u, err := url.Parse(normalizedURL)
	if err != nil {
		return true
	}

	origin := u.Scheme + "://" + u.Host
	group, cached := r.groups[origin]
	if !cached {
		group = r.fetchGroup(ctx, origin)
		r.groups[origin] = group
	}
	if group == nil {
		return true
	}

	path := u.Path
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return group.Test(path)
}

// fetchGroup retrieves and parses robots.txt for an origin. Returns nil for
// allow-all.
func (r *RobotsCache) fetchGroup(ctx context.Context, origin string) *robotstxt.Group {
	robotsURL := origin + "/robots.txt"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug().
			Err(err).
			Str("url", robotsURL).
			Msg("robots.txt unreachable, allowing all")
		return nil
	}
	defer resp.Body.Close()

	robots, err := robotstxt.FromResponse(resp)
	if err != nil {
		r.logger.Debug().
			Str("url", robotsURL).
			Msg("robots.txt unparseable, allowing all")
		return nil
	}

	return robots.FindGroup(r.userAgent)
}
