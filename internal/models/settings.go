package models

import (
	"encoding/json"
	"strings"
)

// Default crawl settings, applied wherever a project leaves a field unset.
const (
	DefaultMaxPages   = 1000
	DefaultMaxDepth   = 5
	DefaultThrottleMs = 100
	DefaultUserAgent  = "HydraFrogBot/1.0"
)

// DefaultIgnoreParams are the tracking query parameters stripped during URL
// normalization unless the project overrides the list.
var DefaultIgnoreParams = []string{
	"utm_source", "utm_medium", "utm_campaign", "utm_content", "utm_term",
	"fbclid", "gclid",
}

// CrawlSettings are the per-project knobs the engine honors. A snapshot is
// taken at enqueue time and stored on the run; the engine reads only the
// snapshot so mid-crawl project edits never affect a run in flight.
type CrawlSettings struct {
	MaxPages          int      `json:"maxPages"`
	MaxDepth          int      `json:"maxDepth"`
	IgnoreParams      []string `json:"ignoreParams"`
	ThrottleMs        int      `json:"throttleMs"`
	IncludeSubdomains bool     `json:"includeSubdomains"`
	RespectRobots     bool     `json:"respectRobots"`
	UserAgent         string   `json:"userAgent"`
}

// DefaultCrawlSettings returns settings with every field at its default.
func DefaultCrawlSettings() CrawlSettings {
	return CrawlSettings{
		MaxPages:          DefaultMaxPages,
		MaxDepth:          DefaultMaxDepth,
		IgnoreParams:      append([]string(nil), DefaultIgnoreParams...),
		ThrottleMs:        DefaultThrottleMs,
		IncludeSubdomains: false,
		RespectRobots:     true,
		UserAgent:         DefaultUserAgent,
	}
}

// Normalize coerces out-of-range values back to defaults. MaxPages,
// MaxDepth, and ThrottleMs of zero are meaningful (crawl nothing, seed
// only, no throttle) and are preserved; negatives are coerced.
func (s *CrawlSettings) Normalize() {
	if s.MaxPages < 0 {
		s.MaxPages = DefaultMaxPages
	}
	if s.MaxDepth < 0 {
		s.MaxDepth = DefaultMaxDepth
	}
	if s.IgnoreParams == nil {
		s.IgnoreParams = append([]string(nil), DefaultIgnoreParams...)
	}
	if s.ThrottleMs < 0 {
		s.ThrottleMs = DefaultThrottleMs
	}
	if strings.TrimSpace(s.UserAgent) == "" {
		s.UserAgent = DefaultUserAgent
	}
}

// IgnoreParamSet returns the ignore list as a lower-cased lookup set.
func (s *CrawlSettings) IgnoreParamSet() map[string]struct{} {
	set := make(map[string]struct{}, len(s.IgnoreParams))
	for _, p := range s.IgnoreParams {
		set[strings.ToLower(strings.TrimSpace(p))] = struct{}{}
	}
	return set
}

// ToJSON serializes settings for persistence as the run's snapshot column.
func (s CrawlSettings) ToJSON() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CrawlSettingsFromJSON deserializes settings over the defaults: keys
// absent from the JSON keep their default, keys explicitly present win
// even when zero.
func CrawlSettingsFromJSON(data string) (CrawlSettings, error) {
	s := DefaultCrawlSettings()
	if data != "" {
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			return s, err
		}
	}
	s.Normalize()
	return s, nil
}
