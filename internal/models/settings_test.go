package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrawlSettingsFromJSON_AbsentKeysKeepDefaults(t *testing.T) {
	settings, err := CrawlSettingsFromJSON(`{"maxDepth": 2}`)
	require.NoError(t, err)

	assert.Equal(t, 2, settings.MaxDepth)
	assert.Equal(t, DefaultMaxPages, settings.MaxPages)
	assert.Equal(t, DefaultThrottleMs, settings.ThrottleMs)
	assert.Equal(t, DefaultUserAgent, settings.UserAgent)
	assert.True(t, settings.RespectRobots)
	assert.Equal(t, DefaultIgnoreParams, settings.IgnoreParams)
}

func TestCrawlSettingsFromJSON_ExplicitZerosWin(t *testing.T) {
	settings, err := CrawlSettingsFromJSON(`{"maxPages": 0, "maxDepth": 0, "throttleMs": 0}`)
	require.NoError(t, err)

	// Zero means crawl nothing / seed only / no throttle, not "use default".
	assert.Equal(t, 0, settings.MaxPages)
	assert.Equal(t, 0, settings.MaxDepth)
	assert.Equal(t, 0, settings.ThrottleMs)
}

func TestCrawlSettingsFromJSON_Empty(t *testing.T) {
	settings, err := CrawlSettingsFromJSON("")
	require.NoError(t, err)
	assert.Equal(t, DefaultCrawlSettings(), settings)
}

func TestCrawlSettingsNormalize_CoercesNegatives(t *testing.T) {
	s := CrawlSettings{MaxPages: -1, MaxDepth: -5, ThrottleMs: -100, UserAgent: "  "}
	s.Normalize()

	assert.Equal(t, DefaultMaxPages, s.MaxPages)
	assert.Equal(t, DefaultMaxDepth, s.MaxDepth)
	assert.Equal(t, DefaultThrottleMs, s.ThrottleMs)
	assert.Equal(t, DefaultUserAgent, s.UserAgent)
	assert.NotNil(t, s.IgnoreParams)
}

func TestIgnoreParamSet_LowercasesAndTrims(t *testing.T) {
	s := CrawlSettings{IgnoreParams: []string{" UTM_Source ", "fbclid"}}
	set := s.IgnoreParamSet()

	_, ok := set["utm_source"]
	assert.True(t, ok)
	_, ok = set["fbclid"]
	assert.True(t, ok)
	assert.Len(t, set, 2)
}

func TestCrawlTotals_JSONShape(t *testing.T) {
	data, err := NewCrawlTotals().ToJSON()
	require.NoError(t, err)

	// Collections serialize as {} and [], never null.
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(data), &raw))
	assert.JSONEq(t, `{}`, string(raw["statusCodeDistribution"]))
	assert.JSONEq(t, `[]`, string(raw["topErrorPages"]))
	assert.JSONEq(t, `[]`, string(raw["topIssueTypes"]))
	assert.NotContains(t, raw, "lastErrorMessage")
}

func TestCrawlTotals_RoundTrip(t *testing.T) {
	totals := NewCrawlTotals()
	totals.PagesCount = 3
	totals.StatusCodeDistribution["200"] = 2
	totals.StatusCodeDistribution["0"] = 1
	totals.TopErrorPages = append(totals.TopErrorPages, TopErrorPage{URL: "https://a.test/x", StatusCode: 404, Count: 2})

	data, err := totals.ToJSON()
	require.NoError(t, err)
	loaded, err := CrawlTotalsFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, totals, loaded)
}

func TestRunStatusTransitions(t *testing.T) {
	assert.True(t, RunStatusQueued.CanTransitionTo(RunStatusRunning))
	assert.True(t, RunStatusQueued.CanTransitionTo(RunStatusCanceled))
	assert.False(t, RunStatusQueued.CanTransitionTo(RunStatusDone))
	assert.True(t, RunStatusRunning.CanTransitionTo(RunStatusDone))
	assert.True(t, RunStatusRunning.CanTransitionTo(RunStatusFailed))
	assert.True(t, RunStatusRunning.CanTransitionTo(RunStatusCanceled))
	assert.False(t, RunStatusDone.CanTransitionTo(RunStatusRunning))
	assert.False(t, RunStatusCanceled.CanTransitionTo(RunStatusRunning))

	assert.True(t, RunStatusDone.IsTerminal())
	assert.True(t, RunStatusFailed.IsTerminal())
	assert.True(t, RunStatusCanceled.IsTerminal())
	assert.False(t, RunStatusRunning.IsTerminal())
	assert.True(t, RunStatusQueued.IsActive())
	assert.True(t, RunStatusRunning.IsActive())
	assert.False(t, RunStatusDone.IsActive())
}
