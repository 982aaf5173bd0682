package models

import "encoding/json"

// TopErrorPage is one entry of totals.topErrorPages: an internal target that
// returned status >= 400, ranked by how many links point at it.
type TopErrorPage struct {
	URL        string `json:"url"`
	StatusCode int    `json:"statusCode"`
	Count      int    `json:"count"`
}

// TopIssueType is one entry of totals.topIssueTypes.
type TopIssueType struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// CrawlTotals are the aggregate statistics persisted on the run by the
// post-processor. The JSON shape is part of the external contract.
type CrawlTotals struct {
	PagesCount               int            `json:"pagesCount"`
	LinksCount               int            `json:"linksCount"`
	InternalLinksCount       int            `json:"internalLinksCount"`
	ExternalLinksCount       int            `json:"externalLinksCount"`
	BrokenInternalLinksCount int            `json:"brokenInternalLinksCount"`
	StatusCodeDistribution   map[string]int `json:"statusCodeDistribution"`
	TopErrorPages            []TopErrorPage `json:"topErrorPages"`
	IssueCountTotal          int            `json:"issueCountTotal"`
	IssueCountByType         map[string]int `json:"issueCountByType"`
	IssueCountBySeverity     map[string]int `json:"issueCountBySeverity"`
	TopIssueTypes            []TopIssueType `json:"topIssueTypes"`
	LastErrorMessage         string         `json:"lastErrorMessage,omitempty"`
}

// NewCrawlTotals returns totals with every collection initialized so the
// serialized form carries {} and [] rather than null.
func NewCrawlTotals() CrawlTotals {
	return CrawlTotals{
		StatusCodeDistribution: map[string]int{},
		TopErrorPages:          []TopErrorPage{},
		IssueCountByType:       map[string]int{},
		IssueCountBySeverity:   map[string]int{},
		TopIssueTypes:          []TopIssueType{},
	}
}

// ToJSON serializes totals for the run row.
func (t CrawlTotals) ToJSON() (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CrawlTotalsFromJSON deserializes totals; empty input yields zeroed totals.
func CrawlTotalsFromJSON(data string) (CrawlTotals, error) {
	t := NewCrawlTotals()
	if data == "" {
		return t, nil
	}
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return t, err
	}
	return t, nil
}
