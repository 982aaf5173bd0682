package models

// LinkType classifies a link relative to the project's domain.
type LinkType string

const (
	LinkTypeInternal LinkType = "INTERNAL"
	LinkTypeExternal LinkType = "EXTERNAL"
)

// Link is one discovered navigation edge (<a href>). The graph records
// multiplicities: the same edge found twice is stored twice. IsBroken and
// StatusCode stay at their zero values until the post-processor resolves
// internal targets against the run's pages.
type Link struct {
	ID              string   `json:"id"`
	CrawlRunID      string   `json:"crawlRunId"`
	FromPageID      *string  `json:"fromPageId"`
	ToURL           string   `json:"toUrl"`
	ToNormalizedURL string   `json:"toNormalizedUrl,omitempty"`
	LinkType        LinkType `json:"linkType"`
	IsBroken        bool     `json:"isBroken"`
	StatusCode      *int     `json:"statusCode"`
}
