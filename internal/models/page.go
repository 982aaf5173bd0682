package models

import (
	"encoding/json"
	"time"
)

// RedirectHop is one intermediate response in a redirect chain.
type RedirectHop struct {
	URL        string `json:"url"`
	StatusCode int    `json:"statusCode"`
}

// Page is one crawled URL within a run. Uniqueness key is
// (crawlRunId, normalizedUrl); the BFS driver's admission-time dedup keeps
// collisions rare and the store treats them as first-writer-wins.
type Page struct {
	ID                    string             `json:"id"`
	CrawlRunID            string             `json:"crawlRunId"`
	URL                   string             `json:"url"`
	NormalizedURL         string             `json:"normalizedUrl"`
	StatusCode            *int               `json:"statusCode"`
	ContentType           string             `json:"contentType,omitempty"`
	Title                 string             `json:"title,omitempty"`
	MetaDescription       string             `json:"metaDescription,omitempty"`
	H1Count               int                `json:"h1Count"`
	Canonical             string             `json:"canonical,omitempty"`
	RobotsMeta            string             `json:"robotsMeta,omitempty"`
	WordCount             *int               `json:"wordCount"`
	RedirectChain         []RedirectHop      `json:"redirectChain,omitempty"`
	TemplateSignatureHash string             `json:"templateSignatureHash,omitempty"`
	TemplateSignature     *TemplateSignature `json:"templateSignature,omitempty"`
	TemplateID            string             `json:"templateId,omitempty"`
	FetchError            string             `json:"fetchError,omitempty"`
	DiscoveredAt          time.Time          `json:"discoveredAt"`
}

// RedirectChainJSON serializes the redirect chain for its column.
func (p *Page) RedirectChainJSON() (string, error) {
	if len(p.RedirectChain) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(p.RedirectChain)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
