package models

import "encoding/json"

// IssueSeverity grades a detected problem.
type IssueSeverity string

const (
	SeverityLow      IssueSeverity = "LOW"
	SeverityMedium   IssueSeverity = "MEDIUM"
	SeverityHigh     IssueSeverity = "HIGH"
	SeverityCritical IssueSeverity = "CRITICAL"
)

// Issue is a detected problem. PageID is nil for global issues whose
// detection spans pages (e.g. duplicate titles).
type Issue struct {
	ID             string                 `json:"id"`
	CrawlRunID     string                 `json:"crawlRunId"`
	PageID         *string                `json:"pageId"`
	Type           string                 `json:"type"`
	Severity       IssueSeverity          `json:"severity"`
	Title          string                 `json:"title"`
	Description    string                 `json:"description"`
	Recommendation string                 `json:"recommendation"`
	Evidence       map[string]interface{} `json:"evidence,omitempty"`
}

// EvidenceJSON serializes the evidence object for its column.
func (i *Issue) EvidenceJSON() (string, error) {
	if len(i.Evidence) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(i.Evidence)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
