package common

import (
	"github.com/google/uuid"
)

// Prefixed ID constructors. The prefix makes rows self-describing in logs
// and ad-hoc queries.

// NewProjectID generates a unique project ID with the "proj_" prefix
func NewProjectID() string {
	return "proj_" + uuid.New().String()
}

// NewRunID generates a unique crawl run ID with the "run_" prefix
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// NewPageID generates a unique page ID with the "page_" prefix
func NewPageID() string {
	return "page_" + uuid.New().String()
}

// NewLinkID generates a unique link ID with the "link_" prefix
func NewLinkID() string {
	return "link_" + uuid.New().String()
}

// NewIssueID generates a unique issue ID with the "issue_" prefix
func NewIssueID() string {
	return "issue_" + uuid.New().String()
}

// NewTemplateID generates a unique template ID with the "tmpl_" prefix
func NewTemplateID() string {
	return "tmpl_" + uuid.New().String()
}
