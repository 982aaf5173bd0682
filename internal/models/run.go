package models

import (
	"encoding/json"
	"time"
)

// RunStatus represents the lifecycle state of a crawl run
type RunStatus string

const (
	RunStatusQueued   RunStatus = "QUEUED"
	RunStatusRunning  RunStatus = "RUNNING"
	RunStatusDone     RunStatus = "DONE"
	RunStatusFailed   RunStatus = "FAILED"
	RunStatusCanceled RunStatus = "CANCELED"
)

// IsTerminal reports whether the status is a sink state.
// Terminal runs never transition again.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusDone, RunStatusFailed, RunStatusCanceled:
		return true
	}
	return false
}

// IsActive reports whether the run occupies the per-project active slot.
// At most one run per project may be QUEUED or RUNNING at any moment.
func (s RunStatus) IsActive() bool {
	return s == RunStatusQueued || s == RunStatusRunning
}

// CanTransitionTo reports whether the transition s -> next is legal:
// QUEUED -> RUNNING | CANCELED, RUNNING -> DONE | FAILED | CANCELED.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case RunStatusQueued:
		return next == RunStatusRunning || next == RunStatusCanceled
	case RunStatusRunning:
		return next == RunStatusDone || next == RunStatusFailed || next == RunStatusCanceled
	}
	return false
}

// CrawlRun is the unit of work. A run exclusively owns the pages, links,
// issues, and templates carrying its ID.
type CrawlRun struct {
	ID               string        `json:"id"`
	ProjectID        string        `json:"projectId"`
	Status           RunStatus     `json:"status"`
	SettingsSnapshot CrawlSettings `json:"settingsSnapshot"`
	Totals           CrawlTotals   `json:"totals"`
	CreatedAt        time.Time     `json:"createdAt"`
	StartedAt        *time.Time    `json:"startedAt,omitempty"`
	FinishedAt       *time.Time    `json:"finishedAt,omitempty"`
}

// ToJSON serializes the run for logging and diagnostics
func (r *CrawlRun) ToJSON() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
