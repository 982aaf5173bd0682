package models

import "time"

// Project is the parent of crawl runs. The engine only consumes the fields
// below; project CRUD itself belongs to the control plane.
type Project struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	StartURL string        `json:"startUrl"`
	// Domain is the registered apex with the protocol stripped, e.g.
	// "example.com". Internal/external link classification keys off it.
	Domain   string        `json:"domain"`
	Settings CrawlSettings `json:"settings"`
	// Schedule is an optional cron expression; when set, the scheduler
	// enqueues a run on each tick unless one is already active.
	Schedule  string    `json:"schedule,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
