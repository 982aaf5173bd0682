package interfaces

import (
	"context"
	"errors"

	"github.com/hydrafrog/hydrafrog/internal/models"
)

// Storage sentinel errors. Callers branch on these with errors.Is.
var (
	ErrProjectNotFound = errors.New("project not found")
	ErrRunNotFound     = errors.New("crawl run not found")
	// ErrRunActive is returned by CreateRun when the project already has a
	// run in QUEUED or RUNNING.
	ErrRunActive = errors.New("project already has an active run")
	// ErrInvalidTransition is returned when a status change would leave a
	// terminal state or skip the lifecycle order.
	ErrInvalidTransition = errors.New("invalid run status transition")
)

// ProjectStorage persists projects. The engine only reads them; writes exist
// for seeding and tests.
type ProjectStorage interface {
	SaveProject(ctx context.Context, project *models.Project) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ListProjects(ctx context.Context) ([]*models.Project, error)
	DeleteProject(ctx context.Context, id string) error
}

// RunStorage persists crawl runs and guards their lifecycle.
type RunStorage interface {
	// CreateRun inserts a QUEUED run, enforcing the at-most-one-active-run
	// invariant per project. Returns ErrRunActive on violation.
	CreateRun(ctx context.Context, run *models.CrawlRun) error
	GetRun(ctx context.Context, id string) (*models.CrawlRun, error)
	// GetRunStatus is the cheap status probe the BFS driver polls for
	// cooperative cancellation.
	GetRunStatus(ctx context.Context, id string) (models.RunStatus, error)
	// TransitionRun moves the run to the given status, stamping startedAt /
	// finishedAt as appropriate. Terminal states are sinks; illegal moves
	// return ErrInvalidTransition.
	TransitionRun(ctx context.Context, id string, to models.RunStatus) error
	SetRunTotals(ctx context.Context, id string, totals models.CrawlTotals) error
	ListRunsByProject(ctx context.Context, projectID string) ([]*models.CrawlRun, error)
	// DeleteRun removes the run and cascades to all child rows.
	DeleteRun(ctx context.Context, id string) error
}

// LinkTarget is a broken-link resolution update computed by the
// post-processor: the link's internal target was crawled and returned the
// given status (>= 400).
type LinkTarget struct {
	LinkID     string
	StatusCode int
}

// CrawlStorage is the narrow seam between the BFS driver / post-processor
// and the relational store. Everything is scoped to one run.
type CrawlStorage interface {
	// WipeRunChildren deletes all issues, links, pages, and templates of the
	// run. Called before the first fetch so job redelivery is idempotent.
	WipeRunChildren(ctx context.Context, runID string) error
	// PersistPageResult writes the page and its issues in one transaction.
	// A (crawlRunId, normalizedUrl) collision is a no-op: first writer wins
	// and the issues of the second writer are discarded with it.
	PersistPageResult(ctx context.Context, page *models.Page, issues []models.Issue) error
	PersistLinks(ctx context.Context, links []models.Link) error
	InsertIssues(ctx context.Context, issues []models.Issue) error
	// MarkLinksBroken sets isBroken and the target status on the given
	// links, batched.
	MarkLinksBroken(ctx context.Context, runID string, targets []LinkTarget) error
	ListPages(ctx context.Context, runID string) ([]*models.Page, error)
	ListLinks(ctx context.Context, runID string) ([]*models.Link, error)
	ListIssues(ctx context.Context, runID string) ([]*models.Issue, error)
	// UpsertTemplate writes a template cluster keyed on
	// (crawlRunId, signatureHash) and returns its ID.
	UpsertTemplate(ctx context.Context, tmpl *models.Template) (string, error)
	// AssignPageTemplates back-fills templateId on every page of the run
	// whose signature hash matches.
	AssignPageTemplates(ctx context.Context, runID, signatureHash, templateID string) error
	ListTemplates(ctx context.Context, runID string) ([]*models.Template, error)
}

// StorageManager bundles the storage interfaces over one database.
type StorageManager interface {
	Projects() ProjectStorage
	Runs() RunStorage
	Crawls() CrawlStorage
	Close() error
}
