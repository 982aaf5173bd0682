package interfaces

import (
	"context"

	"github.com/hydrafrog/hydrafrog/internal/models"
)

// CrawlEngine is the surface the scheduler and control plane drive.
type CrawlEngine interface {
	// EnqueueRun snapshots the project's settings, creates a QUEUED run, and
	// enqueues its job. Returns ErrRunActive if the project already has one.
	EnqueueRun(ctx context.Context, projectID string) (*models.CrawlRun, error)
	// CancelRun flips the run to CANCELED if still QUEUED, or requests
	// cooperative cancellation if RUNNING. Canceling a terminal run is a
	// no-op.
	CancelRun(ctx context.Context, runID string) error
}
