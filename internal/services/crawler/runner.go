package crawler

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/hydrafrog/hydrafrog/internal/interfaces"
	"github.com/hydrafrog/hydrafrog/internal/models"
)

// Runner executes one crawl job end to end: lifecycle transitions, the
// idempotency wipe, the BFS traversal, and post-processing. It is the
// handler registered for crawl messages on the worker pool.
type Runner struct {
	storage interfaces.StorageManager
	driver  *Driver
	post    *PostProcessor
	logger  arbor.ILogger
}

// NewRunner creates a crawl job runner
func NewRunner(storage interfaces.StorageManager, driver *Driver, post *PostProcessor, logger arbor.ILogger) *Runner {
	return &Runner{
		storage: storage,
		driver:  driver,
		post:    post,
		logger:  logger,
	}
}

// HandleCrawlJob processes a crawl queue message. A nil return acks the
// message; an error leaves it for redelivery, which is safe because the
// wipe at the start of every execution makes retries idempotent.
func (r *Runner) HandleCrawlJob(ctx context.Context, msg *models.QueueMessage) error {
	payload, err := models.DecodeCrawlPayload(msg)
	if err != nil {
		return fmt.Errorf("invalid crawl payload: %w", err)
	}

	run, err := r.storage.Runs().GetRun(ctx, payload.CrawlRunID)
	if err != nil {
		if errors.Is(err, interfaces.ErrRunNotFound) {
			r.logger.Warn().
				Str("run_id", payload.CrawlRunID).
				Msg("Run no longer exists, acking job")
			return nil
		}
		return fmt.Errorf("failed to load run: %w", err)
	}

	// A run canceled while queued, or already finished by an earlier
	// delivery, needs no work.
	if run.Status.IsTerminal() {
		r.logger.Info().
			Str("run_id", run.ID).
			Str("status", string(run.Status)).
			Msg("Run already terminal, acking job")
		return nil
	}

	if err := r.storage.Runs().TransitionRun(ctx, run.ID, models.RunStatusRunning); err != nil {
		if errors.Is(err, interfaces.ErrInvalidTransition) {
			return nil
		}
		return fmt.Errorf("failed to start run: %w", err)
	}

	project, err := r.storage.Projects().GetProject(ctx, run.ProjectID)
	if err != nil {
		return r.failRun(ctx, run, fmt.Errorf("failed to load project: %w", err))
	}

	r.logger.Info().
		Str("run_id", run.ID).
		Str("project_id", project.ID).
		Str("start_url", project.StartURL).
		Msg("Starting crawl")

	// Wipe before the first fetch so at-least-once delivery stays safe.
	if err := r.storage.Crawls().WipeRunChildren(ctx, run.ID); err != nil {
		return r.failRun(ctx, run, fmt.Errorf("failed to wipe prior crawl data: %w", err))
	}

	if err := r.driver.Crawl(ctx, run, project); err != nil {
		return r.failRun(ctx, run, err)
	}

	status, err := r.storage.Runs().GetRunStatus(ctx, run.ID)
	if err != nil {
		return r.failRun(ctx, run, fmt.Errorf("failed to re-read run status: %w", err))
	}
	if status == models.RunStatusCanceled {
		// Cancellation keeps the pages crawled so far and skips
		// post-processing.
		r.logger.Info().
			Str("run_id", run.ID).
			Msg("Run canceled, skipping post-processing")
		return nil
	}

	totals, err := r.post.Run(ctx, run.ID)
	if err != nil {
		return r.failRun(ctx, run, fmt.Errorf("post-processing failed: %w", err))
	}

	if err := r.storage.Runs().TransitionRun(ctx, run.ID, models.RunStatusDone); err != nil {
		if errors.Is(err, interfaces.ErrInvalidTransition) {
			// Raced with a cancel; the terminal state stands.
			return nil
		}
		return fmt.Errorf("failed to finish run: %w", err)
	}

	r.logger.Info().
		Str("run_id", run.ID).
		Int("pages", totals.PagesCount).
		Int("links", totals.LinksCount).
		Int("issues", totals.IssueCountTotal).
		Msg("Crawl complete")
	return nil
}

// failRun records the error on the run and returns it so the queue counts
// the delivery against the receive cap.
func (r *Runner) failRun(ctx context.Context, run *models.CrawlRun, cause error) error {
	r.logger.Error().
		Err(cause).
		Str("run_id", run.ID).
		Msg("Crawl failed")

	totals := run.Totals
	totals.LastErrorMessage = cause.Error()
	if err := r.storage.Runs().SetRunTotals(ctx, run.ID, totals); err != nil {
		r.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to record error on run totals")
	}

	if err := r.storage.Runs().TransitionRun(ctx, run.ID, models.RunStatusFailed); err != nil &&
		!errors.Is(err, interfaces.ErrInvalidTransition) {
		r.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to mark run as failed")
	}
	return cause
}
