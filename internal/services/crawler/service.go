package crawler

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/hydrafrog/hydrafrog/internal/common"
	"github.com/hydrafrog/hydrafrog/internal/interfaces"
	"github.com/hydrafrog/hydrafrog/internal/models"
)

// Service is the crawl engine facade: it creates and enqueues runs, cancels
// them, and owns the job runner that the worker pool invokes.
type Service struct {
	storage interfaces.StorageManager
	queue   interfaces.QueueManager
	runner  *Runner
	logger  arbor.ILogger
}

// NewService wires the BFS driver, post-processor, and runner together.
func NewService(storage interfaces.StorageManager, queue interfaces.QueueManager, config *common.CrawlerConfig, logger arbor.ILogger) *Service {
	driver := NewDriver(storage.Crawls(), storage.Runs(), config, logger)
	post := NewPostProcessor(storage.Crawls(), storage.Runs(), logger)
	runner := NewRunner(storage, driver, post, logger)

	return &Service{
		storage: storage,
		queue:   queue,
		runner:  runner,
		logger:  logger,
	}
}

// Runner exposes the job handler for worker pool registration.
func (s *Service) Runner() *Runner {
	return s.runner
}

// EnqueueRun snapshots the project's settings, creates a QUEUED run, and
// enqueues the crawl job. At most one run per project may be queued or
// running; a second enqueue returns ErrRunActive.
func (s *Service) EnqueueRun(ctx context.Context, projectID string) (*models.CrawlRun, error) {
	project, err := s.storage.Projects().GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	// The snapshot is complete at enqueue: every field carries either the
	// project's explicit value or the default, so the engine never consults
	// the project again.
	settings := project.Settings
	settings.Normalize()

	run := &models.CrawlRun{
		ID:               common.NewRunID(),
		ProjectID:        project.ID,
		Status:           models.RunStatusQueued,
		SettingsSnapshot: settings,
		Totals:           models.NewCrawlTotals(),
	}

	if err := s.storage.Runs().CreateRun(ctx, run); err != nil {
		return nil, err
	}

	msg, err := models.NewCrawlMessage(run.ID, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to build crawl message: %w", err)
	}
	if err := s.queue.Enqueue(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to enqueue crawl: %w", err)
	}

	s.logger.Info().
		Str("run_id", run.ID).
		Str("project_id", project.ID).
		Msg("Crawl run enqueued")
	return run, nil
}

// CancelRun flips the run to CANCELED. A queued run never starts; a running
// run stops within the driver's next status poll. Canceling a terminal run
// returns ErrInvalidTransition.
func (s *Service) CancelRun(ctx context.Context, runID string) error {
	err := s.storage.Runs().TransitionRun(ctx, runID, models.RunStatusCanceled)
	if err != nil {
		if errors.Is(err, interfaces.ErrRunNotFound) || errors.Is(err, interfaces.ErrInvalidTransition) {
			return err
		}
		return fmt.Errorf("failed to cancel run: %w", err)
	}

	s.logger.Info().
		Str("run_id", runID).
		Msg("Crawl run canceled")
	return nil
}
