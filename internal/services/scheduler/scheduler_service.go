package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/hydrafrog/hydrafrog/internal/interfaces"
)

// Service schedules recurring crawls. Each project with a cron expression
// gets its own entry; firing enqueues a run through the crawl engine. A
// project whose previous run is still active is skipped, not queued twice.
type Service struct {
	engine   interfaces.CrawlEngine
	projects interfaces.ProjectStorage
	cron     *cron.Cron
	logger   arbor.ILogger

	mu      sync.Mutex
	entries map[string]cron.EntryID // project ID -> cron entry
	running bool
}

// NewService creates a scheduler service
func NewService(engine interfaces.CrawlEngine, projects interfaces.ProjectStorage, logger arbor.ILogger) *Service {
	return &Service{
		engine:   engine,
		projects: projects,
		cron:     cron.New(),
		logger:   logger,
		entries:  make(map[string]cron.EntryID),
	}
}

// Start loads every scheduled project and starts the cron loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	projects, err := s.projects.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("failed to load projects: %w", err)
	}

	registered := 0
	for _, project := range projects {
		if project.Schedule == "" {
			continue
		}
		if err := s.register(project.ID, project.Schedule); err != nil {
			s.logger.Warn().
				Err(err).
				Str("project_id", project.ID).
				Str("schedule", project.Schedule).
				Msg("Skipping project with invalid schedule")
			continue
		}
		registered++
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Int("scheduled_projects", registered).
		Msg("Scheduler started")
	return nil
}

// Stop halts the cron loop, waiting for a firing entry to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info().Msg("Scheduler stopped")
}

// Reschedule replaces (or removes, for an empty expression) a project's
// schedule at runtime.
func (s *Service) Reschedule(projectID, schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[projectID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, projectID)
	}
	if schedule == "" {
		return nil
	}
	return s.register(projectID, schedule)
}

// register must be called with s.mu held.
func (s *Service) register(projectID, schedule string) error {
	entryID, err := s.cron.AddFunc(schedule, func() {
		s.fire(projectID)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", schedule, err)
	}
	s.entries[projectID] = entryID
	return nil
}

// fire enqueues a scheduled run. An already active run is normal when the
// previous crawl outlasts the schedule interval.
func (s *Service) fire(projectID string) {
	ctx := context.Background()

	run, err := s.engine.EnqueueRun(ctx, projectID)
	if err != nil {
		if errors.Is(err, interfaces.ErrRunActive) {
			s.logger.Debug().
				Str("project_id", projectID).
				Msg("Previous run still active, skipping scheduled crawl")
			return
		}
		if errors.Is(err, interfaces.ErrProjectNotFound) {
			s.logger.Warn().
				Str("project_id", projectID).
				Msg("Scheduled project no longer exists, removing schedule")
			s.Reschedule(projectID, "")
			return
		}
		s.logger.Error().
			Err(err).
			Str("project_id", projectID).
			Msg("Failed to enqueue scheduled crawl")
		return
	}

	s.logger.Info().
		Str("project_id", projectID).
		Str("run_id", run.ID).
		Msg("Scheduled crawl enqueued")
}
