package queue

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/hydrafrog/hydrafrog/internal/interfaces"
	"github.com/hydrafrog/hydrafrog/internal/models"
)

// JobHandler is a function that handles a specific job type
type JobHandler func(ctx context.Context, msg *models.QueueMessage) error

// WorkerPool manages a pool of workers that process queue messages
type WorkerPool struct {
	queue        interfaces.QueueManager
	handlers     map[string]JobHandler
	pollInterval time.Duration
	concurrency  int
	logger       arbor.ILogger
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(queue interfaces.QueueManager, pollInterval time.Duration, concurrency int, logger arbor.ILogger) *WorkerPool {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		queue:        queue,
		handlers:     make(map[string]JobHandler),
		pollInterval: pollInterval,
		concurrency:  concurrency,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// RegisterHandler registers a job type handler
func (wp *WorkerPool) RegisterHandler(jobType string, handler JobHandler) {
	wp.handlers[jobType] = handler
	wp.logger.Debug().
		Str("job_type", jobType).
		Msg("Job handler registered")
}

// Start starts the worker goroutines
func (wp *WorkerPool) Start() error {
	wp.logger.Info().
		Int("concurrency", wp.concurrency).
		Msg("Starting worker pool")

	for i := 0; i < wp.concurrency; i++ {
		go wp.worker(i)
	}
	return nil
}

// Stop signals all workers to exit
func (wp *WorkerPool) Stop() error {
	wp.logger.Info().Msg("Stopping worker pool")
	wp.cancel()
	return nil
}

// worker is the main loop that polls for and processes messages
func (wp *WorkerPool) worker(workerID int) {
	// Stagger worker starts to spread polls across the interval.
	staggerDelay := (wp.pollInterval / time.Duration(wp.concurrency)) * time.Duration(workerID)
	if staggerDelay > 0 {
		time.Sleep(staggerDelay)
	}

	wp.logger.Debug().
		Int("worker_id", workerID).
		Msg("Worker started")

	ticker := time.NewTicker(wp.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug().
				Int("worker_id", workerID).
				Msg("Worker stopped")
			return

		case <-ticker.C:
			if err := wp.processMessage(workerID); err != nil && !errors.Is(err, models.ErrNoMessage) {
				wp.logger.Warn().
					Err(err).
					Int("worker_id", workerID).
					Msg("Error processing message")
			}
		}
	}
}

// processMessage receives and processes a single message. A handler failure
// leaves the message unacked so it redelivers after the visibility timeout.
func (wp *WorkerPool) processMessage(workerID int) error {
	msg, ack, err := wp.queue.Receive(wp.ctx)
	if err != nil {
		return err
	}

	handler, exists := wp.handlers[msg.Type]
	if !exists {
		wp.logger.Error().
			Str("type", msg.Type).
			Str("job_id", msg.JobID).
			Msg("No handler registered for job type")
		// Unknown types can never succeed; ack them away.
		return ack()
	}

	wp.logger.Debug().
		Str("job_id", msg.JobID).
		Str("type", msg.Type).
		Int("worker_id", workerID).
		Msg("Processing message")

	startTime := time.Now()
	handlerErr := handler(wp.ctx, msg)
	duration := time.Since(startTime)

	if handlerErr != nil {
		wp.logger.Error().
			Err(handlerErr).
			Str("job_id", msg.JobID).
			Str("type", msg.Type).
			Dur("duration", duration).
			Int("worker_id", workerID).
			Msg("Job handler failed")
		return handlerErr
	}

	wp.logger.Info().
		Str("job_id", msg.JobID).
		Str("type", msg.Type).
		Dur("duration", duration).
		Int("worker_id", workerID).
		Msg("Job completed")

	if err := ack(); err != nil {
		wp.logger.Warn().
			Err(err).
			Str("job_id", msg.JobID).
			Msg("Failed to ack message after completion")
		return err
	}
	return nil
}
