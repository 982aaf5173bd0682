package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/hydrafrog/hydrafrog/internal/common"
	"github.com/hydrafrog/hydrafrog/internal/interfaces"
	"github.com/hydrafrog/hydrafrog/internal/models"
)

// queueRecord is the internal envelope stored in Badger. The key is the
// message's JobID, which for crawl jobs equals the crawl run ID, so
// re-enqueueing an already queued run is rejected by the key constraint.
type queueRecord struct {
	JobID        string `badgerhold:"key"`
	Type         string
	Payload      []byte
	EnqueuedAt   time.Time
	VisibleAt    time.Time `badgerholdIndex:"VisibleAt"`
	ReceiveCount int
}

// gcInterval is how often the value log garbage collector runs. Badger
// reclaims value-log space only when asked.
const gcInterval = 5 * time.Minute

// Manager implements a persistent at-least-once queue on badgerhold.
type Manager struct {
	store             *badgerhold.Store
	queueName         string
	visibilityTimeout time.Duration
	maxReceive        int
	logger            arbor.ILogger
	gcStop            chan struct{}

	// Receive claims are serialized; concurrency is worker-level, not
	// receive-level, and a single claimer keeps FIFO ordering simple.
	mu sync.Mutex
}

// NewManager opens the Badger-backed queue at the configured path.
func NewManager(logger arbor.ILogger, badgerCfg *common.BadgerConfig, queueCfg *common.QueueConfig) (*Manager, error) {
	if badgerCfg.Path == "" {
		return nil, errors.New("badger path is required")
	}

	if err := os.MkdirAll(filepath.Dir(badgerCfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create queue directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = badgerCfg.Path
	options.ValueDir = badgerCfg.Path
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue store: %w", err)
	}

	visibility := queueCfg.VisibilityTimeoutDuration()
	if visibility <= 0 {
		visibility = 5 * time.Minute
	}
	maxReceive := queueCfg.MaxReceive
	if maxReceive <= 0 {
		maxReceive = 3
	}

	logger.Debug().
		Str("path", badgerCfg.Path).
		Str("queue", queueCfg.QueueName).
		Msg("Queue store opened")

	m := &Manager{
		store:             store,
		queueName:         queueCfg.QueueName,
		visibilityTimeout: visibility,
		maxReceive:        maxReceive,
		logger:            logger,
		gcStop:            make(chan struct{}),
	}
	go m.runGC()
	return m, nil
}

// runGC periodically compacts the value log until Close.
func (m *Manager) runGC() {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.gcStop:
			return
		case <-ticker.C:
			// Each successful pass rewrites one file; keep going until
			// there is nothing left to reclaim.
			for {
				err := m.store.Badger().RunValueLogGC(0.5)
				if err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						m.logger.Debug().Err(err).Msg("Queue value log GC stopped")
					}
					break
				}
			}
		}
	}
}

// Enqueue stores a message keyed on its JobID. Enqueueing a job that is
// already queued or in flight is a no-op.
func (m *Manager) Enqueue(ctx context.Context, msg models.QueueMessage) error {
	if msg.JobID == "" {
		return errors.New("message job ID is required")
	}

	now := time.Now()
	record := queueRecord{
		JobID:      msg.JobID,
		Type:       msg.Type,
		Payload:    msg.Payload,
		EnqueuedAt: now,
		VisibleAt:  now,
	}

	err := m.store.Insert(msg.JobID, record)
	if errors.Is(err, badgerhold.ErrKeyExists) {
		m.logger.Debug().
			Str("job_id", msg.JobID).
			Str("queue", m.queueName).
			Msg("Message already queued, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue message: %w", err)
	}

	m.logger.Debug().
		Str("job_id", msg.JobID).
		Str("type", msg.Type).
		Str("queue", m.queueName).
		Msg("Message enqueued")
	return nil
}

// Receive claims the oldest visible message, hiding it for the visibility
// timeout. Messages that have been received maxReceive times are dropped
// instead of delivered, so a poison message cannot loop forever.
func (m *Manager) Receive(ctx context.Context) (*models.QueueMessage, interfaces.AckFunc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		now := time.Now()

		var candidates []queueRecord
		query := badgerhold.Where("VisibleAt").Le(now).SortBy("EnqueuedAt").Limit(1)
		if err := m.store.Find(&candidates, query); err != nil {
			return nil, nil, fmt.Errorf("failed to query queue: %w", err)
		}
		if len(candidates) == 0 {
			return nil, nil, models.ErrNoMessage
		}

		record := candidates[0]

		if record.ReceiveCount >= m.maxReceive {
			m.logger.Warn().
				Str("job_id", record.JobID).
				Int("receive_count", record.ReceiveCount).
				Msg("Message exceeded receive cap, dropping")
			if err := m.store.Delete(record.JobID, queueRecord{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
				return nil, nil, fmt.Errorf("failed to drop dead message: %w", err)
			}
			continue
		}

		record.ReceiveCount++
		record.VisibleAt = now.Add(m.visibilityTimeout)
		if err := m.store.Update(record.JobID, record); err != nil {
			return nil, nil, fmt.Errorf("failed to claim message: %w", err)
		}

		msg := &models.QueueMessage{
			JobID:   record.JobID,
			Type:    record.Type,
			Payload: record.Payload,
		}
		ack := func() error {
			err := m.store.Delete(record.JobID, queueRecord{})
			if errors.Is(err, badgerhold.ErrNotFound) {
				return nil
			}
			return err
		}
		return msg, ack, nil
	}
}

// Len counts all messages, visible or in flight.
func (m *Manager) Len(ctx context.Context) (int, error) {
	count, err := m.store.Count(&queueRecord{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}
	return int(count), nil
}

// Close stops the GC loop and closes the underlying store
func (m *Manager) Close() error {
	select {
	case <-m.gcStop:
	default:
		close(m.gcStop)
	}
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}
