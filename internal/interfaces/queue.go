package interfaces

import (
	"context"

	"github.com/hydrafrog/hydrafrog/internal/models"
)

// AckFunc acknowledges a received message, removing it from the queue.
// An unacked message becomes visible again after the visibility timeout.
type AckFunc func() error

// QueueManager is the persistent at-least-once job queue between the control
// plane and the engine. Message IDs equal crawl run IDs, so re-enqueueing an
// already queued run is a no-op.
type QueueManager interface {
	Enqueue(ctx context.Context, msg models.QueueMessage) error
	// Receive returns the oldest visible message, or models.ErrNoMessage.
	// Receiving bumps the receive count and hides the message for the
	// visibility timeout; messages over the receive cap are dead-lettered.
	Receive(ctx context.Context) (*models.QueueMessage, AckFunc, error)
	Len(ctx context.Context) (int, error)
	Close() error
}
