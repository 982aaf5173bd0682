package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/hydrafrog/hydrafrog/internal/common"
	"github.com/hydrafrog/hydrafrog/internal/models"
)

func setupTestQueue(t *testing.T, visibilityTimeout string, maxReceive int) *Manager {
	t.Helper()
	manager, err := NewManager(arbor.NewLogger(),
		&common.BadgerConfig{Path: t.TempDir() + "/queue"},
		&common.QueueConfig{
			PollInterval:      "50ms",
			Concurrency:       1,
			VisibilityTimeout: visibilityTimeout,
			MaxReceive:        maxReceive,
			QueueName:         "test_queue",
		})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func testMessage(t *testing.T, runID string) models.QueueMessage {
	t.Helper()
	msg, err := models.NewCrawlMessage(runID, "proj_1")
	require.NoError(t, err)
	return msg
}

func TestQueue_EnqueueReceiveAck(t *testing.T) {
	queue := setupTestQueue(t, "5m", 3)
	ctx := context.Background()

	require.NoError(t, queue.Enqueue(ctx, testMessage(t, "run_1")))

	count, err := queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	msg, ack, err := queue.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run_1", msg.JobID)
	assert.Equal(t, models.JobTypeCrawl, msg.Type)

	payload, err := models.DecodeCrawlPayload(msg)
	require.NoError(t, err)
	assert.Equal(t, "run_1", payload.CrawlRunID)
	assert.Equal(t, "proj_1", payload.ProjectID)

	require.NoError(t, ack())

	count, err = queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestQueue_EmptyReturnsNoMessage(t *testing.T) {
	queue := setupTestQueue(t, "5m", 3)
	_, _, err := queue.Receive(context.Background())
	assert.ErrorIs(t, err, models.ErrNoMessage)
}

func TestQueue_EnqueueSameJobIDIsNoOp(t *testing.T) {
	queue := setupTestQueue(t, "5m", 3)
	ctx := context.Background()

	require.NoError(t, queue.Enqueue(ctx, testMessage(t, "run_1")))
	require.NoError(t, queue.Enqueue(ctx, testMessage(t, "run_1")))

	count, err := queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "re-enqueueing the same run must not duplicate the message")
}

func TestQueue_EnqueueRequiresJobID(t *testing.T) {
	queue := setupTestQueue(t, "5m", 3)
	err := queue.Enqueue(context.Background(), models.QueueMessage{Type: models.JobTypeCrawl})
	assert.Error(t, err)
}

func TestQueue_InFlightMessageIsHidden(t *testing.T) {
	queue := setupTestQueue(t, "5m", 3)
	ctx := context.Background()

	require.NoError(t, queue.Enqueue(ctx, testMessage(t, "run_1")))

	_, _, err := queue.Receive(ctx)
	require.NoError(t, err)

	// Claimed but not acked: invisible until the timeout lapses.
	_, _, err = queue.Receive(ctx)
	assert.ErrorIs(t, err, models.ErrNoMessage)

	count, err := queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "in-flight messages still count")
}

func TestQueue_UnackedMessageIsRedelivered(t *testing.T) {
	queue := setupTestQueue(t, "50ms", 3)
	ctx := context.Background()

	require.NoError(t, queue.Enqueue(ctx, testMessage(t, "run_1")))

	msg, _, err := queue.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, "run_1", msg.JobID)

	// No ack: the message reappears after the visibility timeout.
	var redeliveredID string
	require.Eventually(t, func() bool {
		redelivered, ack, err := queue.Receive(ctx)
		if err != nil {
			return false
		}
		redeliveredID = redelivered.JobID
		ack()
		return true
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, "run_1", redeliveredID)
}

func TestQueue_DeadLettersAfterMaxReceive(t *testing.T) {
	queue := setupTestQueue(t, "10ms", 2)
	ctx := context.Background()

	require.NoError(t, queue.Enqueue(ctx, testMessage(t, "run_poison")))

	for i := 0; i < 2; i++ {
		require.Eventually(t, func() bool {
			_, _, err := queue.Receive(ctx)
			return err == nil
		}, 2*time.Second, 5*time.Millisecond, "delivery %d", i+1)
	}

	// The next attempt finds the message over its receive cap and drops it
	// instead of delivering.
	require.Eventually(t, func() bool {
		if _, _, err := queue.Receive(ctx); err == nil {
			return false
		}
		count, err := queue.Len(ctx)
		return err == nil && count == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestQueue_ReceiveIsFIFO(t *testing.T) {
	queue := setupTestQueue(t, "5m", 3)
	ctx := context.Background()

	require.NoError(t, queue.Enqueue(ctx, testMessage(t, "run_first")))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, queue.Enqueue(ctx, testMessage(t, "run_second")))

	msg, ack, err := queue.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run_first", msg.JobID)
	require.NoError(t, ack())

	msg, ack, err = queue.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run_second", msg.JobID)
	require.NoError(t, ack())
}

func TestQueue_AckAfterRedeliveryIsSafe(t *testing.T) {
	queue := setupTestQueue(t, "30ms", 5)
	ctx := context.Background()

	require.NoError(t, queue.Enqueue(ctx, testMessage(t, "run_1")))

	_, staleAck, err := queue.Receive(ctx)
	require.NoError(t, err)

	var freshAck func() error
	require.Eventually(t, func() bool {
		_, ack, err := queue.Receive(ctx)
		if err != nil {
			return false
		}
		freshAck = ack
		return true
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, freshAck())
	// The first claimer's late ack finds nothing and succeeds quietly.
	assert.NoError(t, staleAck())
}
