package queue

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/valora-io/valora/internal/models"
)

// setupTestQueue creates an in-memory Badger queue and cleanup function
func setupTestQueue(t *testing.T, visibilityTimeout time.Duration, maxReceive int) (*BadgerQueue, func()) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)

	q, err := NewBadgerQueue(db, "test", visibilityTimeout, maxReceive)
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
	}

	return q, cleanup
}

func testMessage(jobType string) models.QueueMessage {
	return models.QueueMessage{
		Type:    jobType,
		Payload: json.RawMessage(`{"key":"value"}`),
	}
}

func TestBadgerQueue_EnqueueReceive(t *testing.T) {
	q, cleanup := setupTestQueue(t, time.Minute, 3)
	defer cleanup()
	ctx := context.Background()

	id, err := q.Enqueue(ctx, testMessage(models.JobTypeReport), EnqueueOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msg, done, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.JobTypeReport, msg.Type)
	assert.Equal(t, id, msg.JobID)

	require.NoError(t, done())

	// Queue is empty after done
	_, _, err = q.Receive(ctx)
	assert.ErrorIs(t, err, models.ErrNoMessage)
}

func TestBadgerQueue_DelayedVisibility(t *testing.T) {
	q, cleanup := setupTestQueue(t, time.Minute, 3)
	defer cleanup()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, testMessage(models.JobTypeEmail), EnqueueOptions{Delay: 150 * time.Millisecond})
	require.NoError(t, err)

	// Invisible before the delay elapses
	_, _, err = q.Receive(ctx)
	assert.ErrorIs(t, err, models.ErrNoMessage)

	time.Sleep(200 * time.Millisecond)

	msg, done, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.JobTypeEmail, msg.Type)
	require.NoError(t, done())
}

func TestBadgerQueue_LeaseExclusivity(t *testing.T) {
	q, cleanup := setupTestQueue(t, time.Minute, 3)
	defer cleanup()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, testMessage(models.JobTypeReport), EnqueueOptions{})
	require.NoError(t, err)

	_, done, err := q.Receive(ctx)
	require.NoError(t, err)

	// Leased message is invisible to other receivers
	_, _, err = q.Receive(ctx)
	assert.ErrorIs(t, err, models.ErrNoMessage)

	require.NoError(t, done())
}

func TestBadgerQueue_RedeliveryAfterVisibilityTimeout(t *testing.T) {
	q, cleanup := setupTestQueue(t, 100*time.Millisecond, 3)
	defer cleanup()
	ctx := context.Background()

	id, err := q.Enqueue(ctx, testMessage(models.JobTypeReport), EnqueueOptions{})
	require.NoError(t, err)

	// Lease without completing
	_, _, err = q.Receive(ctx)
	require.NoError(t, err)

	time.Sleep(150 * time.Millisecond)

	msg, done, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, msg.JobID)
	require.NoError(t, done())
}

func TestBadgerQueue_MaxReceiveDropsPoisonPill(t *testing.T) {
	q, cleanup := setupTestQueue(t, 50*time.Millisecond, 2)
	defer cleanup()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, testMessage(models.JobTypeReport), EnqueueOptions{})
	require.NoError(t, err)

	// Exhaust the receive budget without completing
	for i := 0; i < 2; i++ {
		_, _, err = q.Receive(ctx)
		require.NoError(t, err)
		time.Sleep(80 * time.Millisecond)
	}

	// Third attempt drops the message instead of leasing it
	_, _, err = q.Receive(ctx)
	assert.ErrorIs(t, err, models.ErrNoMessage)

	// The drop committed: the message is gone from stats and is not
	// re-scanned by later polls
	stats, err := q.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)

	_, _, err = q.Receive(ctx)
	assert.ErrorIs(t, err, models.ErrNoMessage)
}

func TestBadgerQueue_UpdatePayload(t *testing.T) {
	q, cleanup := setupTestQueue(t, time.Minute, 3)
	defer cleanup()
	ctx := context.Background()

	id, err := q.Enqueue(ctx, testMessage(models.JobTypeEmail), EnqueueOptions{Delay: time.Hour})
	require.NoError(t, err)

	newPayload := json.RawMessage(`{"key":"patched"}`)
	require.NoError(t, q.UpdatePayload(ctx, id, newPayload))

	// Unknown ID
	err = q.UpdatePayload(ctx, "missing", newPayload)
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestBadgerQueue_UpdatePayloadLeased(t *testing.T) {
	q, cleanup := setupTestQueue(t, time.Minute, 3)
	defer cleanup()
	ctx := context.Background()

	id, err := q.Enqueue(ctx, testMessage(models.JobTypeEmail), EnqueueOptions{})
	require.NoError(t, err)

	_, done, err := q.Receive(ctx)
	require.NoError(t, err)

	err = q.UpdatePayload(ctx, id, json.RawMessage(`{"key":"patched"}`))
	assert.ErrorIs(t, err, ErrMessageLeased)

	require.NoError(t, done())
}

func TestBadgerQueue_UpdatePayloadVisibleAfterPatch(t *testing.T) {
	q, cleanup := setupTestQueue(t, time.Minute, 3)
	defer cleanup()
	ctx := context.Background()

	id, err := q.Enqueue(ctx, testMessage(models.JobTypeEmail), EnqueueOptions{Delay: 100 * time.Millisecond})
	require.NoError(t, err)

	require.NoError(t, q.UpdatePayload(ctx, id, json.RawMessage(`{"key":"patched"}`)))

	time.Sleep(150 * time.Millisecond)

	msg, done, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"patched"}`, string(msg.Payload))
	require.NoError(t, done())
}

func TestBadgerQueue_GetStats(t *testing.T) {
	q, cleanup := setupTestQueue(t, time.Minute, 3)
	defer cleanup()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, testMessage(models.JobTypeReport), EnqueueOptions{})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, testMessage(models.JobTypeEmail), EnqueueOptions{Delay: time.Hour})
	require.NoError(t, err)

	stats, err := q.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Scheduled)
}

func TestWorkerPool_ProcessesJob(t *testing.T) {
	q, cleanup := setupTestQueue(t, time.Minute, 3)
	defer cleanup()
	ctx := context.Background()

	logger := arbor.NewLogger()
	pool := NewWorkerPool(q, 20*time.Millisecond, 2, logger)

	var handled atomic.Int32
	pool.RegisterHandler(models.JobTypeReport, func(ctx context.Context, msg *models.QueueMessage) error {
		handled.Add(1)
		return nil
	})

	_, err := q.Enqueue(ctx, testMessage(models.JobTypeReport), EnqueueOptions{})
	require.NoError(t, err)

	require.NoError(t, pool.Start())
	defer pool.Stop()

	require.Eventually(t, func() bool {
		return handled.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Message is removed after successful handling
	require.Eventually(t, func() bool {
		stats, err := q.GetStats(ctx)
		return err == nil && stats.Total == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorkerPool_HandlerFailureConsumesMessage(t *testing.T) {
	q, cleanup := setupTestQueue(t, time.Minute, 3)
	defer cleanup()
	ctx := context.Background()

	logger := arbor.NewLogger()
	pool := NewWorkerPool(q, 20*time.Millisecond, 1, logger)

	var handled atomic.Int32
	pool.RegisterHandler(models.JobTypeReport, func(ctx context.Context, msg *models.QueueMessage) error {
		handled.Add(1)
		return assert.AnError
	})

	_, err := q.Enqueue(ctx, testMessage(models.JobTypeReport), EnqueueOptions{})
	require.NoError(t, err)

	require.NoError(t, pool.Start())
	defer pool.Stop()

	require.Eventually(t, func() bool {
		stats, err := q.GetStats(ctx)
		return err == nil && stats.Total == 0
	}, 2*time.Second, 10*time.Millisecond)

	// Failed job ran exactly once; no redelivery
	assert.Equal(t, int32(1), handled.Load())
}
