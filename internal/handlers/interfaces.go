package handlers

import (
	"context"
	"encoding/json"

	"github.com/valora-io/valora/internal/models"
	"github.com/valora-io/valora/internal/queue"
)

// JobQueue is the slice of the durable queue the API layer depends on
type JobQueue interface {
	Name() string
	Enqueue(ctx context.Context, msg models.QueueMessage, opts queue.EnqueueOptions) (string, error)
	UpdatePayload(ctx context.Context, messageID string, newPayload json.RawMessage) error
	GetStats(ctx context.Context) (queue.Stats, error)
}
