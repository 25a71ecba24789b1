package models

import (
	"encoding/json"
	"errors"
)

// ErrNoMessage is returned when the queue has no leasable message
var ErrNoMessage = errors.New("no messages in queue")

// Job type constants routed by the worker pools
const (
	JobTypeReport = "report"
	JobTypeEmail  = "email"
)

// QueueMessage is the envelope stored in the durable queue.
// Keep it simple - just enough to route the job.
type QueueMessage struct {
	JobID   string          `json:"job_id"`
	Type    string          `json:"type"`    // Job type for handler routing
	Payload json.RawMessage `json:"payload"` // Job-specific data (passed through)
}
