package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/valora-io/valora/internal/common"
)

// StatusHandler exposes health, version and queue statistics
type StatusHandler struct {
	queues []JobQueue
	logger arbor.ILogger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(logger arbor.ILogger, queues ...JobQueue) *StatusHandler {
	return &StatusHandler{
		queues: queues,
		logger: logger,
	}
}

// HealthHandler reports service liveness.
// GET /api/health
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"version":   common.GetVersion(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// QueueStatsHandler reports message counts per durable queue.
// GET /api/queues/stats
func (h *StatusHandler) QueueStatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	stats := make([]map[string]interface{}, 0, len(h.queues))
	for _, q := range h.queues {
		s, err := q.GetStats(r.Context())
		if err != nil {
			h.logger.Warn().Err(err).Str("queue", q.Name()).Msg("Failed to collect queue stats")
			continue
		}
		stats = append(stats, map[string]interface{}{
			"queue_name": s.QueueName,
			"total":      s.Total,
			"pending":    s.Pending,
			"scheduled":  s.Scheduled,
		})
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"queues":    stats,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// NotFoundHandler is the fallback for unmatched API routes
func (h *StatusHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, "endpoint not found")
}
