package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/valora-io/valora/internal/models"
	"github.com/valora-io/valora/internal/queue"
)

// EmailHandler exposes ad-hoc email scheduling and patching of
// still-pending delivery jobs
type EmailHandler struct {
	deliveryQueue JobQueue
	validate      *validator.Validate
	logger        arbor.ILogger
}

// NewEmailHandler creates a new email handler
func NewEmailHandler(deliveryQueue JobQueue, logger arbor.ILogger) *EmailHandler {
	return &EmailHandler{
		deliveryQueue: deliveryQueue,
		validate:      validator.New(),
		logger:        logger,
	}
}

// enqueueEmailRequest wraps an email job with an optional visibility delay
type enqueueEmailRequest struct {
	models.EmailJob
	DelayMs int64 `json:"delay_ms"`
}

// EnqueueEmailHandler schedules an email job, optionally delayed.
// POST /api/emails
func (h *EmailHandler) EnqueueEmailHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req enqueueEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.DelayMs < 0 {
		WriteError(w, http.StatusBadRequest, "delay_ms must not be negative")
		return
	}
	if err := h.validate.Struct(&req.EmailJob); err != nil {
		WriteError(w, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}

	payload, err := json.Marshal(&req.EmailJob)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to marshal job")
		return
	}
	jobID, err := h.deliveryQueue.Enqueue(r.Context(), models.QueueMessage{
		Type:    models.JobTypeEmail,
		Payload: payload,
	}, queue.EnqueueOptions{Delay: time.Duration(req.DelayMs) * time.Millisecond})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to enqueue email job")
		WriteError(w, http.StatusInternalServerError, "failed to enqueue email job")
		return
	}

	h.logger.Info().
		Str("job_id", jobID).
		Str("to", req.ToEmail).
		Int64("delay_ms", req.DelayMs).
		Msg("Email job accepted")

	WriteJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

// PatchEmailHandler replaces the payload of a scheduled email job that
// no worker has leased yet. A leased job returns 409; the send may
// already be in flight and the patch would be lost.
// PATCH /api/emails/{jobId}
func (h *EmailHandler) PatchEmailHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPatch) {
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/emails/")
	if jobID == "" || strings.Contains(jobID, "/") {
		WriteError(w, http.StatusBadRequest, "missing job id")
		return
	}

	var job models.EmailJob
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(&job); err != nil {
		WriteError(w, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}

	payload, err := json.Marshal(&job)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to marshal job")
		return
	}

	err = h.deliveryQueue.UpdatePayload(r.Context(), jobID, payload)
	if errors.Is(err, queue.ErrMessageNotFound) {
		WriteError(w, http.StatusNotFound, "email job not found")
		return
	}
	if errors.Is(err, queue.ErrMessageLeased) {
		WriteError(w, http.StatusConflict, "email job already leased by a worker")
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Info().Str("job_id", jobID).Msg("Email job payload updated")
	WriteSuccess(w, "email job updated")
}
