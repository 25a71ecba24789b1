package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/valora-io/valora/internal/interfaces"
)

// NotificationHandler exposes the persisted notification backlog
type NotificationHandler struct {
	notifStorage interfaces.NotificationStorage
	logger       arbor.ILogger
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notifStorage interfaces.NotificationStorage, logger arbor.ILogger) *NotificationHandler {
	return &NotificationHandler{
		notifStorage: notifStorage,
		logger:       logger,
	}
}

// ListNotificationsHandler returns a tenant's notifications, newest first.
// GET /api/notifications?platform_id=&organization_id=&limit=
func (h *NotificationHandler) ListNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	platformID, ok := RequireQuery(w, r, "platform_id")
	if !ok {
		return
	}
	organizationID, ok := RequireQuery(w, r, "organization_id")
	if !ok {
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	notifications, err := h.notifStorage.ListByTopic(r.Context(), platformID, organizationID, limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
		"count":         len(notifications),
	})
}

// MarkReadHandler marks one notification as read.
// POST /api/notifications/{id}/read
func (h *NotificationHandler) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/notifications/")
	id := strings.TrimSuffix(path, "/read")
	if id == "" || !strings.HasSuffix(path, "/read") {
		WriteError(w, http.StatusBadRequest, "missing notification id")
		return
	}

	if err := h.notifStorage.MarkRead(r.Context(), id); err != nil {
		WriteError(w, http.StatusNotFound, "notification not found")
		return
	}

	WriteSuccess(w, "notification marked read")
}
