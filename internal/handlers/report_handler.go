package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/valora-io/valora/internal/common"
	"github.com/valora-io/valora/internal/interfaces"
	"github.com/valora-io/valora/internal/models"
	"github.com/valora-io/valora/internal/queue"
)

// ReportHandler exposes report submission and retrieval
type ReportHandler struct {
	reportStorage interfaces.ReportStorage
	reportQueue   JobQueue
	validate      *validator.Validate
	logger        arbor.ILogger
}

// NewReportHandler creates a new report handler
func NewReportHandler(reportStorage interfaces.ReportStorage, reportQueue JobQueue, logger arbor.ILogger) *ReportHandler {
	return &ReportHandler{
		reportStorage: reportStorage,
		reportQueue:   reportQueue,
		validate:      validator.New(),
		logger:        logger,
	}
}

// reportSummary is the list/detail view of a report record. The PDF
// bytes stay out of JSON responses; the document endpoint serves them.
type reportSummary struct {
	ID             string                `json:"id"`
	OrgName        string                `json:"org_name"`
	ReportType     models.ReportType     `json:"report_type"`
	PlatformID     string                `json:"platform_id"`
	OrganizationID string                `json:"organization_id"`
	HasDocument    bool                  `json:"has_document"`
	DeliveryStatus models.DeliveryStatus `json:"delivery_status,omitempty"`
	DeliveryError  string                `json:"delivery_error,omitempty"`
	MessageID      string                `json:"message_id,omitempty"`
	CreatedAt      string                `json:"created_at"`
	UpdatedAt      string                `json:"updated_at"`
}

func summarize(r *models.Report) reportSummary {
	return reportSummary{
		ID:             r.ID,
		OrgName:        r.OrgName,
		ReportType:     r.ReportType,
		PlatformID:     r.PlatformID,
		OrganizationID: r.OrganizationID,
		HasDocument:    r.HasDocument(),
		DeliveryStatus: r.DeliveryStatus,
		DeliveryError:  r.DeliveryError,
		MessageID:      r.MessageID,
		CreatedAt:      r.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:      r.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// CreateReportHandler accepts a report job, persists the pending record
// and enqueues the pipeline job.
// POST /api/reports
func (h *ReportHandler) CreateReportHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var job models.ReportJob
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if job.ReportID == "" {
		job.ReportID = common.NewReportID()
	}
	if err := h.validate.Struct(&job); err != nil {
		WriteError(w, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}

	report := &models.Report{
		ID:             job.ReportID,
		OrgName:        job.OrgName,
		ReportType:     job.ReportType,
		PlatformID:     job.PlatformID,
		OrganizationID: job.OrganizationID,
		UserEmail:      job.UserEmail,
	}
	if err := h.reportStorage.Create(r.Context(), report); err != nil {
		WriteError(w, http.StatusConflict, err.Error())
		return
	}

	payload, err := json.Marshal(&job)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to marshal job")
		return
	}
	jobID, err := h.reportQueue.Enqueue(r.Context(), models.QueueMessage{
		Type:    models.JobTypeReport,
		Payload: payload,
	}, queue.EnqueueOptions{})
	if err != nil {
		h.logger.Error().Err(err).Str("report_id", job.ReportID).Msg("Failed to enqueue report job")
		WriteError(w, http.StatusInternalServerError, "failed to enqueue report job")
		return
	}

	h.logger.Info().
		Str("report_id", job.ReportID).
		Str("job_id", jobID).
		Str("org_name", job.OrgName).
		Msg("Report job accepted")

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"report_id": job.ReportID,
		"job_id":    jobID,
	})
}

// ListReportsHandler returns a tenant's reports, newest first.
// GET /api/reports?platform_id=&organization_id=&limit=
func (h *ReportHandler) ListReportsHandler(w http.ResponseWriter, r *http.Request) {
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

	reports, err := h.reportStorage.List(r.Context(), platformID, organizationID, limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	summaries := make([]reportSummary, 0, len(reports))
	for i := range reports {
		summaries = append(summaries, summarize(&reports[i]))
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"reports": summaries,
		"count":   len(summaries),
	})
}

// GetReportHandler returns one report record or its rendered document.
// GET /api/reports/{id} and GET /api/reports/{id}/document
func (h *ReportHandler) GetReportHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/reports/")
	wantDocument := strings.HasSuffix(path, "/document")
	id := strings.TrimSuffix(path, "/document")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "missing report id")
		return
	}

	report, err := h.reportStorage.Get(r.Context(), id)
	if errors.Is(err, interfaces.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "report not found")
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if wantDocument {
		if !report.HasDocument() {
			WriteError(w, http.StatusNotFound, "report has no document")
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", "attachment; filename=\""+report.ID+"-report.pdf\"")
		w.WriteHeader(http.StatusOK)
		w.Write(report.PDFDocument)
		return
	}

	WriteJSON(w, http.StatusOK, summarize(report))
}
