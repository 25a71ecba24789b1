package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket event stream
	mux.HandleFunc("/ws/events", s.app.EventsHandler.HandleEvents)

	// API routes - Reports
	mux.HandleFunc("/api/reports", s.handleReportsRoute)                  // GET (list), POST (create)
	mux.HandleFunc("/api/reports/", s.app.ReportHandler.GetReportHandler) // GET /{id} and /{id}/document

	// API routes - Email jobs
	mux.HandleFunc("/api/emails", s.app.EmailHandler.EnqueueEmailHandler) // POST - enqueue an email job
	mux.HandleFunc("/api/emails/", s.app.EmailHandler.PatchEmailHandler)  // PATCH /{jobId} - amend a pending job

	// API routes - Notifications
	mux.HandleFunc("/api/notifications", s.app.NotificationHandler.ListNotificationsHandler)
	mux.HandleFunc("/api/notifications/", s.app.NotificationHandler.MarkReadHandler) // POST /{id}/read

	// API routes - System
	mux.HandleFunc("/api/health", s.app.StatusHandler.HealthHandler)
	mux.HandleFunc("/api/queues/stats", s.app.StatusHandler.QueueStatsHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.StatusHandler.NotFoundHandler)

	return mux
}

// handleReportsRoute routes /api/reports requests (list and create)
func (s *Server) handleReportsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.ReportHandler.ListReportsHandler(w, r)
	case "POST":
		s.app.ReportHandler.CreateReportHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
