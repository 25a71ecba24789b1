package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/valora-io/valora/internal/common"
	"github.com/valora-io/valora/internal/interfaces"
	"github.com/valora-io/valora/internal/models"
)

// Service consumes email jobs from the delivery queue and hands them to
// the mailer. One attempt per job: a failed send is recorded on the
// correlated report and the message is consumed, not retried.
type Service struct {
	reportStorage interfaces.ReportStorage
	notifStorage  interfaces.NotificationStorage
	bus           interfaces.EventService
	mailer        interfaces.MailService
	validate      *validator.Validate
	logger        arbor.ILogger
}

// NewService creates the delivery service
func NewService(
	reportStorage interfaces.ReportStorage,
	notifStorage interfaces.NotificationStorage,
	bus interfaces.EventService,
	mailer interfaces.MailService,
	logger arbor.ILogger,
) *Service {
	return &Service{
		reportStorage: reportStorage,
		notifStorage:  notifStorage,
		bus:           bus,
		mailer:        mailer,
		validate:      validator.New(),
		logger:        logger,
	}
}

// HandleJob is the worker pool handler for email jobs
func (s *Service) HandleJob(ctx context.Context, msg *models.QueueMessage) error {
	var job models.EmailJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		return fmt.Errorf("invalid email job payload: %w", err)
	}
	if err := s.validate.Struct(&job); err != nil {
		return fmt.Errorf("email job validation failed: %w", err)
	}

	s.logger.Info().
		Str("job_id", msg.JobID).
		Str("to", job.ToEmail).
		Str("correlation_id", job.CorrelationID).
		Msg("Delivering email")

	messageID, err := s.mailer.Send(ctx, &job)
	if err != nil {
		s.recordOutcome(ctx, &job, models.DeliveryStatusFailed, "", err.Error())
		return fmt.Errorf("email send failed: %w", err)
	}

	s.recordOutcome(ctx, &job, models.DeliveryStatusDelivered, messageID, "")

	s.logger.Info().
		Str("job_id", msg.JobID).
		Str("message_id", messageID).
		Msg("Email delivered")

	return nil
}

// recordOutcome writes the delivery result back to the correlated report
// and emits the tenant notification. Ad-hoc emails carry no correlation
// id and leave no trace beyond the send itself.
func (s *Service) recordOutcome(ctx context.Context, job *models.EmailJob, status models.DeliveryStatus, messageID, deliveryErr string) {
	if job.CorrelationID == "" {
		return
	}

	if err := s.reportStorage.SetDeliveryOutcome(ctx, job.CorrelationID, status, messageID, deliveryErr); err != nil {
		s.logger.Warn().
			Err(err).
			Str("report_id", job.CorrelationID).
			Msg("Failed to record delivery outcome")
	}

	report, err := s.reportStorage.Get(ctx, job.CorrelationID)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("report_id", job.CorrelationID).
			Msg("Failed to load report for delivery notification")
		return
	}

	n := models.Notification{
		ID:             common.NewNotificationID(),
		PlatformID:     report.PlatformID,
		OrganizationID: report.OrganizationID,
		CreatedAt:      time.Now(),
	}
	if status == models.DeliveryStatusDelivered {
		n.Title = "Report delivered"
		n.Description = fmt.Sprintf("The %s report for %s was emailed to %s.", report.ReportType, report.OrgName, job.ToEmail)
		n.RefLink = fmt.Sprintf("/reports/%s", report.ID)
	} else {
		n.Title = "Report delivery failed"
		n.Description = fmt.Sprintf("Emailing the %s report for %s to %s failed: %s", report.ReportType, report.OrgName, job.ToEmail, deliveryErr)
	}

	if err := s.notifStorage.Create(ctx, &n); err != nil {
		s.logger.Warn().
			Err(err).
			Str("report_id", job.CorrelationID).
			Msg("Failed to persist delivery notification")
	}
	s.bus.Publish(n)
}
