package reports

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/valora-io/valora/internal/common"
	"github.com/valora-io/valora/internal/interfaces"
	"github.com/valora-io/valora/internal/models"
	"github.com/valora-io/valora/internal/queue"
)

// DeliveryQueue is the slice of the durable queue the pipeline needs to
// schedule delivery jobs
type DeliveryQueue interface {
	Enqueue(ctx context.Context, msg models.QueueMessage, opts queue.EnqueueOptions) (string, error)
}

// Service runs the report pipeline. One handler invocation drives all
// stages in process; intermediate artifacts are persisted after the
// generation stages so a crash mid-pipeline leaves a diagnosable
// partial record.
type Service struct {
	reportStorage interfaces.ReportStorage
	notifStorage  interfaces.NotificationStorage
	bus           interfaces.EventService
	llmService    interfaces.LLMService
	renderer      interfaces.RenderService
	deliveryQueue DeliveryQueue
	deliveryDelay time.Duration
	stageTimeout  time.Duration
	validate      *validator.Validate
	logger        arbor.ILogger
}

// NewService creates the report pipeline service
func NewService(
	reportStorage interfaces.ReportStorage,
	notifStorage interfaces.NotificationStorage,
	bus interfaces.EventService,
	llmService interfaces.LLMService,
	renderer interfaces.RenderService,
	deliveryQueue DeliveryQueue,
	config *common.Config,
	logger arbor.ILogger,
) *Service {
	return &Service{
		reportStorage: reportStorage,
		notifStorage:  notifStorage,
		bus:           bus,
		llmService:    llmService,
		renderer:      renderer,
		deliveryQueue: deliveryQueue,
		deliveryDelay: common.ParseDurationOr(config.Delivery.Delay, 5*time.Minute),
		stageTimeout:  common.ParseDurationOr(config.Reports.StageTimeout, 3*time.Minute),
		validate:      validator.New(),
		logger:        logger,
	}
}

// HandleJob is the worker pool handler for report jobs
func (s *Service) HandleJob(ctx context.Context, msg *models.QueueMessage) error {
	var job models.ReportJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		return fmt.Errorf("invalid report job payload: %w", err)
	}
	if err := s.validate.Struct(&job); err != nil {
		return fmt.Errorf("report job validation failed: %w", err)
	}

	return s.Run(ctx, &job)
}

// Run executes the pipeline for one report job
func (s *Service) Run(ctx context.Context, job *models.ReportJob) error {
	s.logger.Info().
		Str("report_id", job.ReportID).
		Str("report_type", string(job.ReportType)).
		Str("org_name", job.OrgName).
		Bool("enable_adv", job.EnableADV).
		Msg("Report pipeline started")

	if err := s.ensureRecord(ctx, job); err != nil {
		return err
	}

	if err := s.run(ctx, job); err != nil {
		// Whole-pipeline failure: record it, notify, and surface the
		// error so the worker pool marks the job failed
		if updErr := s.reportStorage.Update(ctx, job.ReportID, func(r *models.Report) {
			r.DeliveryStatus = models.DeliveryStatusFailed
			r.DeliveryError = err.Error()
		}); updErr != nil {
			s.logger.Warn().Err(updErr).Str("report_id", job.ReportID).Msg("Failed to record pipeline failure")
		}
		s.notify(ctx, job, false, err.Error())
		return err
	}

	s.notify(ctx, job, true, "")
	return nil
}

func (s *Service) run(ctx context.Context, job *models.ReportJob) error {
	// Stage 1: pre-analysis. Individual generation failures degrade
	// their own sections; the stage always yields a profile.
	pre := s.runPreAnalysis(ctx, job)

	// Stage 2: supplement, failure tolerated
	supplement := s.runSupplement(ctx, job, pre.Metrics)

	// Stage 3: valuation, only on request; parse failure means absent
	var valuation *models.ValuationResult
	if job.EnableADV {
		valuation = s.runValuation(ctx, job, pre.Metrics)
	}

	// Stage 4: render, failure caught; the artifact stays absent
	content := interfaces.ReportContent{
		Title:      fmt.Sprintf("%s Data Report", job.OrgName),
		OrgName:    job.OrgName,
		ReportType: job.ReportType,
		PreAnalysis: map[string]any{
			"summary":               pre.Summary.Summary,
			"metrics":               pre.Metrics,
			"competitiveAdvantages": pre.Summary.CompetitiveAdvantages,
			"collectionMethods":     pre.CollectionMethods,
		},
		Supplement: supplement,
		Valuation:  valuation,
	}
	document, err := s.renderer.Render(content)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("report_id", job.ReportID).
			Msg("Render failed, persisting report without document")
		document = nil
	}

	// Stage 5: persist, the durability checkpoint
	preData, err := json.Marshal(pre)
	if err != nil {
		return fmt.Errorf("failed to marshal pre-analysis data: %w", err)
	}
	var supplementData json.RawMessage
	if supplement != "" {
		if supplementData, err = json.Marshal(map[string]string{"comparison": supplement}); err != nil {
			return fmt.Errorf("failed to marshal supplement data: %w", err)
		}
	}
	var advData json.RawMessage
	if valuation != nil {
		if advData, err = json.Marshal(valuation); err != nil {
			return fmt.Errorf("failed to marshal valuation data: %w", err)
		}
	}

	if err := s.reportStorage.Update(ctx, job.ReportID, func(r *models.Report) {
		r.PreAnalysisData = preData
		r.SupplementData = supplementData
		r.ADVData = advData
		r.PDFDocument = document
	}); err != nil {
		return fmt.Errorf("failed to persist report artifacts: %w", err)
	}

	// Stage 6: schedule delivery only when there is both a document and
	// a recipient
	if len(document) > 0 && job.UserEmail != "" {
		jobID, err := s.scheduleDelivery(ctx, job, document)
		if err != nil {
			return fmt.Errorf("failed to schedule delivery: %w", err)
		}

		if err := s.reportStorage.Update(ctx, job.ReportID, func(r *models.Report) {
			r.DeliveryJobID = jobID
			r.DeliveryStatus = models.DeliveryStatusPending
		}); err != nil {
			return fmt.Errorf("failed to record delivery job: %w", err)
		}

		s.logger.Info().
			Str("report_id", job.ReportID).
			Str("delivery_job_id", jobID).
			Dur("delay", s.deliveryDelay).
			Msg("Delivery scheduled")
	}

	return nil
}

// ensureRecord guarantees the report record exists before stages start
// writing to it. The API handler normally creates it at submission;
// directly enqueued jobs get one here.
func (s *Service) ensureRecord(ctx context.Context, job *models.ReportJob) error {
	_, err := s.reportStorage.Get(ctx, job.ReportID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, interfaces.ErrNotFound) {
		return fmt.Errorf("failed to load report record: %w", err)
	}

	report := &models.Report{
		ID:             job.ReportID,
		OrgName:        job.OrgName,
		ReportType:     job.ReportType,
		PlatformID:     job.PlatformID,
		OrganizationID: job.OrganizationID,
		UserEmail:      job.UserEmail,
	}
	return s.reportStorage.Create(ctx, report)
}

// generate wraps one text-generation call with the per-stage timeout.
// A stuck provider call must not stall the worker slot indefinitely.
func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	stageCtx, cancel := context.WithTimeout(ctx, s.stageTimeout)
	defer cancel()

	return s.llmService.Generate(stageCtx, prompt, interfaces.GenerateOptions{
		System: systemPrompt,
	})
}

// scheduleDelivery enqueues the email job with the configured delay and
// returns the queue job id
func (s *Service) scheduleDelivery(ctx context.Context, job *models.ReportJob, document []byte) (string, error) {
	emailJob := models.EmailJob{
		ToEmail:  job.UserEmail,
		Subject:  fmt.Sprintf("Your %s data report for %s", job.ReportType, job.OrgName),
		TextBody: fmt.Sprintf("The %s report for %s is attached.", job.ReportType, job.OrgName),
		Attachments: []models.EmailAttachment{
			{
				Name:          fmt.Sprintf("%s-report.pdf", job.ReportID),
				ContentBase64: base64.StdEncoding.EncodeToString(document),
				MimeType:      "application/pdf",
			},
		},
		CorrelationID: job.ReportID,
	}

	payload, err := json.Marshal(emailJob)
	if err != nil {
		return "", fmt.Errorf("failed to marshal email job: %w", err)
	}

	return s.deliveryQueue.Enqueue(ctx, models.QueueMessage{
		Type:    models.JobTypeEmail,
		Payload: payload,
	}, queue.EnqueueOptions{Delay: s.deliveryDelay})
}

// notify dual-writes the outcome notification: a durable record and a
// transient publish on the bus. The writes are independent; neither
// failure rolls back the other.
func (s *Service) notify(ctx context.Context, job *models.ReportJob, success bool, detail string) {
	n := models.Notification{
		ID:             common.NewNotificationID(),
		PlatformID:     job.PlatformID,
		OrganizationID: job.OrganizationID,
		CreatedAt:      time.Now(),
	}
	if success {
		n.Title = "Report completed"
		n.Description = fmt.Sprintf("The %s report for %s is ready.", job.ReportType, job.OrgName)
		n.RefLink = fmt.Sprintf("/reports/%s", job.ReportID)
	} else {
		n.Title = "Report failed"
		n.Description = fmt.Sprintf("The %s report for %s failed: %s", job.ReportType, job.OrgName, detail)
	}

	if err := s.notifStorage.Create(ctx, &n); err != nil {
		s.logger.Warn().
			Err(err).
			Str("report_id", job.ReportID).
			Msg("Failed to persist notification")
	}
	s.bus.Publish(n)
}
