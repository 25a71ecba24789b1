package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/valora-io/valora/internal/common"
	"github.com/valora-io/valora/internal/interfaces"
	"github.com/valora-io/valora/internal/models"
)

// jobEntry represents a registered maintenance job
type jobEntry struct {
	name        string
	schedule    string
	description string
	handler     func() error
	cronID      cron.EntryID
	lastRun     *time.Time
	isRunning   bool
	lastError   string
}

// Service runs the background maintenance sweeps: stale report
// detection and notification retention. Jobs never run concurrently
// with each other.
type Service struct {
	reportStorage interfaces.ReportStorage
	notifStorage  interfaces.NotificationStorage
	cron          *cron.Cron
	logger        arbor.ILogger

	staleSchedule     string
	retentionSchedule string
	staleAge          time.Duration
	retention         time.Duration

	jobMu    sync.Mutex // Protects jobs map
	globalMu sync.Mutex // Prevents concurrent job execution
	jobs     map[string]*jobEntry
	running  bool
}

// NewService creates the scheduler service
func NewService(
	reportStorage interfaces.ReportStorage,
	notifStorage interfaces.NotificationStorage,
	config *common.Config,
	logger arbor.ILogger,
) *Service {
	return &Service{
		reportStorage:     reportStorage,
		notifStorage:      notifStorage,
		cron:              cron.New(),
		logger:            logger,
		staleSchedule:     config.Scheduler.StaleSweepSchedule,
		retentionSchedule: config.Scheduler.RetentionSchedule,
		staleAge:          common.ParseDurationOr(config.Scheduler.StaleReportAge, 30*time.Minute),
		retention:         common.ParseDurationOr(config.Scheduler.NotificationRetention, 720*time.Hour),
		jobs:              make(map[string]*jobEntry),
	}
}

// Start registers the maintenance jobs and begins the scheduler
func (s *Service) Start() error {
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	if err := s.RegisterJob("stale_reports", s.staleSchedule,
		"Mark reports stuck mid-pipeline as failed", s.SweepStaleReports); err != nil {
		return err
	}
	if err := s.RegisterJob("notification_retention", s.retentionSchedule,
		"Purge notifications past the retention window", s.PurgeNotifications); err != nil {
		return err
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("stale_sweep", s.staleSchedule).
		Str("retention", s.retentionSchedule).
		Msg("Scheduler started")

	return nil
}

// Stop halts the scheduler
func (s *Service) Stop() error {
	if !s.running {
		return nil
	}

	s.cron.Stop()
	s.running = false

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// IsRunning returns true if scheduler is active
func (s *Service) IsRunning() bool {
	return s.running
}

// RegisterJob registers a job with the scheduler
func (s *Service) RegisterJob(name, schedule, description string, handler func() error) error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	entry := &jobEntry{
		name:        name,
		schedule:    schedule,
		description: description,
		handler:     handler,
	}

	cronID, err := s.cron.AddFunc(schedule, func() {
		s.executeJob(name)
	})
	if err != nil {
		return fmt.Errorf("failed to add job to cron: %w", err)
	}

	entry.cronID = cronID
	s.jobs[name] = entry

	s.logger.Info().
		Str("job_name", name).
		Str("schedule", schedule).
		Msg("Job registered")

	return nil
}

// TriggerJob runs a job immediately, outside its schedule
func (s *Service) TriggerJob(name string) error {
	s.jobMu.Lock()
	entry, exists := s.jobs[name]
	if !exists {
		s.jobMu.Unlock()
		return fmt.Errorf("job %s not found", name)
	}
	if entry.isRunning {
		s.jobMu.Unlock()
		return fmt.Errorf("job %s is already running", name)
	}
	s.jobMu.Unlock()

	go s.executeJob(name)
	return nil
}

// executeJob wraps job execution with the global mutex, panic recovery
// and status tracking
func (s *Service) executeJob(name string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("job_name", name).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Panic recovered in job execution")

			s.jobMu.Lock()
			if entry, exists := s.jobs[name]; exists {
				entry.isRunning = false
				entry.lastError = fmt.Sprintf("panic: %v", r)
			}
			s.jobMu.Unlock()
		}
	}()

	s.globalMu.Lock()
	defer s.globalMu.Unlock()

	s.jobMu.Lock()
	entry, exists := s.jobs[name]
	if !exists {
		s.jobMu.Unlock()
		s.logger.Warn().Str("job_name", name).Msg("Job not found")
		return
	}
	entry.isRunning = true
	handler := entry.handler
	s.jobMu.Unlock()

	started := time.Now()
	err := handler()

	completed := time.Now()
	s.jobMu.Lock()
	entry.isRunning = false
	entry.lastRun = &completed
	if err != nil {
		entry.lastError = err.Error()
		s.logger.Error().
			Str("job_name", name).
			Err(err).
			Dur("duration", time.Since(started)).
			Msg("Job execution failed")
	} else {
		entry.lastError = ""
		s.logger.Debug().
			Str("job_name", name).
			Dur("duration", time.Since(started)).
			Msg("Job execution completed")
	}
	s.jobMu.Unlock()
}

// SweepStaleReports marks reports stuck mid-pipeline as failed. A
// report that has not been touched within the stale age and never
// reached a terminal delivery status is abandoned.
func (s *Service) SweepStaleReports() error {
	ctx := context.Background()
	cutoff := time.Now().Add(-s.staleAge)

	stale, err := s.reportStorage.ListStale(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list stale reports: %w", err)
	}

	for _, report := range stale {
		reason := fmt.Sprintf("report made no progress for %s", s.staleAge)
		if err := s.reportStorage.Update(ctx, report.ID, func(r *models.Report) {
			r.DeliveryStatus = models.DeliveryStatusFailed
			r.DeliveryError = reason
		}); err != nil {
			s.logger.Warn().
				Err(err).
				Str("report_id", report.ID).
				Msg("Failed to mark stale report")
			continue
		}
		s.logger.Warn().
			Str("report_id", report.ID).
			Msg("Marked stale report as failed")
	}

	if len(stale) > 0 {
		s.logger.Info().Int("count", len(stale)).Msg("Stale report sweep completed")
	}
	return nil
}

// PurgeNotifications removes notifications past the retention window
func (s *Service) PurgeNotifications() error {
	ctx := context.Background()
	cutoff := time.Now().Add(-s.retention)

	deleted, err := s.notifStorage.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to purge notifications: %w", err)
	}

	if deleted > 0 {
		s.logger.Info().Int("count", deleted).Msg("Purged expired notifications")
	}
	return nil
}
