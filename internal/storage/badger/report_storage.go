package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/valora-io/valora/internal/interfaces"
	"github.com/valora-io/valora/internal/models"
)

// ReportStorage implements interfaces.ReportStorage on Badger
type ReportStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewReportStorage creates a new ReportStorage instance
func NewReportStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ReportStorage {
	return &ReportStorage{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new report record
func (s *ReportStorage) Create(ctx context.Context, report *models.Report) error {
	now := time.Now()
	if report.CreatedAt.IsZero() {
		report.CreatedAt = now
	}
	report.UpdatedAt = now

	if err := s.db.Store().Insert(report.ID, report); err != nil {
		if err == badgerhold.ErrKeyExists {
			return fmt.Errorf("report %s already exists", report.ID)
		}
		return fmt.Errorf("failed to create report: %w", err)
	}

	s.logger.Debug().
		Str("report_id", report.ID).
		Str("report_type", string(report.ReportType)).
		Msg("Report record created")

	return nil
}

// Get retrieves a report by ID
func (s *ReportStorage) Get(ctx context.Context, id string) (*models.Report, error) {
	var report models.Report
	err := s.db.Store().Get(id, &report)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return &report, nil
}

// Update applies a mutation inside a load-modify-upsert cycle.
// Stage writers only touch their own fields through mutate, so a
// concurrent update of a different field is never lost.
func (s *ReportStorage) Update(ctx context.Context, id string, mutate func(*models.Report)) error {
	var report models.Report
	err := s.db.Store().Get(id, &report)
	if err == badgerhold.ErrNotFound {
		return interfaces.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load report for update: %w", err)
	}

	mutate(&report)
	report.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(id, &report); err != nil {
		return fmt.Errorf("failed to update report: %w", err)
	}

	return nil
}

// SetDeliveryOutcome records the result of a delivery attempt
func (s *ReportStorage) SetDeliveryOutcome(ctx context.Context, id string, status models.DeliveryStatus, messageID, deliveryErr string) error {
	return s.Update(ctx, id, func(r *models.Report) {
		r.DeliveryStatus = status
		r.MessageID = messageID
		r.DeliveryError = deliveryErr
	})
}

// List returns reports for a tenant, newest first
func (s *ReportStorage) List(ctx context.Context, platformID, organizationID string, limit int) ([]models.Report, error) {
	query := badgerhold.Where("PlatformID").Eq(platformID).
		And("OrganizationID").Eq(organizationID).
		SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var reports []models.Report
	if err := s.db.Store().Find(&reports, query); err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, nil
}

// ListStale returns unfinished reports not touched since the cutoff.
// A report is unfinished while its delivery status is empty or pending;
// terminal statuses are never stale.
func (s *ReportStorage) ListStale(ctx context.Context, cutoff time.Time) ([]models.Report, error) {
	query := badgerhold.Where("DeliveryStatus").
		In(models.DeliveryStatus(""), models.DeliveryStatusPending).
		And("UpdatedAt").Lt(cutoff)

	var stale []models.Report
	if err := s.db.Store().Find(&stale, query); err != nil {
		return nil, fmt.Errorf("failed to list stale reports: %w", err)
	}
	return stale, nil
}

// DeleteOlderThan removes reports created before the cutoff
func (s *ReportStorage) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	var stale []models.Report
	query := badgerhold.Where("CreatedAt").Lt(cutoff)
	if err := s.db.Store().Find(&stale, query); err != nil {
		return 0, fmt.Errorf("failed to find stale reports: %w", err)
	}

	deleted := 0
	for _, r := range stale {
		if err := s.db.Store().Delete(r.ID, &models.Report{}); err != nil {
			s.logger.Warn().Str("report_id", r.ID).Err(err).Msg("Failed to delete stale report")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.Info().Int("count", deleted).Msg("Deleted stale reports")
	}
	return deleted, nil
}
