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

// NotificationStorage implements interfaces.NotificationStorage on Badger
type NotificationStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewNotificationStorage creates a new NotificationStorage instance
func NewNotificationStorage(db *BadgerDB, logger arbor.ILogger) interfaces.NotificationStorage {
	return &NotificationStorage{
		db:     db,
		logger: logger,
	}
}

// Create inserts a notification record
func (s *NotificationStorage) Create(ctx context.Context, n *models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if err := s.db.Store().Insert(n.ID, n); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListByTopic returns a tenant's notifications, newest first
func (s *NotificationStorage) ListByTopic(ctx context.Context, platformID, organizationID string, limit int) ([]models.Notification, error) {
	query := badgerhold.Where("PlatformID").Eq(platformID).
		And("OrganizationID").Eq(organizationID).
		SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var notifications []models.Notification
	if err := s.db.Store().Find(&notifications, query); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

// MarkRead flags a notification as read
func (s *NotificationStorage) MarkRead(ctx context.Context, id string) error {
	var n models.Notification
	err := s.db.Store().Get(id, &n)
	if err == badgerhold.ErrNotFound {
		return interfaces.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load notification: %w", err)
	}

	n.Read = true
	if err := s.db.Store().Upsert(id, &n); err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

// DeleteOlderThan removes notifications created before the cutoff
func (s *NotificationStorage) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	var stale []models.Notification
	if err := s.db.Store().Find(&stale, badgerhold.Where("CreatedAt").Lt(cutoff)); err != nil {
		return 0, fmt.Errorf("failed to find stale notifications: %w", err)
	}

	deleted := 0
	for _, n := range stale {
		if err := s.db.Store().Delete(n.ID, &models.Notification{}); err != nil {
			s.logger.Warn().Str("notification_id", n.ID).Err(err).Msg("Failed to delete stale notification")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.Info().Int("count", deleted).Msg("Deleted stale notifications")
	}
	return deleted, nil
}
