package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/valora-io/valora/internal/models"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// ErrKeyNotFound is returned when a key/value pair does not exist
var ErrKeyNotFound = errors.New("key not found")

// KeyValuePair represents a stored key/value entry with metadata.
// Holds operational settings and credentials (SMTP, API keys).
type KeyValuePair struct {
	Key         string    `json:"key" badgerhold:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ReportStorage persists report records across pipeline stages
type ReportStorage interface {
	// Create inserts a new report record
	Create(ctx context.Context, report *models.Report) error

	// Get retrieves a report by ID, ErrNotFound if absent
	Get(ctx context.Context, id string) (*models.Report, error)

	// Update applies mutate to the stored record inside a load-modify-upsert
	// cycle, so concurrent stage writers never clobber each other's fields
	Update(ctx context.Context, id string, mutate func(*models.Report)) error

	// SetDeliveryOutcome records the result of a delivery attempt
	SetDeliveryOutcome(ctx context.Context, id string, status models.DeliveryStatus, messageID, deliveryErr string) error

	// List returns reports for a tenant, newest first
	List(ctx context.Context, platformID, organizationID string, limit int) ([]models.Report, error)

	// ListStale returns unfinished reports not touched since the cutoff
	ListStale(ctx context.Context, cutoff time.Time) ([]models.Report, error)

	// DeleteOlderThan removes reports created before the cutoff
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// NotificationStorage persists the durable side of the notification dual-write
type NotificationStorage interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByTopic(ctx context.Context, platformID, organizationID string, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id string) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// KeyValueStorage defines operations for key/value settings storage
type KeyValueStorage interface {
	Get(ctx context.Context, key string) (string, error)
	GetPair(ctx context.Context, key string) (*KeyValuePair, error)
	Set(ctx context.Context, key string, value string, description string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]KeyValuePair, error)
	GetAll(ctx context.Context) (map[string]string, error)
}

// StorageManager provides access to all storage interfaces
type StorageManager interface {
	ReportStorage() ReportStorage
	NotificationStorage() NotificationStorage
	KVStorage() KeyValueStorage
	Close() error
}
