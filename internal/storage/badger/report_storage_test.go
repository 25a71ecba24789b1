package badger

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/valora-io/valora/internal/common"
	"github.com/valora-io/valora/internal/interfaces"
	"github.com/valora-io/valora/internal/models"
)

// setupTestDB creates a test database and returns cleanup function
func setupTestDB(t *testing.T) (*BadgerDB, func()) {
	config := &common.BadgerConfig{
		Path: t.TempDir() + "/db",
	}

	logger := arbor.NewLogger()
	db, err := NewBadgerDB(logger, config)
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
	}

	return db, cleanup
}

func testReport(id string) *models.Report {
	return &models.Report{
		ID:             id,
		OrgName:        "Acme Corp",
		ReportType:     models.ReportTypePreADV,
		PlatformID:     "p1",
		OrganizationID: "o1",
		UserEmail:      "user@acme.test",
	}
}

func TestReportStorage_CreateAndGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := arbor.NewLogger()
	storage := NewReportStorage(db, logger)
	ctx := context.Background()

	report := testReport("rpt_1")
	require.NoError(t, storage.Create(ctx, report))

	loaded, err := storage.Get(ctx, "rpt_1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", loaded.OrgName)
	assert.Equal(t, models.ReportTypePreADV, loaded.ReportType)
	assert.False(t, loaded.CreatedAt.IsZero())

	// Unknown ID
	_, err = storage.Get(ctx, "rpt_missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestReportStorage_CreateDuplicate(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewReportStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.Create(ctx, testReport("rpt_dup")))
	assert.Error(t, storage.Create(ctx, testReport("rpt_dup")))
}

func TestReportStorage_UpdatePreservesOtherFields(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewReportStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.Create(ctx, testReport("rpt_2")))

	// One writer sets pre-analysis data
	err := storage.Update(ctx, "rpt_2", func(r *models.Report) {
		r.PreAnalysisData = json.RawMessage(`{"summary":"ok"}`)
	})
	require.NoError(t, err)

	// Another sets the document
	err = storage.Update(ctx, "rpt_2", func(r *models.Report) {
		r.PDFDocument = []byte("%PDF-1.4")
	})
	require.NoError(t, err)

	loaded, err := storage.Get(ctx, "rpt_2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"ok"}`, string(loaded.PreAnalysisData))
	assert.True(t, loaded.HasDocument())
}

func TestReportStorage_SetDeliveryOutcome(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewReportStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.Create(ctx, testReport("rpt_3")))

	err := storage.SetDeliveryOutcome(ctx, "rpt_3", models.DeliveryStatusDelivered, "<msg-1@valora>", "")
	require.NoError(t, err)

	loaded, err := storage.Get(ctx, "rpt_3")
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusDelivered, loaded.DeliveryStatus)
	assert.Equal(t, "<msg-1@valora>", loaded.MessageID)
	assert.Empty(t, loaded.DeliveryError)
}

func TestReportStorage_ListByTenant(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewReportStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.Create(ctx, testReport("rpt_a")))
	require.NoError(t, storage.Create(ctx, testReport("rpt_b")))

	other := testReport("rpt_c")
	other.OrganizationID = "o2"
	require.NoError(t, storage.Create(ctx, other))

	reports, err := storage.List(ctx, "p1", "o1", 0)
	require.NoError(t, err)
	assert.Len(t, reports, 2)

	reports, err = storage.List(ctx, "p1", "o2", 0)
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestNotificationStorage_CreateListMarkRead(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewNotificationStorage(db, arbor.NewLogger())
	ctx := context.Background()

	n := &models.Notification{
		ID:             "ntf_1",
		Title:          "Report completed",
		PlatformID:     "p1",
		OrganizationID: "o1",
	}
	require.NoError(t, storage.Create(ctx, n))

	list, err := storage.ListByTopic(ctx, "p1", "o1", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Read)

	require.NoError(t, storage.MarkRead(ctx, "ntf_1"))

	list, err = storage.ListByTopic(ctx, "p1", "o1", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Read)

	// Other tenant sees nothing
	list, err = storage.ListByTopic(ctx, "p1", "o2", 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestNotificationStorage_DeleteOlderThan(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewNotificationStorage(db, arbor.NewLogger())
	ctx := context.Background()

	old := &models.Notification{
		ID:             "ntf_old",
		PlatformID:     "p1",
		OrganizationID: "o1",
		CreatedAt:      time.Now().Add(-48 * time.Hour),
	}
	recent := &models.Notification{
		ID:             "ntf_new",
		PlatformID:     "p1",
		OrganizationID: "o1",
	}
	require.NoError(t, storage.Create(ctx, old))
	require.NoError(t, storage.Create(ctx, recent))

	deleted, err := storage.DeleteOlderThan(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	list, err := storage.ListByTopic(ctx, "p1", "o1", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ntf_new", list[0].ID)
}

func TestKVStorage_SetGetDelete(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewKVStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.Set(ctx, "SMTP-Host", "smtp.valora.test", "SMTP server"))

	// Case-insensitive lookup
	value, err := storage.Get(ctx, "smtp-host")
	require.NoError(t, err)
	assert.Equal(t, "smtp.valora.test", value)

	require.NoError(t, storage.Delete(ctx, "smtp-host"))
	_, err = storage.Get(ctx, "smtp-host")
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)
}
