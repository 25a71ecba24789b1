package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/valora-io/valora/internal/common"
	"github.com/valora-io/valora/internal/models"
	badgerstore "github.com/valora-io/valora/internal/storage/badger"
)

func setupScheduler(t *testing.T, staleAge, retention string) (*Service, *badgerstore.Manager) {
	logger := arbor.NewLogger()

	manager, err := badgerstore.NewManager(logger, &common.BadgerConfig{Path: t.TempDir() + "/db"})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	config := common.NewDefaultConfig()
	config.Scheduler.StaleReportAge = staleAge
	config.Scheduler.NotificationRetention = retention

	svc := NewService(manager.ReportStorage(), manager.NotificationStorage(), config, logger)
	return svc, manager
}

func TestSweepStaleReports(t *testing.T) {
	// Zero stale age: anything touched before the sweep counts as stale
	svc, manager := setupScheduler(t, "0s", "720h")
	ctx := context.Background()

	require.NoError(t, manager.ReportStorage().Create(ctx, &models.Report{
		ID: "rpt_stuck", PlatformID: "p1", OrganizationID: "o1",
	}))
	require.NoError(t, manager.ReportStorage().Create(ctx, &models.Report{
		ID: "rpt_pending", PlatformID: "p1", OrganizationID: "o1",
		DeliveryStatus: models.DeliveryStatusPending,
	}))
	require.NoError(t, manager.ReportStorage().Create(ctx, &models.Report{
		ID: "rpt_done", PlatformID: "p1", OrganizationID: "o1",
		DeliveryStatus: models.DeliveryStatusDelivered,
	}))

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, svc.SweepStaleReports())

	stuck, err := manager.ReportStorage().Get(ctx, "rpt_stuck")
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusFailed, stuck.DeliveryStatus)
	assert.NotEmpty(t, stuck.DeliveryError)

	pending, err := manager.ReportStorage().Get(ctx, "rpt_pending")
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusFailed, pending.DeliveryStatus)

	// Terminal statuses are left alone
	done, err := manager.ReportStorage().Get(ctx, "rpt_done")
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusDelivered, done.DeliveryStatus)
}

func TestSweepStaleReports_FreshReportsUntouched(t *testing.T) {
	svc, manager := setupScheduler(t, "1h", "720h")
	ctx := context.Background()

	require.NoError(t, manager.ReportStorage().Create(ctx, &models.Report{
		ID: "rpt_fresh", PlatformID: "p1", OrganizationID: "o1",
	}))

	require.NoError(t, svc.SweepStaleReports())

	fresh, err := manager.ReportStorage().Get(ctx, "rpt_fresh")
	require.NoError(t, err)
	assert.Empty(t, fresh.DeliveryStatus)
	assert.Empty(t, fresh.DeliveryError)
}

func TestPurgeNotifications(t *testing.T) {
	svc, manager := setupScheduler(t, "1h", "0s")
	ctx := context.Background()

	require.NoError(t, manager.NotificationStorage().Create(ctx, &models.Notification{
		ID: "ntf_old", PlatformID: "p1", OrganizationID: "o1",
		CreatedAt: time.Now().Add(-time.Hour),
	}))

	require.NoError(t, svc.PurgeNotifications())

	remaining, err := manager.NotificationStorage().ListByTopic(ctx, "p1", "o1", 0)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestRegisterJob_Duplicate(t *testing.T) {
	svc, _ := setupScheduler(t, "1h", "720h")

	require.NoError(t, svc.RegisterJob("sweep", "* * * * *", "test", func() error { return nil }))
	err := svc.RegisterJob("sweep", "* * * * *", "test", func() error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestTriggerJob_Unknown(t *testing.T) {
	svc, _ := setupScheduler(t, "1h", "720h")

	err := svc.TriggerJob("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestStartStop(t *testing.T) {
	svc, _ := setupScheduler(t, "1h", "720h")

	require.NoError(t, svc.Start())
	assert.True(t, svc.IsRunning())
	require.Error(t, svc.Start())

	require.NoError(t, svc.Stop())
	assert.False(t, svc.IsRunning())
	require.NoError(t, svc.Stop())
}
