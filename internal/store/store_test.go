package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gps-fleet-backend/internal/gpsbuddy"
	"gps-fleet-backend/internal/model"
)

// newTestStore opens an isolated in-memory database with the real schema so
// ordering, uniqueness and retention semantics are exercised for real.
func newTestStore(t *testing.T) Store {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.VehicleState{},
		&model.VehicleHistory{},
		&model.PushSubscription{},
		&model.SubscriptionVehicle{},
	))
	return NewGormStore(db)
}

func telemetry(vehicleID int64, plate string, at *time.Time, driveTime int64) gpsbuddy.VehicleTelemetry {
	return gpsbuddy.VehicleTelemetry{
		VehicleID:     vehicleID,
		Plate:         &plate,
		TimeIndicator: at,
		DriveTime:     &driveTime,
	}
}

func TestUpsertLastAndHistory_Idempotence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	first, err := s.UpsertLastAndHistory(ctx, []gpsbuddy.VehicleTelemetry{telemetry(1, "AB123", &at, 100)})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Updated)
	assert.Equal(t, 1, first.HistoryInserted)

	// Same vehicle, same timestamp: last state is overwritten, not
	// duplicated; the history insert is a no-op.
	second, err := s.UpsertLastAndHistory(ctx, []gpsbuddy.VehicleTelemetry{telemetry(1, "AB123", &at, 150)})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Updated)
	assert.Equal(t, 0, second.HistoryInserted)

	states, err := s.GetLastAll(ctx)
	require.NoError(t, err)
	require.Len(t, states, 1)
	require.NotNil(t, states[0].DriveTime)
	assert.Equal(t, int64(150), *states[0].DriveTime)

	rows, err := s.GetHistory(ctx, 1, HistoryQuery{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestUpsertLastAndHistory_DuplicateVehicleInBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	earlier := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	later := earlier.Add(2 * time.Minute)

	// The newest reading wins regardless of batch order; both history
	// timestamps are still recorded.
	result, err := s.UpsertLastAndHistory(ctx, []gpsbuddy.VehicleTelemetry{
		telemetry(1, "AB123", &later, 200),
		telemetry(1, "AB123", &earlier, 100),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 2, result.HistoryInserted)

	state, err := s.GetLastByVehicleID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, state.DriveTime)
	assert.Equal(t, int64(200), *state.DriveTime)

	rows, err := s.GetHistory(ctx, 1, HistoryQuery{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestUpsertLastAndHistory_NilTimeIndicatorSkipsHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	result, err := s.UpsertLastAndHistory(ctx, []gpsbuddy.VehicleTelemetry{telemetry(2, "CD456", nil, 10)})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 0, result.HistoryInserted)

	rows, err := s.GetHistory(ctx, 2, HistoryQuery{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestGetLastAll_OrdersByPlateCaseInsensitively(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertLastAndHistory(ctx, []gpsbuddy.VehicleTelemetry{
		telemetry(1, "zz9", nil, 0),
		telemetry(2, "AA1", nil, 0),
		telemetry(3, "mk5", nil, 0),
	})
	require.NoError(t, err)

	states, err := s.GetLastAll(ctx)
	require.NoError(t, err)
	require.Len(t, states, 3)
	assert.Equal(t, int64(2), states[0].VehicleID)
	assert.Equal(t, int64(3), states[1].VehicleID)
	assert.Equal(t, int64(1), states[2].VehicleID)
}

func TestGetHistory_AscendingWithoutRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)

	var batch []gpsbuddy.VehicleTelemetry
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		batch = append(batch, telemetry(1, "AB123", &at, int64(i)))
	}
	_, err := s.UpsertLastAndHistory(ctx, batch)
	require.NoError(t, err)

	// No range: the most recent N are selected internally, but callers
	// still get chronological order.
	rows, err := s.GetHistory(ctx, 1, HistoryQuery{Limit: 3})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.True(t, rows[0].TimeIndicator.Before(*rows[1].TimeIndicator))
	assert.True(t, rows[1].TimeIndicator.Before(*rows[2].TimeIndicator))
	assert.Equal(t, base.Add(2*time.Minute), rows[0].TimeIndicator.UTC())

	// Ranged query keeps the same ordering contract.
	since := base.Add(1 * time.Minute)
	until := base.Add(3 * time.Minute)
	ranged, err := s.GetHistory(ctx, 1, HistoryQuery{Since: &since, Until: &until})
	require.NoError(t, err)
	require.Len(t, ranged, 3)
	assert.Equal(t, since, ranged[0].TimeIndicator.UTC())
	assert.Equal(t, until, ranged[2].TimeIndicator.UTC())
}

func TestGetHistoryPage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)

	var batch []gpsbuddy.VehicleTelemetry
	for i := 0; i < 7; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		batch = append(batch, telemetry(1, "AB123", &at, int64(i)))
	}
	_, err := s.UpsertLastAndHistory(ctx, batch)
	require.NoError(t, err)

	page, err := s.GetHistoryPage(ctx, 1, HistoryQuery{}, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(7), page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 3, page.PageSize)
	require.Len(t, page.Rows, 3)
	assert.Equal(t, base.Add(3*time.Minute), page.Rows[0].TimeIndicator.UTC())

	// Page size is capped at 50.
	capped, err := s.GetHistoryPage(ctx, 1, HistoryQuery{}, 1, 500)
	require.NoError(t, err)
	assert.Equal(t, 50, capped.PageSize)
}

func TestDeleteHistoryOlderThan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := time.Now().UTC().AddDate(0, 0, -40)
	recent := time.Now().UTC().AddDate(0, 0, -5)
	_, err := s.UpsertLastAndHistory(ctx, []gpsbuddy.VehicleTelemetry{
		telemetry(1, "AB123", &old, 1),
		telemetry(2, "CD456", &recent, 2),
	})
	require.NoError(t, err)

	// A legacy row without a telemetry timestamp must survive pruning.
	require.NoError(t, s.DB().Create(&model.VehicleHistory{VehicleID: 3}).Error)

	deleted, err := s.DeleteHistoryOlderThan(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining int64
	require.NoError(t, s.DB().Model(&model.VehicleHistory{}).Count(&remaining).Error)
	assert.Equal(t, int64(2), remaining)

	// Non-positive retention is a no-op.
	deleted, err = s.DeleteHistoryOlderThan(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestGetTodayStartValues(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	dayStart := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	yesterday := dayStart.Add(-2 * time.Hour)
	morning := dayStart.Add(6 * time.Hour)
	noon := dayStart.Add(12 * time.Hour)
	_, err := s.UpsertLastAndHistory(ctx, []gpsbuddy.VehicleTelemetry{
		telemetry(1, "AB123", &yesterday, 50),
	})
	require.NoError(t, err)
	_, err = s.UpsertLastAndHistory(ctx, []gpsbuddy.VehicleTelemetry{
		telemetry(1, "AB123", &morning, 100),
	})
	require.NoError(t, err)
	_, err = s.UpsertLastAndHistory(ctx, []gpsbuddy.VehicleTelemetry{
		telemetry(1, "AB123", &noon, 200),
		telemetry(2, "CD456", &noon, 70),
	})
	require.NoError(t, err)

	starts, err := s.GetTodayStartValues(ctx, dayStart)
	require.NoError(t, err)
	require.Len(t, starts, 2)

	// The earliest row within the day wins; yesterday's row is ignored.
	require.NotNil(t, starts[1].DriveTime)
	assert.Equal(t, int64(100), *starts[1].DriveTime)
	require.NotNil(t, starts[2].DriveTime)
	assert.Equal(t, int64(70), *starts[2].DriveTime)
}
