package derive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gps-fleet-backend/internal/model"
)

func i64(v int64) *int64 { return &v }

func TestLocalDayStart(t *testing.T) {
	// 2026-08-20 22:30 UTC is already 2026-08-21 01:30 at UTC+3.
	at := time.Date(2026, 8, 20, 22, 30, 0, 0, time.UTC)
	start := LocalDayStart(at, 3)

	assert.Equal(t, 2026, start.Year())
	assert.Equal(t, time.August, start.Month())
	assert.Equal(t, 21, start.Day())
	assert.Equal(t, 0, start.Hour())
	// Day start at UTC+3 corresponds to 21:00 UTC of the previous day.
	assert.Equal(t, time.Date(2026, 8, 20, 21, 0, 0, 0, time.UTC), start.UTC())
}

func TestComputeDailyDeltas(t *testing.T) {
	current := &model.VehicleState{
		DriveTime: i64(500),
		WorkTime:  i64(800),
		IdleTime:  i64(120),
	}

	t.Run("with baseline", func(t *testing.T) {
		start := &model.VehicleHistory{
			DriveTime: i64(200),
			WorkTime:  i64(900), // counter reset upstream
			IdleTime:  i64(120),
		}
		d := ComputeDailyDeltas(current, start)
		assert.Equal(t, int64(300), d.DriveTime)
		assert.Equal(t, int64(0), d.WorkTime, "reset counters clamp to zero")
		assert.Equal(t, int64(0), d.IdleTime)
		assert.Equal(t, int64(0), d.StopTime, "nil counters count as zero")
	})

	t.Run("without baseline", func(t *testing.T) {
		d := ComputeDailyDeltas(current, nil)
		assert.Equal(t, int64(500), d.DriveTime)
		assert.Equal(t, int64(800), d.WorkTime)
		assert.Equal(t, int64(120), d.IdleTime)
		assert.Equal(t, int64(0), d.StopTime)
	})
}
