package derive

import (
	"fmt"
	"time"

	"gps-fleet-backend/internal/model"
)

// DailyCounters are the per-vehicle counter deltas since local-day start,
// in seconds.
type DailyCounters struct {
	DriveTime int64 `json:"dailyDrivetime"`
	WorkTime  int64 `json:"dailyWorktime"`
	IdleTime  int64 `json:"dailyIdletime"`
	StopTime  int64 `json:"dailyStoptime"`
}

// LocalDayStart returns the start of the calendar day containing t in a
// fixed-offset local timezone.
func LocalDayStart(t time.Time, offsetHours int) time.Time {
	loc := time.FixedZone(fmt.Sprintf("UTC%+d", offsetHours), offsetHours*3600)
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// ComputeDailyDeltas derives the daily counters for one vehicle from its
// current cumulative values and the day-start baseline. With no baseline the
// vehicle is assumed to have started its day now, so daily equals current.
// Counter resets clamp to 0 rather than going negative.
func ComputeDailyDeltas(current *model.VehicleState, start *model.VehicleHistory) DailyCounters {
	if start == nil {
		return DailyCounters{
			DriveTime: deref(current.DriveTime),
			WorkTime:  deref(current.WorkTime),
			IdleTime:  deref(current.IdleTime),
			StopTime:  deref(current.StopTime),
		}
	}
	return DailyCounters{
		DriveTime: clampDelta(current.DriveTime, start.DriveTime),
		WorkTime:  clampDelta(current.WorkTime, start.WorkTime),
		IdleTime:  clampDelta(current.IdleTime, start.IdleTime),
		StopTime:  clampDelta(current.StopTime, start.StopTime),
	}
}

func clampDelta(current, start *int64) int64 {
	d := deref(current) - deref(start)
	if d < 0 {
		return 0
	}
	return d
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
