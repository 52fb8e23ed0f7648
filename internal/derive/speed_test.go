package derive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gps-fleet-backend/config"
	"gps-fleet-backend/internal/gpsbuddy"
)

func newTestMonitor() (*Monitor, *time.Time) {
	m := NewMonitor(&config.AlertsConfig{
		SpeedLimitKmh:       94,
		Cooldown:            5 * time.Minute,
		Window:              5 * time.Minute,
		TimezoneOffsetHours: 3,
	})
	clock := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	return m, &clock
}

func speeding(vehicleID int64, plate string, velocity int) gpsbuddy.VehicleTelemetry {
	return gpsbuddy.VehicleTelemetry{
		VehicleID: vehicleID,
		Plate:     &plate,
		Velocity:  &velocity,
	}
}

func TestMonitorCheck_BelowLimitIsQuiet(t *testing.T) {
	m, _ := newTestMonitor()

	assert.Empty(t, m.Check([]gpsbuddy.VehicleTelemetry{
		speeding(1, "AB123", 94), // exactly at the limit
		speeding(2, "CD456", 60),
		{VehicleID: 3}, // no velocity reading at all
	}))
}

func TestMonitorCheck_CooldownDebouncesRepeats(t *testing.T) {
	m, clock := newTestMonitor()

	alerts := m.Check([]gpsbuddy.VehicleTelemetry{speeding(1, "AB123", 110)})
	require.Len(t, alerts, 1)
	assert.Equal(t, 110, alerts[0].Velocity)

	// One minute later the same vehicle is still speeding: suppressed.
	*clock = clock.Add(1 * time.Minute)
	assert.Empty(t, m.Check([]gpsbuddy.VehicleTelemetry{speeding(1, "AB123", 115)}))

	// Past the cooldown a fresh alert fires.
	*clock = clock.Add(5 * time.Minute)
	alerts = m.Check([]gpsbuddy.VehicleTelemetry{speeding(1, "AB123", 105)})
	require.Len(t, alerts, 1)
	assert.Equal(t, 105, alerts[0].Velocity)
}

func TestMonitorCheck_CooldownIsPerVehicle(t *testing.T) {
	m, clock := newTestMonitor()

	require.Len(t, m.Check([]gpsbuddy.VehicleTelemetry{speeding(1, "AB123", 110)}), 1)

	*clock = clock.Add(1 * time.Minute)
	alerts := m.Check([]gpsbuddy.VehicleTelemetry{
		speeding(1, "AB123", 112),
		speeding(2, "CD456", 100),
	})
	require.Len(t, alerts, 1)
	assert.Equal(t, int64(2), alerts[0].VehicleID)
}

func TestMonitorCheck_WindowMaxCarriesIntoAlert(t *testing.T) {
	m, clock := newTestMonitor()

	// A faster observation during the cooldown is remembered; the next
	// alert after the cooldown quotes the window maximum, not just the
	// current reading.
	require.Len(t, m.Check([]gpsbuddy.VehicleTelemetry{speeding(1, "AB123", 100)}), 1)

	*clock = clock.Add(2 * time.Minute)
	assert.Empty(t, m.Check([]gpsbuddy.VehicleTelemetry{speeding(1, "AB123", 130)}))

	*clock = clock.Add(3 * time.Minute)
	alerts := m.Check([]gpsbuddy.VehicleTelemetry{speeding(1, "AB123", 105)})
	require.Len(t, alerts, 1)
	assert.Equal(t, 130, alerts[0].MaxSpeed, "window max from 3 minutes ago")
	assert.Contains(t, alerts[0].Text, "up to 130 km/h in the last 5 min")
}

func TestMonitorBuildAlert_Text(t *testing.T) {
	m, _ := newTestMonitor()

	driver := "J. Doe"
	location := "Main St"
	v := speeding(7, "AB123", 110)
	v.DriverName = &driver
	v.Location = &location

	alerts := m.Check([]gpsbuddy.VehicleTelemetry{v})
	require.Len(t, alerts, 1)

	// 09:00 UTC is 12:00 at the configured UTC+3 offset.
	assert.Equal(t,
		"AB123 is doing 110 km/h (limit 94 km/h), driver J. Doe, near Main St, at 12:00",
		alerts[0].Text)
	assert.Equal(t, "speed_violation", alerts[0].Metadata()["type"])
}
