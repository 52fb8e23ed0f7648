package derive

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"gps-fleet-backend/config"
	"gps-fleet-backend/internal/gpsbuddy"
)

// Alert is a speed-violation notification ready for delivery.
type Alert struct {
	VehicleID int64     `json:"vehicleId"`
	Plate     string    `json:"plate"`
	Driver    string    `json:"driver"`
	Location  string    `json:"location"`
	Velocity  int       `json:"velocity"`
	MaxSpeed  int       `json:"maxSpeed"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Metadata is the structured payload forwarded to the notification sink.
func (a Alert) Metadata() map[string]any {
	return map[string]any{
		"type":      "speed_violation",
		"vehicleId": a.VehicleID,
		"plate":     a.Plate,
		"velocity":  a.Velocity,
		"maxSpeed":  a.MaxSpeed,
		"driver":    a.Driver,
		"location":  a.Location,
		"timestamp": a.Timestamp.UTC().Format(time.RFC3339),
	}
}

type maxSpeedEntry struct {
	MaxSpeed   int
	Plate      string
	Driver     string
	Location   string
	ObservedAt time.Time
}

type debounceEntry struct {
	LastAlertAt time.Time
}

// Monitor detects speed violations with a per-vehicle alert cooldown and a
// rolling max-speed window. All state is process-local and best-effort: a
// restart loses alert history by design.
type Monitor struct {
	limit       int
	cooldown    time.Duration
	window      time.Duration
	offsetHours int

	maxSpeeds  *cache.Cache
	lastAlerts *cache.Cache
	mu         sync.Mutex

	now func() time.Time
}

// NewMonitor creates a speed monitor from the alert configuration.
func NewMonitor(cfg *config.AlertsConfig) *Monitor {
	return &Monitor{
		limit:       cfg.SpeedLimitKmh,
		cooldown:    cfg.Cooldown,
		window:      cfg.Window,
		offsetHours: cfg.TimezoneOffsetHours,
		maxSpeeds:   cache.New(cfg.Window, cfg.Window),
		// Debounce entries outlive the cooldown gate so the gate can
		// compare against the stored alert time, not mere presence.
		lastAlerts: cache.New(2*cfg.Cooldown, cfg.Cooldown),
		now:        time.Now,
	}
}

// Check runs the speed-violation detection over one poll's vehicle batch and
// returns the alerts that passed the per-vehicle cooldown. Both rolling
// tables are swept on every call so memory stays bounded to the active
// fleet.
func (m *Monitor) Check(vehicles []gpsbuddy.VehicleTelemetry) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.maxSpeeds.DeleteExpired()
	m.lastAlerts.DeleteExpired()

	now := m.now()
	var alerts []Alert
	for _, v := range vehicles {
		if v.Velocity == nil || *v.Velocity <= m.limit {
			continue
		}
		key := strconv.FormatInt(v.VehicleID, 10)

		windowMax := m.updateMaxSpeed(key, v, now)

		if e, found := m.lastAlerts.Get(key); found {
			if now.Sub(e.(debounceEntry).LastAlertAt) < m.cooldown {
				continue
			}
		}
		m.lastAlerts.Set(key, debounceEntry{LastAlertAt: now}, 2*m.cooldown)

		alerts = append(alerts, m.buildAlert(v, windowMax, now))
	}
	return alerts
}

// updateMaxSpeed maintains the rolling max-speed entry for one vehicle and
// returns the current window maximum.
func (m *Monitor) updateMaxSpeed(key string, v gpsbuddy.VehicleTelemetry, now time.Time) int {
	velocity := *v.Velocity

	if existing, found := m.maxSpeeds.Get(key); found {
		entry := existing.(maxSpeedEntry)
		if now.Sub(entry.ObservedAt) <= m.window && velocity <= entry.MaxSpeed {
			return entry.MaxSpeed
		}
	}

	m.maxSpeeds.Set(key, maxSpeedEntry{
		MaxSpeed:   velocity,
		Plate:      strOrEmpty(v.Plate),
		Driver:     strOrEmpty(v.DriverName),
		Location:   strOrEmpty(v.Location),
		ObservedAt: now,
	}, m.window)
	return velocity
}

func (m *Monitor) buildAlert(v gpsbuddy.VehicleTelemetry, windowMax int, now time.Time) Alert {
	plate := strOrEmpty(v.Plate)
	driver := strOrEmpty(v.DriverName)
	location := strOrEmpty(v.Location)
	if location == "" {
		location = strOrEmpty(v.Address)
	}

	loc := time.FixedZone(fmt.Sprintf("UTC%+d", m.offsetHours), m.offsetHours*3600)
	localTime := now.In(loc).Format("15:04")

	label := plate
	if label == "" {
		label = fmt.Sprintf("vehicle %d", v.VehicleID)
	}

	text := fmt.Sprintf("%s is doing %d km/h (limit %d km/h)", label, *v.Velocity, m.limit)
	if windowMax > *v.Velocity {
		text += fmt.Sprintf(", up to %d km/h in the last %d min", windowMax, int(m.window.Minutes()))
	}
	if driver != "" {
		text += ", driver " + driver
	}
	if location != "" {
		text += ", near " + location
	}
	text += ", at " + localTime

	return Alert{
		VehicleID: v.VehicleID,
		Plate:     plate,
		Driver:    driver,
		Location:  location,
		Velocity:  *v.Velocity,
		MaxSpeed:  windowMax,
		Text:      text,
		Timestamp: now,
	}
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
