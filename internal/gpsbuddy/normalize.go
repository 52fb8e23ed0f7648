package gpsbuddy

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var msDateRe = regexp.MustCompile(`/Date\((-?\d+)[^)]*\)/`)

// Field name candidates per canonical field. The upstream renames columns
// between function versions, so every field is looked up by a candidate list
// against lower-cased keys.
var (
	keysVehicleID     = []string{"vehicleid", "vehicle_id", "id"}
	keysPlate         = []string{"plate", "licenseplate", "license_plate", "platenumber"}
	keysDriver        = []string{"drivername", "driver_name", "driver"}
	keysLatitude      = []string{"latitude", "lat"}
	keysLongitude     = []string{"longitude", "lng", "lon"}
	keysVelocity      = []string{"velocity", "speed"}
	keysAddress       = []string{"address"}
	keysLocation      = []string{"location", "place"}
	keysDirection     = []string{"direction", "heading"}
	keysTimeIndicator = []string{"time_indicator", "timeindicator", "gpstime", "gps_time", "timestamp"}
	keysDriveTime     = []string{"drivetime", "drive_time"}
	keysWorkTime      = []string{"worktime", "work_time"}
	keysIdleTime      = []string{"idletime", "idle_time"}
	keysStopTime      = []string{"stoptime", "stop_time"}
	keysTotalDistance = []string{"totaldistance", "total_distance", "odometer"}
	keysStartKm       = []string{"startkm", "start_km"}
	keysFlags         = []string{"flags", "flag"}
	keysCommunication = []string{"communication", "communicationok", "comok"}
	keysColorCode     = []string{"colorcode", "color_code", "color"}
)

// NormalizeRows maps raw upstream rows into canonical records. Rows without
// a usable vehicle identity are dropped.
func NormalizeRows(rows []map[string]any) []VehicleTelemetry {
	out := make([]VehicleTelemetry, 0, len(rows))
	for _, raw := range rows {
		if v := normalizeRow(raw); v != nil {
			out = append(out, *v)
		}
	}
	return out
}

func normalizeRow(raw map[string]any) *VehicleTelemetry {
	row := make(map[string]any, len(raw))
	for k, v := range raw {
		row[strings.ToLower(strings.TrimSpace(k))] = v
	}

	id := parseInt64(lookup(row, keysVehicleID))
	if id == nil || *id == 0 {
		return nil
	}

	return &VehicleTelemetry{
		VehicleID:       *id,
		Plate:           normalizePlate(parseString(lookup(row, keysPlate))),
		DriverName:      parseString(lookup(row, keysDriver)),
		Latitude:        parseFloat(lookup(row, keysLatitude)),
		Longitude:       parseFloat(lookup(row, keysLongitude)),
		Velocity:        parseVelocity(lookup(row, keysVelocity)),
		Address:         parseString(lookup(row, keysAddress)),
		Location:        parseString(lookup(row, keysLocation)),
		Direction:       parseFloat(lookup(row, keysDirection)),
		TimeIndicator:   parseTime(lookup(row, keysTimeIndicator)),
		DriveTime:       parseInt64(lookup(row, keysDriveTime)),
		WorkTime:        parseInt64(lookup(row, keysWorkTime)),
		IdleTime:        parseInt64(lookup(row, keysIdleTime)),
		StopTime:        parseInt64(lookup(row, keysStopTime)),
		TotalDistance:   parseFloat(lookup(row, keysTotalDistance)),
		StartKm:         parseFloat(lookup(row, keysStartKm)),
		Flags:           parseInt64(lookup(row, keysFlags)),
		CommunicationOK: parseBool(lookup(row, keysCommunication)),
		ColorCode:       parseString(lookup(row, keysColorCode)),
	}
}

func lookup(row map[string]any, keys []string) any {
	for _, k := range keys {
		if v, ok := row[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func parseString(v any) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(fmt.Sprintf("%v", v))
	if s == "" {
		return nil
	}
	return &s
}

func normalizePlate(plate *string) *string {
	if plate == nil {
		return nil
	}
	p := strings.ToUpper(strings.ReplaceAll(*plate, " ", ""))
	if p == "" {
		return nil
	}
	return &p
}

// parseFloat parses defensively: non-numeric values become nil, not zero.
func parseFloat(v any) *float64 {
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		return &t
	case float32:
		f := float64(t)
		return &f
	case int:
		f := float64(t)
		return &f
	case int64:
		f := float64(t)
		return &f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

func parseInt64(v any) *int64 {
	f := parseFloat(v)
	if f == nil {
		return nil
	}
	n := int64(math.Round(*f))
	return &n
}

func parseVelocity(v any) *int {
	f := parseFloat(v)
	if f == nil {
		return nil
	}
	n := int(math.Round(*f))
	return &n
}

func parseBool(v any) *bool {
	switch t := v.(type) {
	case nil:
		return nil
	case bool:
		return &t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return nil
		}
		return &b
	case float64:
		b := t != 0
		return &b
	default:
		return nil
	}
}

// parseTime handles the upstream's proprietary /Date(<millis>)/ encoding
// first, then falls back to generic layouts. Unparseable values become nil.
func parseTime(v any) *time.Time {
	s := parseString(v)
	if s == nil {
		return nil
	}

	if m := msDateRe.FindStringSubmatch(*s); m != nil {
		millis, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return nil
		}
		t := time.UnixMilli(millis).UTC()
		return &t
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, *s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
