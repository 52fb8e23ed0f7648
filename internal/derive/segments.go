package derive

import (
	"fmt"
	"math"
	"time"

	"gps-fleet-backend/internal/model"
)

// SegmentType classifies a run of history samples.
type SegmentType string

const (
	SegmentDrive SegmentType = "Drive"
	SegmentStop  SegmentType = "Stop"

	// Haversine gives great-circle distance; real roads are longer.
	roadDetourFactor = 1.2

	// Segment distances below this are coordinate noise, not movement.
	distanceNoiseFloorKm = 0.1

	driveVelocityThreshold = 1 // km/h
)

// Segment is a maximal run of consecutive samples sharing a Drive/Stop
// classification.
type Segment struct {
	Type            SegmentType `json:"type"`
	StartTime       *time.Time  `json:"startTime"`
	EndTime         *time.Time  `json:"endTime"`
	StartLocation   string      `json:"startLocation"`
	EndLocation     string      `json:"endLocation"`
	StartLatitude   *float64    `json:"startLatitude"`
	StartLongitude  *float64    `json:"startLongitude"`
	EndLatitude     *float64    `json:"endLatitude"`
	EndLongitude    *float64    `json:"endLongitude"`
	StartKm         *float64    `json:"startKm"`
	EndKm           *float64    `json:"endKm"`
	DurationSeconds int64       `json:"durationSeconds"`
	Duration        string      `json:"duration"`
	DistanceKm      float64     `json:"distanceKm"`
}

// SegmentSummary totals the drive and stop segments of a window.
type SegmentSummary struct {
	DriveSeconds    int64   `json:"driveSeconds"`
	DriveDuration   string  `json:"driveDuration"`
	DriveDistanceKm float64 `json:"driveDistanceKm"`
	StopSeconds     int64   `json:"stopSeconds"`
	StopDuration    string  `json:"stopDuration"`
}

// BuildSegments run-length-encodes a time-ascending history window into
// drive/stop segments with duration and estimated road distance. A segment
// extends to the first sample of the following run, so the gap between two
// runs belongs to the earlier one and durations sum to the window's elapsed
// time. Empty input yields an empty segment list and a zeroed summary.
func BuildSegments(rows []model.VehicleHistory) ([]Segment, SegmentSummary) {
	segments := []Segment{}
	var summary SegmentSummary
	if len(rows) == 0 {
		return segments, summary
	}

	start := 0
	current := classify(rows[0])
	for i := 1; i <= len(rows); i++ {
		if i < len(rows) && classify(rows[i]) == current {
			continue
		}
		end := i
		if end == len(rows) {
			end = len(rows) - 1
		}
		segments = append(segments, buildSegment(current, rows[start], rows[end]))
		if i < len(rows) {
			start = i
			current = classify(rows[i])
		}
	}

	for _, seg := range segments {
		switch seg.Type {
		case SegmentDrive:
			summary.DriveSeconds += seg.DurationSeconds
			summary.DriveDistanceKm += seg.DistanceKm
		case SegmentStop:
			summary.StopSeconds += seg.DurationSeconds
		}
	}
	summary.DriveDistanceKm = math.Round(summary.DriveDistanceKm*10) / 10
	summary.DriveDuration = FormatDuration(summary.DriveSeconds)
	summary.StopDuration = FormatDuration(summary.StopSeconds)
	return segments, summary
}

func classify(row model.VehicleHistory) SegmentType {
	if row.Velocity != nil && *row.Velocity >= driveVelocityThreshold {
		return SegmentDrive
	}
	return SegmentStop
}

func buildSegment(t SegmentType, first, last model.VehicleHistory) Segment {
	seg := Segment{
		Type:           t,
		StartTime:      first.TimeIndicator,
		EndTime:        last.TimeIndicator,
		StartLocation:  strOrEmpty(first.Location),
		EndLocation:    strOrEmpty(last.Location),
		StartLatitude:  first.Latitude,
		StartLongitude: first.Longitude,
		EndLatitude:    last.Latitude,
		EndLongitude:   last.Longitude,
		StartKm:        first.TotalDistance,
		EndKm:          last.TotalDistance,
	}

	if first.TimeIndicator != nil && last.TimeIndicator != nil {
		secs := int64(last.TimeIndicator.Sub(*first.TimeIndicator).Seconds())
		if secs < 0 {
			secs = 0
		}
		seg.DurationSeconds = secs
	}
	seg.Duration = FormatDuration(seg.DurationSeconds)
	seg.DistanceKm = segmentDistanceKm(first, last)
	return seg
}

// segmentDistanceKm estimates the road distance between segment endpoints.
// Missing or zero coordinates yield 0.
func segmentDistanceKm(first, last model.VehicleHistory) float64 {
	if !usableCoord(first.Latitude, first.Longitude) || !usableCoord(last.Latitude, last.Longitude) {
		return 0
	}
	km := haversineKm(*first.Latitude, *first.Longitude, *last.Latitude, *last.Longitude) * roadDetourFactor
	km = math.Round(km*10) / 10
	if km < distanceNoiseFloorKm {
		return 0
	}
	return km
}

func usableCoord(lat, lon *float64) bool {
	return lat != nil && lon != nil && *lat != 0 && *lon != 0
}

// haversineKm computes the great-circle distance between two coordinates.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0

	lat1Rad := lat1 * math.Pi / 180.0
	lon1Rad := lon1 * math.Pi / 180.0
	lat2Rad := lat2 * math.Pi / 180.0
	lon2Rad := lon2 * math.Pi / 180.0

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// FormatDuration renders whole seconds as "Hh Mm", omitting the hour part
// when it is zero.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	if hours == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
