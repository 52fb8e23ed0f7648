package gpsbuddy

import "time"

// VehicleTelemetry is the canonical in-memory vehicle record produced per
// poll. VehicleID is the identity; every other field may be absent.
type VehicleTelemetry struct {
	VehicleID       int64      `json:"vehicleId"`
	Plate           *string    `json:"plate"`
	DriverName      *string    `json:"driverName"`
	Latitude        *float64   `json:"latitude"`
	Longitude       *float64   `json:"longitude"`
	Velocity        *int       `json:"velocity"`
	Address         *string    `json:"address"`
	Location        *string    `json:"location"`
	Direction       *float64   `json:"direction"`
	TimeIndicator   *time.Time `json:"timeIndicator"`
	DriveTime       *int64     `json:"driveTime"`
	WorkTime        *int64     `json:"workTime"`
	IdleTime        *int64     `json:"idleTime"`
	StopTime        *int64     `json:"stopTime"`
	TotalDistance   *float64   `json:"totalDistance"`
	StartKm         *float64   `json:"startKm"`
	Flags           *int64     `json:"flags"`
	CommunicationOK *bool      `json:"communicationOk"`
	ColorCode       *string    `json:"colorCode"`
}

// FetchMeta describes how a live fetch was satisfied.
type FetchMeta struct {
	FunctionName string    `json:"functionName"`
	FetchedAt    time.Time `json:"fetchedAt"`
}

// FetchResult is the outcome of a successful live fetch.
type FetchResult struct {
	Vehicles []VehicleTelemetry `json:"vehicles"`
	Meta     FetchMeta          `json:"meta"`
}
