package model

import "time"

// VehicleState is the last known snapshot of a vehicle (hot table).
// One row per vehicle, overwritten on every successful poll.
type VehicleState struct {
	VehicleID       int64      `gorm:"primaryKey" json:"vehicleId"`
	Plate           *string    `gorm:"size:32" json:"plate"`
	DriverName      *string    `gorm:"size:128" json:"driverName"`
	Latitude        *float64   `json:"latitude"`
	Longitude       *float64   `json:"longitude"`
	Velocity        *int       `json:"velocity"`
	Address         *string    `gorm:"size:512" json:"address"`
	Location        *string    `gorm:"size:512" json:"location"`
	Direction       *float64   `json:"direction"`
	TimeIndicator   *time.Time `gorm:"index" json:"timeIndicator"`
	DriveTime       *int64     `json:"driveTime"`
	WorkTime        *int64     `json:"workTime"`
	IdleTime        *int64     `json:"idleTime"`
	StopTime        *int64     `json:"stopTime"`
	TotalDistance   *float64   `json:"totalDistance"`
	StartKm         *float64   `json:"startKm"`
	Flags           *int64     `json:"flags"`
	CommunicationOK *bool      `json:"communicationOk"`
	ColorCode       *string    `gorm:"size:32" json:"colorCode"`
	UpdatedAt       time.Time  `gorm:"not null" json:"updatedAt"` // Ingestion time, not telemetry time
}

// VehicleHistory is the append-only per-vehicle time series (cold table).
// Rows are keyed by (vehicle_id, time_indicator); duplicate timestamps for
// the same vehicle are dropped on insert, never overwritten.
type VehicleHistory struct {
	ID              int64      `gorm:"autoIncrement;primaryKey" json:"-"`
	VehicleID       int64      `gorm:"not null;uniqueIndex:idx_vehicle_history_key" json:"vehicleId"`
	TimeIndicator   *time.Time `gorm:"uniqueIndex:idx_vehicle_history_key;index" json:"timeIndicator"`
	Plate           *string    `gorm:"size:32" json:"plate"`
	DriverName      *string    `gorm:"size:128" json:"driverName"`
	Latitude        *float64   `json:"latitude"`
	Longitude       *float64   `json:"longitude"`
	Velocity        *int       `json:"velocity"`
	Address         *string    `gorm:"size:512" json:"address"`
	Location        *string    `gorm:"size:512" json:"location"`
	Direction       *float64   `json:"direction"`
	DriveTime       *int64     `json:"driveTime"`
	WorkTime        *int64     `json:"workTime"`
	IdleTime        *int64     `json:"idleTime"`
	StopTime        *int64     `json:"stopTime"`
	TotalDistance   *float64   `json:"totalDistance"`
	StartKm         *float64   `json:"startKm"`
	Flags           *int64     `json:"flags"`
	CommunicationOK *bool      `json:"communicationOk"`
	ColorCode       *string    `gorm:"size:32" json:"colorCode"`
	CreatedAt       time.Time  `json:"createdAt"`
}
