package model

import "time"

// PushSubscription holds the information for a browser push subscription.
// An operator subscribes to speed alerts for specific vehicles; an empty
// target list means alerts for the whole fleet.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations
	Vehicles []SubscriptionVehicle `gorm:"foreignKey:Endpoint;constraint:OnDelete:CASCADE"`
}

// SubscriptionVehicle links a push subscription to a vehicle it watches.
type SubscriptionVehicle struct {
	Endpoint  string `gorm:"primaryKey;size:512"`
	VehicleID int64  `gorm:"primaryKey"`
}
