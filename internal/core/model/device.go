package model

import (
	"time"
)

// Assignment states of a DeviceRecord.
const (
	StatusUnassigned = "unassigned"
	StatusAssigned   = "assigned"
)

// DeviceRecord is the registry entry for one tracker. It outlives any TCP
// connection the tracker opens, but not the process.
type DeviceRecord struct {
	DeviceID     string     `json:"deviceId"`
	VehicleID    string     `json:"vehicleId,omitempty"`
	DisplayName  string     `json:"displayName,omitempty"`
	Status       string     `json:"status"`
	RegisteredAt time.Time  `json:"registeredAt"`
	LastSeenAt   *time.Time `json:"lastSeenAt,omitempty"`
}

// NewDeviceRecord returns an unassigned record registered at now.
func NewDeviceRecord(deviceID string, now time.Time) *DeviceRecord {
	return &DeviceRecord{
		DeviceID:     deviceID,
		Status:       StatusUnassigned,
		RegisteredAt: now,
	}
}

// Assigned reports whether the record currently tracks a vehicle.
func (d *DeviceRecord) Assigned() bool {
	return d.VehicleID != ""
}

// Touch moves LastSeenAt forward to at. Older timestamps are ignored so a late
// event never rewinds the record.
func (d *DeviceRecord) Touch(at time.Time) {
	if d.LastSeenAt != nil && at.Before(*d.LastSeenAt) {
		return
	}
	seen := at
	d.LastSeenAt = &seen
}

// OnlineAt reports whether the device was seen within window of now.
func (d *DeviceRecord) OnlineAt(now time.Time, window time.Duration) bool {
	if d.LastSeenAt == nil {
		return false
	}
	return now.Sub(*d.LastSeenAt) <= window
}

// Clone returns a copy that shares no pointers with d.
func (d *DeviceRecord) Clone() *DeviceRecord {
	c := *d
	if d.LastSeenAt != nil {
		seen := *d.LastSeenAt
		c.LastSeenAt = &seen
	}
	return &c
}

// Assignment is a static device-to-vehicle mapping supplied by the CRUD layer.
type Assignment struct {
	DeviceID    string `json:"deviceId" bson:"deviceId"`
	VehicleID   string `json:"vehicleId" bson:"vehicleId"`
	DisplayName string `json:"displayName,omitempty" bson:"displayName,omitempty"`
}
