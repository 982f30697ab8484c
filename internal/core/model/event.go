package model

import (
	"time"
)

// Channel names the stream an outbound event belongs to.
type Channel string

const (
	ChannelHeartbeat Channel = "heartbeat"
	ChannelPosition  Channel = "position"
	ChannelAlarm     Channel = "alarm"
	ChannelDiscovery Channel = "discovery"
)

// Alarm severities.
const (
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Event is a vehicle-scoped update pushed to real-time subscribers.
type Event interface {
	Channel() Channel
	// Key is the partitioning key; events with the same key keep their order.
	Key() string
}

type HeartbeatUpdate struct {
	DeviceID  string    `json:"deviceId"`
	VehicleID string    `json:"vehicleId"`
	Timestamp time.Time `json:"timestamp"`
}

func (HeartbeatUpdate) Channel() Channel { return ChannelHeartbeat }
func (e HeartbeatUpdate) Key() string    { return e.DeviceID }

type PositionUpdate struct {
	VehicleID  string    `json:"vehicleId"`
	DeviceID   string    `json:"deviceId"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	SpeedKph   float64   `json:"speedKph"`
	CourseDeg  float64   `json:"courseDeg"`
	Timestamp  time.Time `json:"timestamp"`
	GPSValid   bool      `json:"gpsValid"`
	Satellites *int      `json:"satellites"`
	Altitude   *float64  `json:"altitude"`
}

func (PositionUpdate) Channel() Channel { return ChannelPosition }
func (e PositionUpdate) Key() string    { return e.DeviceID }

type AlarmUpdate struct {
	VehicleID string    `json:"vehicleId"`
	DeviceID  string    `json:"deviceId"`
	AlarmType string    `json:"alarmType"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
}

func (AlarmUpdate) Channel() Channel { return ChannelAlarm }
func (e AlarmUpdate) Key() string    { return e.DeviceID }

// DeviceDiscovered announces a tracker that sent a heartbeat before anyone
// registered it.
type DeviceDiscovered struct {
	DeviceID  string    `json:"deviceId"`
	Timestamp time.Time `json:"timestamp"`
}

func (DeviceDiscovered) Channel() Channel { return ChannelDiscovery }
func (e DeviceDiscovered) Key() string    { return e.DeviceID }

// NewPositionUpdate builds the outbound position event for a report.
func NewPositionUpdate(vehicleID string, p *PositionReport) PositionUpdate {
	return PositionUpdate{
		VehicleID:  vehicleID,
		DeviceID:   p.DeviceID,
		Latitude:   p.Latitude,
		Longitude:  p.Longitude,
		SpeedKph:   p.SpeedKph,
		CourseDeg:  p.CourseDeg,
		Timestamp:  p.FixTime,
		GPSValid:   p.GPSValid,
		Satellites: p.Satellites,
		Altitude:   p.Altitude,
	}
}
