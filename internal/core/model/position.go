package model

import (
	"time"
)

// PositionReport is one decoded GPS fix. Satellites and Altitude are nil when
// the tracker did not send them.
type PositionReport struct {
	DeviceID   string    `json:"deviceId"`
	FixTime    time.Time `json:"fixTime"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	SpeedKph   float64   `json:"speedKph"`
	CourseDeg  float64   `json:"courseDeg"`
	GPSValid   bool      `json:"gpsValid"`
	Satellites *int      `json:"satellites,omitempty"`
	Altitude   *float64  `json:"altitude,omitempty"`
}

// Clone returns a deep copy of p.
func (p *PositionReport) Clone() *PositionReport {
	c := *p
	if p.Satellites != nil {
		s := *p.Satellites
		c.Satellites = &s
	}
	if p.Altitude != nil {
		a := *p.Altitude
		c.Altitude = &a
	}
	return &c
}

// AlarmReport is a position report raised by the tracker's alarm command.
type AlarmReport struct {
	PositionReport
	AlarmType string `json:"alarmType"`
}
