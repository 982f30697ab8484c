package server

import (
	"context"
	"time"

	"fleettrack/internal/core/model"
)

// EventSink receives the decoded device events of every session. The device
// registry implements it.
type EventSink interface {
	HandleHeartbeat(ctx context.Context, deviceID string, at time.Time) error
	HandlePosition(ctx context.Context, report *model.PositionReport) error
	HandleAlarm(ctx context.Context, alarm *model.AlarmReport) error
}

// IdentityPolicy decides what a session does with a frame whose device id
// differs from the first one seen on the connection.
type IdentityPolicy string

const (
	// IdentityStrict logs and ignores mismatching frames.
	IdentityStrict IdentityPolicy = "strict"
	// IdentityMultiplex processes every frame under its own device id.
	IdentityMultiplex IdentityPolicy = "multiplex"
)

// Valid reports whether p is a known policy.
func (p IdentityPolicy) Valid() bool {
	return p == IdentityStrict || p == IdentityMultiplex
}
