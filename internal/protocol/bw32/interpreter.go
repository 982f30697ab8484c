package bw32

import (
	"fmt"
	"time"

	"fleettrack/internal/core/model"
)

// Event is a typed domain event decoded from one frame.
type Event interface {
	Source() string
}

type HeartbeatEvent struct {
	DeviceID  string
	Timestamp time.Time
}

type PositionEvent struct {
	Report *model.PositionReport
}

type AlarmEvent struct {
	Report *model.AlarmReport
}

// UnknownCommandEvent carries a command this server does not understand. It is
// surfaced for diagnostics and never acknowledged.
type UnknownCommandEvent struct {
	DeviceID string
	Command  string
	Payload  string
}

func (e HeartbeatEvent) Source() string      { return e.DeviceID }
func (e PositionEvent) Source() string       { return e.Report.DeviceID }
func (e AlarmEvent) Source() string          { return e.Report.DeviceID }
func (e UnknownCommandEvent) Source() string { return e.DeviceID }

// Interpreter maps frames to events and acknowledgements. It holds no
// per-connection state and may be shared.
type Interpreter struct {
	now func() time.Time
}

// InterpreterOption configures an Interpreter.
type InterpreterOption func(*Interpreter)

// WithClock overrides the clock used to timestamp heartbeats.
func WithClock(now func() time.Time) InterpreterOption {
	return func(i *Interpreter) {
		i.now = now
	}
}

func NewInterpreter(opts ...InterpreterOption) *Interpreter {
	i := &Interpreter{now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Interpret decodes frame. It returns the event (nil when the payload was
// rejected), the bytes to write back (nil when no ack is due), and the decode
// error if any.
func (i *Interpreter) Interpret(frame Frame) (Event, []byte, error) {
	switch frame.Command {
	case CommandHeartbeat:
		return HeartbeatEvent{DeviceID: frame.DeviceID, Timestamp: i.now().UTC()}, AckHeartbeat, nil

	case CommandPositionUpdate, CommandPositionUpdateV2:
		report, err := DecodePosition(frame.DeviceID, frame.Payload)
		if err != nil {
			return nil, nil, fmt.Errorf("decode %s from %s: %w", frame.Token, frame.DeviceID, err)
		}
		return PositionEvent{Report: report}, AckPosition, nil

	case CommandAlarm:
		report, err := DecodeAlarm(frame.DeviceID, frame.Payload)
		if err != nil {
			return nil, nil, fmt.Errorf("decode %s from %s: %w", frame.Token, frame.DeviceID, err)
		}
		return AlarmEvent{Report: report}, AckAlarm, nil

	default:
		return UnknownCommandEvent{
			DeviceID: frame.DeviceID,
			Command:  frame.Token,
			Payload:  frame.Payload,
		}, nil, nil
	}
}
