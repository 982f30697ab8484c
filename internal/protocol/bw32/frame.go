package bw32

import (
	"fmt"
	"strconv"
	"strings"
)

// Command identifies the message type carried by a frame.
type Command int

const (
	CommandUnknown Command = iota
	CommandHeartbeat
	CommandPositionUpdate
	CommandPositionUpdateV2
	CommandAlarm
)

func (c Command) String() string {
	switch c {
	case CommandHeartbeat:
		return "Heartbeat"
	case CommandPositionUpdate:
		return "PositionUpdate"
	case CommandPositionUpdateV2:
		return "PositionUpdateV2"
	case CommandAlarm:
		return "Alarm"
	default:
		return "Unknown"
	}
}

func commandFromToken(token string) Command {
	switch token {
	case tokenHeartbeat:
		return CommandHeartbeat
	case tokenPosition:
		return CommandPositionUpdate
	case tokenPositionV2:
		return CommandPositionUpdateV2
	case tokenAlarm:
		return CommandAlarm
	default:
		return CommandUnknown
	}
}

// Frame is one parsed protocol unit.
type Frame struct {
	DeviceID string
	// DeclaredLength is the length the device claims, or -1 if the token is
	// not a decimal number. Framing never relies on it.
	DeclaredLength int
	LengthToken    string
	Command        Command
	// Token is the command exactly as sent, e.g. "UD2" or "XYZ".
	Token   string
	Payload string
}

// ParseFrame parses one delimiter-terminated frame. Only the first two '*' are
// structural; anything after them is command and payload, split on the first
// comma.
func ParseFrame(raw []byte) (Frame, error) {
	s := string(raw)

	if !strings.HasPrefix(s, startSequence) {
		return Frame{}, fmt.Errorf("%w: missing %q prefix", ErrMalformedFrame, startSequence)
	}
	if s[len(s)-1] != Delimiter {
		return Frame{}, fmt.Errorf("%w: missing %q terminator", ErrMalformedFrame, Delimiter)
	}

	body := s[len(startSequence) : len(s)-1]
	parts := strings.SplitN(body, separator, 3)
	if len(parts) < 3 {
		return Frame{}, fmt.Errorf("%w: expected 3 '*' separated parts, got %d", ErrMalformedFrame, len(parts))
	}
	if parts[0] == "" {
		return Frame{}, fmt.Errorf("%w: empty device id", ErrMalformedFrame)
	}

	declared, err := strconv.Atoi(parts[1])
	if err != nil {
		declared = -1
	}

	token, payload, _ := strings.Cut(parts[2], ",")

	return Frame{
		DeviceID:       parts[0],
		DeclaredLength: declared,
		LengthToken:    parts[1],
		Command:        commandFromToken(token),
		Token:          token,
		Payload:        payload,
	}, nil
}

// Encode renders the frame back into wire form.
func (f Frame) Encode() []byte {
	var b strings.Builder
	b.WriteString(startSequence)
	b.WriteString(f.DeviceID)
	b.WriteString(separator)
	b.WriteString(f.LengthToken)
	b.WriteString(separator)
	b.WriteString(f.Token)
	if f.Payload != "" {
		b.WriteByte(',')
		b.WriteString(f.Payload)
	}
	b.WriteByte(Delimiter)
	return []byte(b.String())
}
