// Package bw32 decodes the ASCII protocol spoken by BW32-family GPS trackers.
//
// A frame on the wire looks like
//
//	BW*<deviceId>*<len>*<CMD>,<field1>,<field2>,...#
//
// Frames are delimited by '#'; the length token is advisory only.
package bw32

// Protocol constants
const (
	startSequence = "BW*"
	Delimiter     = '#'
	separator     = "*"

	// DefaultMaxBuffer bounds the bytes held while waiting for a delimiter.
	DefaultMaxBuffer = 8192

	knotsToKph = 1.852

	// Command tokens
	tokenHeartbeat  = "LK"
	tokenPosition   = "UD"
	tokenPositionV2 = "UD2"
	tokenAlarm      = "AL"

	// Position payload layout
	minPositionFields = 9
	fieldDate         = 0
	fieldTime         = 1
	fieldValidity     = 2
	fieldLat          = 3
	fieldLatHemi      = 4
	fieldLon          = 5
	fieldLonHemi      = 6
	fieldSpeed        = 7
	fieldCourse       = 8
	fieldSatellites   = 9
	fieldAltitude     = 10
	fieldAlarmType    = 11

	defaultAlarmType = "general"
)

// Acknowledgements written back to the tracker.
var (
	AckHeartbeat = []byte("ON")
	AckPosition  = []byte("OK")
	AckAlarm     = []byte("AL,OK")
)
