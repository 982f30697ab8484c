package bw32

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"fleettrack/internal/core/model"
)

// DecodePosition decodes a UD/UD2/AL payload:
//
//	YYMMDD,hhmmss,A|V,DDMM.MMMM,N|S,DDDMM.MMMM,E|W,speedKnots,courseDeg[,sats][,alt]
//
// A report missing any mandatory field, or with a field that does not parse,
// is rejected as a whole.
func DecodePosition(deviceID, payload string) (*model.PositionReport, error) {
	fields := strings.Split(payload, ",")
	if len(fields) < minPositionFields {
		return nil, fmt.Errorf("%w: got %d fields, need at least %d", ErrInvalidPayload, len(fields), minPositionFields)
	}

	fixTime, err := parseFixTime(fields[fieldDate], fields[fieldTime])
	if err != nil {
		return nil, err
	}

	lat, err := parseCoordinate(fields[fieldLat], fields[fieldLatHemi], 90)
	if err != nil {
		return nil, fmt.Errorf("latitude: %w", err)
	}

	lon, err := parseCoordinate(fields[fieldLon], fields[fieldLonHemi], 180)
	if err != nil {
		return nil, fmt.Errorf("longitude: %w", err)
	}

	speed, err := parseNumber(fields[fieldSpeed])
	if err != nil {
		return nil, fmt.Errorf("%w: speed %q", ErrInvalidPayload, fields[fieldSpeed])
	}

	course, err := parseNumber(fields[fieldCourse])
	if err != nil {
		return nil, fmt.Errorf("%w: course %q", ErrInvalidPayload, fields[fieldCourse])
	}

	report := &model.PositionReport{
		DeviceID:  deviceID,
		FixTime:   fixTime,
		Latitude:  lat,
		Longitude: lon,
		SpeedKph:  speed * knotsToKph,
		CourseDeg: course,
		GPSValid:  fields[fieldValidity] == "A",
	}

	if v, ok := optionalField(fields, fieldSatellites); ok {
		sats, err := strconv.Atoi(v)
		if err != nil || sats < 0 {
			return nil, fmt.Errorf("%w: satellites %q", ErrInvalidPayload, v)
		}
		report.Satellites = &sats
	}

	if v, ok := optionalField(fields, fieldAltitude); ok {
		alt, err := parseNumber(v)
		if err != nil {
			return nil, fmt.Errorf("%w: altitude %q", ErrInvalidPayload, v)
		}
		report.Altitude = &alt
	}

	return report, nil
}

// DecodeAlarm decodes an AL payload. The alarm type is the optional field
// after altitude; trackers that omit it report a general alarm.
func DecodeAlarm(deviceID, payload string) (*model.AlarmReport, error) {
	report, err := DecodePosition(deviceID, payload)
	if err != nil {
		return nil, err
	}

	alarmType := defaultAlarmType
	if v, ok := optionalField(strings.Split(payload, ","), fieldAlarmType); ok {
		alarmType = strings.ToLower(v)
	}

	return &model.AlarmReport{
		PositionReport: *report,
		AlarmType:      alarmType,
	}, nil
}

// parseFixTime builds a UTC instant from YYMMDD and hhmmss. Two-digit years
// are always 20YY.
func parseFixTime(date, clock string) (time.Time, error) {
	if len(date) != 6 || len(clock) != 6 {
		return time.Time{}, fmt.Errorf("%w: date %q time %q", ErrInvalidTimestamp, date, clock)
	}

	var n [6]int
	digits := date + clock
	for i := range n {
		v, err := strconv.Atoi(digits[i*2 : i*2+2])
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: date %q time %q", ErrInvalidTimestamp, date, clock)
		}
		n[i] = v
	}

	year, month, day := 2000+n[0], n[1], n[2]
	hour, minute, second := n[3], n[4], n[5]
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, fmt.Errorf("%w: date %q time %q out of range", ErrInvalidTimestamp, date, clock)
	}

	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, fmt.Errorf("%w: no day %d in %s %d", ErrInvalidTimestamp, day, time.Month(month), year)
	}
	return t, nil
}

// parseCoordinate converts DDMM.MMMM / DDDMM.MMMM to signed decimal degrees.
func parseCoordinate(raw, hemisphere string, limit float64) (float64, error) {
	v, err := parseNumber(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCoordinate, raw)
	}

	degrees := math.Floor(v / 100)
	minutes := math.Mod(v, 100)
	if minutes >= 60 {
		return 0, fmt.Errorf("%w: %q has %v minutes", ErrInvalidCoordinate, raw, minutes)
	}
	decimal := degrees + minutes/60.0
	if decimal > limit {
		return 0, fmt.Errorf("%w: %q exceeds %v degrees", ErrInvalidCoordinate, raw, limit)
	}

	if hemisphere == "S" || hemisphere == "W" {
		decimal = -decimal
	}
	return decimal, nil
}

// parseNumber parses a finite decimal number.
func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, strconv.ErrSyntax
	}
	return v, nil
}

func optionalField(fields []string, i int) (string, bool) {
	if i >= len(fields) {
		return "", false
	}
	v := strings.TrimSpace(fields[i])
	return v, v != ""
}
