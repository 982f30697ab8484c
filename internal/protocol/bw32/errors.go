package bw32

import "errors"

var (
	ErrMalformedFrame    = errors.New("malformed frame")
	ErrBufferOverflow    = errors.New("buffer exceeded limit without delimiter")
	ErrInvalidPayload    = errors.New("invalid payload")
	ErrInvalidTimestamp  = errors.New("invalid timestamp")
	ErrInvalidCoordinate = errors.New("invalid coordinate")
)
