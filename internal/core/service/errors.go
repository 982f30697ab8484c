package service

import "errors"

var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrAlreadyAssigned     = errors.New("device already assigned to another vehicle")
	ErrVehicleInUse        = errors.New("vehicle already has a device")
	ErrDeviceNotRegistered = errors.New("device not registered")
	ErrDeviceNotFound      = errors.New("device not found")
	ErrVehicleNotFound     = errors.New("no device assigned to vehicle")
)
