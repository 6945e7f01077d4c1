package device

import "errors"

// Device domain errors
var (
	ErrDeviceNotFound   = errors.New("device not found")
	ErrSerialIDExists   = errors.New("device with this serial ID already exists")
	ErrIPExists         = errors.New("device with this IP address already exists")
	ErrDeviceInactive   = errors.New("device is not active")
	ErrProbeFailed      = errors.New("device connectivity test failed")
	ErrInvalidIP        = errors.New("invalid device IP address")
	ErrInvalidPort      = errors.New("device port must be between 1 and 65535")
	ErrInvalidInterval  = errors.New("sync interval must not be negative")
	ErrSessionStillOpen = errors.New("device has a live session, tear it down first")
	ErrNameRequired     = errors.New("device name is required")
	ErrSerialIDRequired = errors.New("device serial ID is required")
)
