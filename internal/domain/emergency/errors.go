package emergency

import "errors"

var (
	ErrEmergencyNotFound       = errors.New("emergency not found")
	ErrInvalidStatus           = errors.New("invalid emergency status")
	ErrInvalidStatusTransition = errors.New("invalid emergency status transition")
	ErrVersionConflict         = errors.New("emergency was modified concurrently")
)
