package uartbridge

import "errors"

// Predefined error types for robust error handling
var (
	ErrDeviceNotFound        = errors.New("device not found on control bus")
	ErrConfigurationRejected = errors.New("UART configuration rejected")
	ErrBridgeRejected        = errors.New("bridge enable rejected")
	ErrTransport             = errors.New("bridge transport failure")
	ErrMalformedHex          = errors.New("malformed hex command")
	ErrNotConnected          = errors.New("bridge socket not connected")
	ErrInvalidConfig         = errors.New("invalid bridge configuration")

	// State machine errors
	ErrInvalidTransition = errors.New("invalid session state transition")

	// Gripper frame errors
	ErrInvalidFingerPosition = errors.New("finger position must be between 0 and 100")
)
