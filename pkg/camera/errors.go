package camera

import "errors"

var (
	// ErrNotReady is returned for capture requests made before the session
	// is open with preview running.
	ErrNotReady = errors.New("camera not ready")
	// ErrDeviceAccess wraps failures reported by the device.
	ErrDeviceAccess = errors.New("device access error")
	// ErrConfigurationFailed means the device rejected the session outputs.
	ErrConfigurationFailed = errors.New("session configuration failed")
	// ErrUnsupportedMode is only logged; unsupported modes fall back to off.
	ErrUnsupportedMode = errors.New("unsupported 3A mode")
	// ErrSequenceAborted marks a still sequence that hit an unexpected error.
	ErrSequenceAborted = errors.New("capture sequence aborted")
	ErrCaptureInFlight = errors.New("capture already in progress")
	ErrClosed          = errors.New("session closed")
)
