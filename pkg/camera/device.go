package camera

import "context"

// Characteristics is what the device advertises.
type Characteristics struct {
	Name              string     `json:"name"`
	PreviewSizes      []Size     `json:"previewSizes"`
	StillSizes        []Size     `json:"stillSizes"`
	AFModes           []AFMode   `json:"afModes"`
	AEModes           []AEMode   `json:"aeModes"`
	AWBModes          []AWBMode  `json:"awbModes"`
	FPSRanges         []FPSRange `json:"fpsRanges"`
	EVRange           *EVRange   `json:"evRange,omitempty"`
	SensorOrientation int        `json:"sensorOrientation"`
}

// Device is the hardware side of a session. Every command is asynchronous:
// an error return means the command was not accepted, and its outcome arrives
// later through the Handler given to Open.
type Device interface {
	Characteristics(ctx context.Context) (Characteristics, error)

	// Open delivers EventOpened, or EventError/EventDisconnected.
	Open(ctx context.Context, h Handler) error
	// CreateSession delivers EventConfigured or EventConfigureFailed.
	CreateSession(outputs []OutputConfig) error

	SetRepeatingRequest(req *CaptureRequest) error
	Capture(req *CaptureRequest) error
	StopRepeating() error
	AbortCaptures() error

	CloseSession() error
	// Close releases the device. No events are delivered after it returns.
	Close() error
}

// Submitter is the part of Device the capture controller drives.
type Submitter interface {
	SetRepeatingRequest(req *CaptureRequest) error
	Capture(req *CaptureRequest) error
	StopRepeating() error
	AbortCaptures() error
}
