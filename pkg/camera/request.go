package camera

import "go.uber.org/atomic"

type Template int

const (
	TemplatePreview Template = iota
	TemplateStillCapture
)

func (t Template) String() string {
	if t == TemplateStillCapture {
		return "still"
	}
	return "preview"
}

// Output identifies a session output surface.
type Output int

const (
	OutputPreview Output = iota
	OutputStill
)

// OutputConfig is one surface passed to Device.CreateSession.
type OutputConfig struct {
	Output Output
	Size   Size
}

// CaptureRequest is an immutable description of one hardware request.
// Devices echo it back in every CaptureResult it produces.
type CaptureRequest struct {
	ID uint64
	// Sequence ties single requests to the still sequence that issued them.
	// It is zero for preview and housekeeping requests.
	Sequence  uint64
	Template  Template
	Target    Output
	Repeating bool

	Modes               Modes
	AFTrigger           Trigger
	AEPrecaptureTrigger Trigger
	AELock              bool
	AWBLock             bool

	ExposureCompensation *int
	FPSRange             *FPSRange
	JPEGOrientation      int
}

var requestIDs atomic.Uint64

func nextRequestID() uint64 {
	return requestIDs.Inc()
}

// PreviewRequest builds the repeating preview request with AE/AWB unlocked.
func (s Settings) PreviewRequest() *CaptureRequest {
	return &CaptureRequest{
		ID:                   nextRequestID(),
		Template:             TemplatePreview,
		Target:               OutputPreview,
		Repeating:            true,
		Modes:                s.Modes,
		ExposureCompensation: s.exposure(),
		FPSRange:             s.fpsRange(),
	}
}

// TriggerRequest builds a one-shot preview request carrying the given
// triggers. It starts from the session settings, never from a previous
// request, so trigger values cannot leak between requests.
func (s Settings) TriggerRequest(seq uint64, af, precapture Trigger) *CaptureRequest {
	return &CaptureRequest{
		ID:                   nextRequestID(),
		Sequence:             seq,
		Template:             TemplatePreview,
		Target:               OutputPreview,
		Modes:                s.Modes,
		AFTrigger:            af,
		AEPrecaptureTrigger:  precapture,
		ExposureCompensation: s.exposure(),
		FPSRange:             s.fpsRange(),
	}
}

// StillRequest builds the single still request: AE and AWB locked, the
// session modes and exposure compensation, and the orientation tag.
func (s Settings) StillRequest(seq uint64) *CaptureRequest {
	return &CaptureRequest{
		ID:                   nextRequestID(),
		Sequence:             seq,
		Template:             TemplateStillCapture,
		Target:               OutputStill,
		Modes:                s.Modes,
		AELock:               true,
		AWBLock:              true,
		ExposureCompensation: s.exposure(),
		JPEGOrientation:      s.QuarterTurns * 90,
	}
}

func (s Settings) exposure() *int {
	if !s.HasExposureCompensation {
		return nil
	}
	ev := s.ExposureCompensation
	return &ev
}

func (s Settings) fpsRange() *FPSRange {
	if !s.HasFPSRange {
		return nil
	}
	r := s.FPSRange
	return &r
}
