package camera

import (
	"fmt"

	"cam2-shutter/pkg/frame"
)

type EventKind int

const (
	EventOpened EventKind = iota
	EventDisconnected
	EventError
	EventConfigured
	EventConfigureFailed
	EventCaptureProgressed
	EventCaptureCompleted
	EventCaptureFailed
	EventFrameAvailable
	EventStillAvailable
)

var eventNames = map[EventKind]string{
	EventOpened:            "opened",
	EventDisconnected:      "disconnected",
	EventError:             "error",
	EventConfigured:        "configured",
	EventConfigureFailed:   "configure_failed",
	EventCaptureProgressed: "capture_progressed",
	EventCaptureCompleted:  "capture_completed",
	EventCaptureFailed:     "capture_failed",
	EventFrameAvailable:    "frame_available",
	EventStillAvailable:    "still_available",
}

func (k EventKind) String() string {
	if s, ok := eventNames[k]; ok {
		return s
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// CaptureResult is a partial or final metadata snapshot for one request.
// A nil AF or AE field means the device did not report that state.
type CaptureResult struct {
	Request *CaptureRequest
	AF      *AFState
	AE      *AEState
	Partial bool
}

// Event is the single callback type devices deliver. Which fields are set
// depends on Kind.
type Event struct {
	Kind EventKind

	// EventError
	Code int
	Err  error

	// EventCaptureProgressed, EventCaptureCompleted, EventCaptureFailed
	Result *CaptureResult

	// EventFrameAvailable
	Frames frame.Reader

	// EventStillAvailable
	Still []byte
	// Request that produced Still
	StillRequest *CaptureRequest
}

// Handler receives device events. Devices call it from one goroutine at a
// time, in order.
type Handler func(Event)

// AF and AE wrap a state value for a CaptureResult.
func AF(s AFState) *AFState { return &s }
func AE(s AEState) *AEState { return &s }
