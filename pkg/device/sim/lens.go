package sim

import "cam2-shutter/pkg/camera"

// lens tracks the simulated 3A loops across results.
type lens struct {
	afMode camera.AFMode
	aeMode camera.AEMode

	af camera.AFState
	ae camera.AEState

	focusLeft    int
	exposureLeft int
}

// advance applies the request's modes and triggers and moves both loops one
// result forward.
func (l *lens) advance(req *camera.CaptureRequest, opts Options) (camera.AFState, camera.AEState) {
	if req.Modes.AF != l.afMode {
		l.afMode, l.af = req.Modes.AF, camera.AFStateInactive
	}
	if req.Modes.AE != l.aeMode {
		l.aeMode, l.ae = req.Modes.AE, camera.AEStateInactive
	}

	l.stepAF(req.AFTrigger, opts)
	l.stepAE(req, opts)
	return l.af, l.ae
}

func (l *lens) stepAF(trigger camera.Trigger, opts Options) {
	if l.afMode == camera.AFModeOff || l.afMode == camera.AFModeEDOF {
		l.af = camera.AFStateInactive
		return
	}
	switch trigger {
	case camera.TriggerStart:
		l.af, l.focusLeft = camera.AFStateActiveScan, opts.FocusFrames
	case camera.TriggerCancel:
		l.af = camera.AFStateInactive
	}

	continuous := l.afMode == camera.AFModeContinuousPicture || l.afMode == camera.AFModeContinuousVideo
	switch l.af {
	case camera.AFStateActiveScan:
		if l.focusLeft <= 0 {
			l.af = camera.AFStateFocusedLocked
		} else {
			l.focusLeft--
		}
	case camera.AFStateInactive:
		if continuous {
			l.af, l.focusLeft = camera.AFStatePassiveScan, opts.FocusFrames
		}
	case camera.AFStatePassiveScan:
		if l.focusLeft <= 0 {
			l.af = camera.AFStatePassiveFocused
		} else {
			l.focusLeft--
		}
	}
}

func (l *lens) stepAE(req *camera.CaptureRequest, opts Options) {
	if l.aeMode == camera.AEModeOff {
		l.ae = camera.AEStateInactive
		return
	}
	if req.AELock {
		l.ae = camera.AEStateLocked
		return
	}
	if req.AEPrecaptureTrigger == camera.TriggerStart {
		l.ae, l.exposureLeft = camera.AEStatePrecapture, opts.ExposureFrames
	}

	switch l.ae {
	case camera.AEStateInactive:
		l.ae, l.exposureLeft = camera.AEStateSearching, opts.ExposureFrames
	case camera.AEStateLocked:
		l.ae = camera.AEStateConverged
	case camera.AEStateSearching, camera.AEStatePrecapture:
		if l.exposureLeft <= 0 {
			l.ae = camera.AEStateConverged
		} else {
			l.exposureLeft--
		}
	}
}
