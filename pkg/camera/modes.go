package camera

import (
	"fmt"
	"strings"
)

// 3A control values. The numeric values follow the camera2 metadata enums so
// that device adapters can pass them through unchanged.

type AFMode int

const (
	AFModeOff AFMode = iota
	AFModeAuto
	AFModeMacro
	AFModeContinuousVideo
	AFModeContinuousPicture
	AFModeEDOF
)

type AEMode int

const (
	AEModeOff AEMode = iota
	AEModeOn
	AEModeOnAutoFlash
	AEModeOnAlwaysFlash
	AEModeOnAutoFlashRedeye
	AEModeOnExternalFlash
)

type AWBMode int

const (
	AWBModeOff AWBMode = iota
	AWBModeAuto
	AWBModeIncandescent
	AWBModeFluorescent
	AWBModeWarmFluorescent
	AWBModeDaylight
	AWBModeCloudyDaylight
	AWBModeTwilight
	AWBModeShade
)

type ControlMode int

const (
	ControlModeOff ControlMode = iota
	ControlModeAuto
	ControlModeUseSceneMode
	ControlModeOffKeepState
)

// AFState is the focus convergence indicator reported in capture results.
type AFState int

const (
	AFStateInactive AFState = iota
	AFStatePassiveScan
	AFStatePassiveFocused
	AFStateActiveScan
	AFStateFocusedLocked
	AFStateNotFocusedLocked
	AFStatePassiveUnfocused
)

// AEState is the exposure convergence indicator reported in capture results.
type AEState int

const (
	AEStateInactive AEState = iota
	AEStateSearching
	AEStateConverged
	AEStateLocked
	AEStateFlashRequired
	AEStatePrecapture
)

type Trigger int

const (
	TriggerIdle Trigger = iota
	TriggerStart
	TriggerCancel
)

var (
	afModeNames = map[AFMode]string{
		AFModeOff:               "off",
		AFModeAuto:              "auto",
		AFModeMacro:             "macro",
		AFModeContinuousVideo:   "continuous-video",
		AFModeContinuousPicture: "continuous-picture",
		AFModeEDOF:              "edof",
	}
	aeModeNames = map[AEMode]string{
		AEModeOff:               "off",
		AEModeOn:                "on",
		AEModeOnAutoFlash:       "on-auto-flash",
		AEModeOnAlwaysFlash:     "on-always-flash",
		AEModeOnAutoFlashRedeye: "on-auto-flash-redeye",
		AEModeOnExternalFlash:   "on-external-flash",
	}
	awbModeNames = map[AWBMode]string{
		AWBModeOff:             "off",
		AWBModeAuto:            "auto",
		AWBModeIncandescent:    "incandescent",
		AWBModeFluorescent:     "fluorescent",
		AWBModeWarmFluorescent: "warm-fluorescent",
		AWBModeDaylight:        "daylight",
		AWBModeCloudyDaylight:  "cloudy-daylight",
		AWBModeTwilight:        "twilight",
		AWBModeShade:           "shade",
	}
	controlModeNames = map[ControlMode]string{
		ControlModeOff:          "off",
		ControlModeAuto:         "auto",
		ControlModeUseSceneMode: "use-scene-mode",
		ControlModeOffKeepState: "off-keep-state",
	}
)

func (m AFMode) String() string      { return name(afModeNames, m) }
func (m AEMode) String() string      { return name(aeModeNames, m) }
func (m AWBMode) String() string     { return name(awbModeNames, m) }
func (m ControlMode) String() string { return name(controlModeNames, m) }

func (m AFMode) MarshalText() ([]byte, error)      { return []byte(m.String()), nil }
func (m AEMode) MarshalText() ([]byte, error)      { return []byte(m.String()), nil }
func (m AWBMode) MarshalText() ([]byte, error)     { return []byte(m.String()), nil }
func (m ControlMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func name[T ~int](names map[T]string, v T) string {
	if s, ok := names[v]; ok {
		return s
	}
	return fmt.Sprintf("unknown(%d)", int(v))
}

func parse[T ~int](names map[T]string, kind, s string) (T, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for v, n := range names {
		if n == s {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown %s mode %q", kind, s)
}

func ParseAFMode(s string) (AFMode, error)   { return parse(afModeNames, "af", s) }
func ParseAEMode(s string) (AEMode, error)   { return parse(aeModeNames, "ae", s) }
func ParseAWBMode(s string) (AWBMode, error) { return parse(awbModeNames, "awb", s) }
func ParseControlMode(s string) (ControlMode, error) {
	return parse(controlModeNames, "control", s)
}

// neverConverges reports AF modes that never report a lock.
func (m AFMode) neverConverges() bool {
	return m == AFModeOff || m == AFModeMacro || m == AFModeEDOF
}

// neverConverges reports AE modes whose state is not worth waiting on.
func (m AEMode) neverConverges() bool {
	return m == AEModeOff || m == AEModeOnExternalFlash
}
