package camera

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

type FPSRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

func (r FPSRange) Contains(fps int) bool {
	return r.Min <= fps && fps <= r.Max
}

type EVRange struct {
	Lower int `json:"lower"`
	Upper int `json:"upper"`
}

var (
	DefaultPreviewSize = Size{Width: 1280, Height: 720}
	DefaultStillSize   = Size{Width: 1920, Height: 1080}
)

// PickNearestSize returns the candidate closest to want. The cost of a
// candidate is the area covered by exactly one of the two rectangles when
// both are anchored at the origin. Ties keep the earliest candidate, and an
// empty list yields def.
func PickNearestSize(sizes []Size, want Size, def Size) Size {
	if len(sizes) == 0 {
		return def
	}
	best, bestCost := sizes[0], sizeCost(sizes[0], want)
	for _, s := range sizes[1:] {
		if c := sizeCost(s, want); c < bestCost {
			best, bestCost = s, c
		}
	}
	return best
}

func sizeCost(s, want Size) int {
	return abs(s.Width-want.Width)*min(s.Height, want.Height) +
		abs(s.Height-want.Height)*min(s.Width, want.Width) +
		max(0, (want.Height-s.Height)*(want.Width-s.Width))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// PickFPSRange prefers the fixed range [fps, fps], then the first range
// containing fps. The second result is false when nothing fits.
func PickFPSRange(ranges []FPSRange, fps int) (FPSRange, bool) {
	if r, ok := lo.Find(ranges, func(r FPSRange) bool { return r.Min == fps && r.Max == fps }); ok {
		return r, true
	}
	return lo.Find(ranges, func(r FPSRange) bool { return r.Contains(fps) })
}

// Modes is the resolved 3A configuration of a session.
type Modes struct {
	Control ControlMode `json:"control"`
	AF      AFMode      `json:"af"`
	AE      AEMode      `json:"ae"`
	AWB     AWBMode     `json:"awb"`
}

func (m Modes) String() string {
	return fmt.Sprintf("control=%s af=%s ae=%s awb=%s", m.Control, m.AF, m.AE, m.AWB)
}

// Resolve3AModes keeps each wanted mode the device advertises and falls back
// to off for the rest. The control mode is taken as requested.
func Resolve3AModes(ch Characteristics, want Modes, logger *zap.SugaredLogger) Modes {
	got := Modes{Control: want.Control, AF: AFModeOff, AE: AEModeOff, AWB: AWBModeOff}
	if lo.Contains(ch.AFModes, want.AF) {
		got.AF = want.AF
	} else {
		logDowngrade(logger, "af", want.AF, got.AF)
	}
	if lo.Contains(ch.AEModes, want.AE) {
		got.AE = want.AE
	} else {
		logDowngrade(logger, "ae", want.AE, got.AE)
	}
	if lo.Contains(ch.AWBModes, want.AWB) {
		got.AWB = want.AWB
	} else {
		logDowngrade(logger, "awb", want.AWB, got.AWB)
	}
	return got
}

func logDowngrade(logger *zap.SugaredLogger, kind string, want, got fmt.Stringer) {
	if logger == nil || want.String() == got.String() {
		return
	}
	logger.Infof("%v", errors.Wrapf(ErrUnsupportedMode, "%s mode %s, using %s", kind, want, got))
}

// RotationMode selects how preview frames and stills are rotated.
type RotationMode string

const (
	Rotation0      RotationMode = "0"
	Rotation90     RotationMode = "90"
	Rotation180    RotationMode = "180"
	Rotation270    RotationMode = "270"
	RotationSensor RotationMode = "sensor"
)

// QuarterTurns converts the mode into clockwise quarter turns. Sensor mode
// follows the sensor orientation in degrees.
func (r RotationMode) QuarterTurns(sensorOrientation int) (int, error) {
	switch r {
	case Rotation0, "":
		return 0, nil
	case Rotation90:
		return 1, nil
	case Rotation180:
		return 2, nil
	case Rotation270:
		return 3, nil
	case RotationSensor:
		return ((sensorOrientation/90)%4 + 4) % 4, nil
	}
	return 0, fmt.Errorf("unknown rotation %q", string(r))
}
