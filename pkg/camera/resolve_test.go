package camera

import (
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"go.viam.com/test"
)

func TestPickNearestSize(t *testing.T) {
	sizes := []Size{{640, 480}, {1280, 720}, {1920, 1080}, {3280, 2464}}

	test.That(t, PickNearestSize(sizes, Size{1280, 720}, DefaultPreviewSize), test.ShouldResemble, Size{1280, 720})
	test.That(t, PickNearestSize(sizes, Size{1300, 700}, DefaultPreviewSize), test.ShouldResemble, Size{1280, 720})
	test.That(t, PickNearestSize(sizes, Size{4000, 3000}, DefaultPreviewSize), test.ShouldResemble, Size{3280, 2464})
	test.That(t, PickNearestSize(sizes, Size{100, 100}, DefaultPreviewSize), test.ShouldResemble, Size{640, 480})
}

func TestPickNearestSizeCost(t *testing.T) {
	// larger candidate: only the overhang counts
	test.That(t, sizeCost(Size{12, 10}, Size{10, 10}), test.ShouldEqual, 20)
	// smaller candidate: both strips plus the missing corner
	test.That(t, sizeCost(Size{8, 8}, Size{10, 10}), test.ShouldEqual, 2*8+2*8+4)
	// wider but shorter: the corner term is clamped at zero
	test.That(t, sizeCost(Size{12, 8}, Size{10, 10}), test.ShouldEqual, 2*8+2*10)
}

func TestPickNearestSizeTiesKeepFirst(t *testing.T) {
	// 12x10 and 10x12 both cost 20 against 10x10
	sizes := []Size{{12, 10}, {10, 12}}
	test.That(t, PickNearestSize(sizes, Size{10, 10}, Size{}), test.ShouldResemble, Size{12, 10})
	sizes = []Size{{10, 12}, {12, 10}}
	test.That(t, PickNearestSize(sizes, Size{10, 10}, Size{}), test.ShouldResemble, Size{10, 12})
}

func TestPickNearestSizeEmpty(t *testing.T) {
	test.That(t, PickNearestSize(nil, Size{10, 10}, DefaultStillSize), test.ShouldResemble, DefaultStillSize)
}

func TestPickFPSRange(t *testing.T) {
	ranges := []FPSRange{{15, 30}, {7, 30}, {30, 30}, {60, 60}}

	r, ok := PickFPSRange(ranges, 30)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, r, test.ShouldResemble, FPSRange{30, 30})

	r, ok = PickFPSRange(ranges, 24)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, r, test.ShouldResemble, FPSRange{15, 30})

	_, ok = PickFPSRange(ranges, 90)
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = PickFPSRange(nil, 30)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestResolve3AModes(t *testing.T) {
	ch := Characteristics{
		AFModes:  []AFMode{AFModeAuto},
		AEModes:  []AEMode{AEModeOff, AEModeOn},
		AWBModes: nil,
	}
	want := Modes{Control: ControlModeUseSceneMode, AF: AFModeContinuousPicture, AE: AEModeOn, AWB: AWBModeDaylight}
	got := Resolve3AModes(ch, want, zaptest.NewLogger(t).Sugar())
	test.That(t, got, test.ShouldResemble, Modes{
		Control: ControlModeUseSceneMode,
		AF:      AFModeOff,
		AE:      AEModeOn,
		AWB:     AWBModeOff,
	})
}

func TestResolveSettings(t *testing.T) {
	ch := Characteristics{
		PreviewSizes:      []Size{{640, 480}, {1280, 720}},
		StillSizes:        []Size{{3280, 2464}},
		AFModes:           []AFMode{AFModeOff, AFModeContinuousPicture},
		AEModes:           []AEMode{AEModeOff, AEModeOn},
		AWBModes:          []AWBMode{AWBModeAuto},
		FPSRanges:         []FPSRange{{15, 30}},
		EVRange:           &EVRange{Lower: -12, Upper: 12},
		SensorOrientation: 270,
	}
	cfg := DefaultConfig()
	cfg.Rotation = RotationSensor

	s, err := ResolveSettings(ch, cfg, zaptest.NewLogger(t).Sugar())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.PreviewSize, test.ShouldResemble, Size{1280, 720})
	test.That(t, s.StillSize, test.ShouldResemble, Size{3280, 2464})
	test.That(t, s.HasFPSRange, test.ShouldBeTrue)
	test.That(t, s.FPSRange, test.ShouldResemble, FPSRange{15, 30})
	test.That(t, s.HasExposureCompensation, test.ShouldBeTrue)
	test.That(t, s.ExposureCompensation, test.ShouldEqual, -1)
	test.That(t, s.QuarterTurns, test.ShouldEqual, 3)
	test.That(t, s.PrecaptureTimeout, test.ShouldEqual, time.Second)
	test.That(t, s.LockTimeout, test.ShouldEqual, 3*time.Second)
	test.That(t, s.Modes.AF, test.ShouldEqual, AFModeContinuousPicture)

	preview := s.PreviewRequest()
	test.That(t, preview.Repeating, test.ShouldBeTrue)
	test.That(t, *preview.ExposureCompensation, test.ShouldEqual, -1)
	test.That(t, *preview.FPSRange, test.ShouldResemble, FPSRange{15, 30})
	test.That(t, s.StillRequest(1).JPEGOrientation, test.ShouldEqual, 270)
	test.That(t, s.StillRequest(1).FPSRange, test.ShouldBeNil)
}

func TestResolveSettingsBareDevice(t *testing.T) {
	s, err := ResolveSettings(Characteristics{EVRange: &EVRange{Lower: 0, Upper: 4}}, Config{
		AFMode: "off", AEMode: "off", AWBMode: "off", ControlMode: "off",
	}, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.PreviewSize, test.ShouldResemble, DefaultPreviewSize)
	test.That(t, s.StillSize, test.ShouldResemble, DefaultStillSize)
	test.That(t, s.HasFPSRange, test.ShouldBeFalse)
	test.That(t, s.ExposureCompensation, test.ShouldEqual, 0)
	test.That(t, s.PreviewRequest().FPSRange, test.ShouldBeNil)
}

func TestConfigValidate(t *testing.T) {
	test.That(t, DefaultConfig().Validate("camera"), test.ShouldBeNil)

	cfg := DefaultConfig()
	cfg.AFMode = "sharpest"
	test.That(t, cfg.Validate("camera"), test.ShouldBeError)

	cfg = DefaultConfig()
	cfg.Rotation = "45"
	test.That(t, cfg.Validate("camera"), test.ShouldBeError)

	cfg = DefaultConfig()
	cfg.StillSize.Width = -1
	err := cfg.Validate("camera")
	test.That(t, err, test.ShouldBeError)
	test.That(t, err.Error(), test.ShouldContainSubstring, "camera")

	cfg = DefaultConfig()
	cfg.PrecaptureTimeout = -5
	test.That(t, cfg.Validate("camera"), test.ShouldBeError)
}

func TestQuarterTurns(t *testing.T) {
	for mode, want := range map[RotationMode]int{"": 0, Rotation0: 0, Rotation90: 1, Rotation180: 2, Rotation270: 3} {
		got, err := mode.QuarterTurns(90)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got, test.ShouldEqual, want)
	}
	got, err := RotationSensor.QuarterTurns(90)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldEqual, 1)
}

func TestParseModes(t *testing.T) {
	m, err := ParseAFMode(" Continuous-Picture ")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m, test.ShouldEqual, AFModeContinuousPicture)
	test.That(t, AEModeOnExternalFlash.String(), test.ShouldEqual, "on-external-flash")
	test.That(t, AWBMode(42).String(), test.ShouldEqual, "unknown(42)")
	_, err = ParseControlMode("manual")
	test.That(t, err, test.ShouldBeError)
}
