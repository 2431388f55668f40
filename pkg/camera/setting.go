package camera

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"cam2-shutter/pkg/utils"
)

const (
	DefaultFPS               = 30
	DefaultPrecaptureTimeout = 1000
	DefaultLockTimeout       = 3000
)

// Config is the requested camera setup. Modes are named ("continuous-picture",
// "on", "auto", ...) and resolved against the device when a session starts.
type Config struct {
	AFMode      string       `json:"afMode"`
	AEMode      string       `json:"aeMode"`
	AWBMode     string       `json:"awbMode"`
	ControlMode string       `json:"controlMode"`
	Rotation    RotationMode `json:"rotation"`

	PreviewSize Size `json:"previewSize"`
	StillSize   Size `json:"stillSize"`
	FPS         int  `json:"fps"`

	// timeouts in milliseconds
	PrecaptureTimeout int `json:"precaptureTimeout"`
	LockTimeout       int `json:"lockTimeout"`
}

func DefaultConfig() Config {
	return Config{
		AFMode:            AFModeContinuousPicture.String(),
		AEMode:            AEModeOn.String(),
		AWBMode:           AWBModeAuto.String(),
		ControlMode:       ControlModeAuto.String(),
		Rotation:          Rotation0,
		PreviewSize:       DefaultPreviewSize,
		StillSize:         DefaultStillSize,
		FPS:               DefaultFPS,
		PrecaptureTimeout: DefaultPrecaptureTimeout,
		LockTimeout:       DefaultLockTimeout,
	}
}

// Validate checks the config; path names the config block in errors.
func (c Config) Validate(path string) error {
	if _, err := c.Modes(); err != nil {
		return errors.Wrap(err, path)
	}
	if _, err := c.Rotation.QuarterTurns(0); err != nil {
		return errors.Wrap(err, path)
	}
	if c.PreviewSize.Width < 0 || c.PreviewSize.Height < 0 {
		return errors.Errorf("%s: previewSize cannot be negative", path)
	}
	if c.StillSize.Width < 0 || c.StillSize.Height < 0 {
		return errors.Errorf("%s: stillSize cannot be negative", path)
	}
	if c.FPS < 0 {
		return errors.Errorf("%s: fps cannot be negative", path)
	}
	if c.PrecaptureTimeout < 0 || c.LockTimeout < 0 {
		return errors.Errorf("%s: timeouts cannot be negative", path)
	}
	return nil
}

// Modes parses the requested mode names.
func (c Config) Modes() (Modes, error) {
	var (
		m   Modes
		err error
	)
	if m.Control, err = ParseControlMode(c.ControlMode); err != nil {
		return m, err
	}
	if m.AF, err = ParseAFMode(c.AFMode); err != nil {
		return m, err
	}
	if m.AE, err = ParseAEMode(c.AEMode); err != nil {
		return m, err
	}
	if m.AWB, err = ParseAWBMode(c.AWBMode); err != nil {
		return m, err
	}
	return m, nil
}

// Settings is the session configuration after resolution against the
// device. It does not change while the session is open.
type Settings struct {
	Modes       Modes `json:"modes"`
	PreviewSize Size  `json:"previewSize"`
	StillSize   Size  `json:"stillSize"`

	FPSRange    FPSRange `json:"fpsRange"`
	HasFPSRange bool     `json:"hasFpsRange"`

	ExposureCompensation    int  `json:"exposureCompensation"`
	HasExposureCompensation bool `json:"hasExposureCompensation"`

	QuarterTurns int `json:"quarterTurns"`

	PrecaptureTimeout time.Duration `json:"precaptureTimeout"`
	LockTimeout       time.Duration `json:"lockTimeout"`
}

// ResolveSettings resolves cfg against the device characteristics.
func ResolveSettings(ch Characteristics, cfg Config, logger *zap.SugaredLogger) (Settings, error) {
	want, err := cfg.Modes()
	if err != nil {
		return Settings{}, err
	}
	turns, err := cfg.Rotation.QuarterTurns(ch.SensorOrientation)
	if err != nil {
		return Settings{}, err
	}

	s := Settings{
		Modes:             Resolve3AModes(ch, want, logger),
		PreviewSize:       PickNearestSize(ch.PreviewSizes, orDefault(cfg.PreviewSize, DefaultPreviewSize), DefaultPreviewSize),
		StillSize:         PickNearestSize(ch.StillSizes, orDefault(cfg.StillSize, DefaultStillSize), DefaultStillSize),
		QuarterTurns:      turns,
		PrecaptureTimeout: utils.MsToDuration(orDefaultInt(cfg.PrecaptureTimeout, DefaultPrecaptureTimeout)),
		LockTimeout:       utils.MsToDuration(orDefaultInt(cfg.LockTimeout, DefaultLockTimeout)),
	}
	s.FPSRange, s.HasFPSRange = PickFPSRange(ch.FPSRanges, orDefaultInt(cfg.FPS, DefaultFPS))
	if ch.EVRange != nil {
		s.ExposureCompensation = max(ch.EVRange.Lower, -1)
		s.HasExposureCompensation = true
	}

	return s, nil
}

func orDefault(s, def Size) Size {
	if s.Width == 0 || s.Height == 0 {
		return def
	}
	return s
}

func orDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
