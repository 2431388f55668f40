// Package device picks the camera.Device implementation for a device name.
package device

import (
	"time"

	"go.uber.org/zap"

	"cam2-shutter/pkg/camera"
	"cam2-shutter/pkg/device/sim"
)

const Sim = "sim"

type Options struct {
	FPS         int
	JPEGQuality int
}

// Open returns the simulated camera for "sim" and a V4L2 camera otherwise.
func Open(name string, opts Options, logger *zap.SugaredLogger) (camera.Device, error) {
	if name == Sim {
		so := sim.DefaultOptions()
		if opts.JPEGQuality > 0 {
			so.JPEGQuality = opts.JPEGQuality
		}
		if opts.FPS > 0 {
			so.FrameInterval = time.Second / time.Duration(opts.FPS)
		}
		return sim.New(so, logger.Named("sim")), nil
	}
	return openV4L2(name, opts, logger.Named("uvc"))
}
