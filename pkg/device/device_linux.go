//go:build linux

package device

import (
	"go.uber.org/zap"

	"cam2-shutter/pkg/camera"
	"cam2-shutter/pkg/device/uvc"
)

func openV4L2(path string, opts Options, logger *zap.SugaredLogger) (camera.Device, error) {
	return uvc.New(uvc.Options{Path: path, FPS: opts.FPS, JPEGQuality: opts.JPEGQuality}, logger), nil
}
