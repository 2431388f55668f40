//go:build !linux

package device

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"

	"cam2-shutter/pkg/camera"
)

func openV4L2(path string, _ Options, _ *zap.SugaredLogger) (camera.Device, error) {
	return nil, fmt.Errorf("%s: V4L2 devices are not supported on %s", path, runtime.GOOS)
}
