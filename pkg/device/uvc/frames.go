package uvc

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	pionframe "github.com/pion/mediadevices/pkg/frame"

	"cam2-shutter/pkg/camera"
	"cam2-shutter/pkg/frame"
	imageutil "cam2-shutter/pkg/utils/image"
	"cam2-shutter/pkg/yuv"
)

var ErrShortFrame = errors.New("short yuyv frame")

// yuyvFrame wraps a packed YUYV buffer as strided planes. Chroma is read
// from every other line, which turns 4:2:2 into 4:2:0 without a copy.
func yuyvFrame(data []byte, size camera.Size, ts int64) (*frame.RawFrame, error) {
	w, h := size.Width, size.Height
	bpl := w * 2
	if w <= 0 || h <= 0 || len(data) < bpl*h {
		return nil, fmt.Errorf("%w: %d bytes for %s", ErrShortFrame, len(data), size)
	}
	return &frame.RawFrame{
		Width:     w,
		Height:    h,
		Format:    pionframe.FormatYUY2,
		Y:         yuv.Plane{Data: data, RowStride: bpl, PixelStride: 2},
		U:         yuv.Plane{Data: data[1:], RowStride: bpl * 2, PixelStride: 4},
		V:         yuv.Plane{Data: data[3:], RowStride: bpl * 2, PixelStride: 4},
		Timestamp: ts,
	}, nil
}

// encodeStill converts one YUYV still frame to a JPEG turned clockwise by
// orientation degrees.
func encodeStill(data []byte, size camera.Size, orientation, quality int) ([]byte, error) {
	f, err := yuyvFrame(data, size, 0)
	if err != nil {
		return nil, err
	}
	luma, chroma := yuv.PlaneLens(size.Width, size.Height)
	y, u, v := make([]byte, luma), make([]byte, chroma), make([]byte, chroma)
	if err := (yuv.Library{}).PackI420(f.Y, f.U, f.V, size.Width, size.Height, y, u, v); err != nil {
		return nil, err
	}
	img := imageutil.FromI420(y, u, v, size.Width, size.Height)
	return imageutil.EncodeJPEGBytes(imageutil.Rotate(img, orientation/90), quality)
}

// slot is a one-deep frame.Reader: a newer frame replaces one nobody read.
type slot struct {
	mu    sync.Mutex
	f     *frame.RawFrame
	drops int
}

func (s *slot) put(f *frame.RawFrame) {
	s.mu.Lock()
	old := s.f
	s.f = f
	if old != nil {
		s.drops++
	}
	s.mu.Unlock()
	old.Close()
}

func (s *slot) AcquireNextFrame() *frame.RawFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.f
	s.f = nil
	return f
}

func (s *slot) clear() {
	if f := s.AcquireNextFrame(); f != nil {
		f.Close()
	}
}

func (s *slot) dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drops
}

// 驱动在关闭后短时间内可能仍返回 EBUSY
func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "busy") || strings.Contains(s, "ebusy")
}

// controlsFor maps 3A modes onto UVC controls.
func controlsFor(m camera.Modes) map[uint32]int32 {
	ctrls := map[uint32]int32{}
	switch m.AE {
	case camera.AEModeOff:
		ctrls[ctrlExposureAuto] = exposureManual
	default:
		ctrls[ctrlExposureAuto] = exposureAperturePriority
	}
	ctrls[ctrlAutoWhiteBalance] = 0
	if m.AWB == camera.AWBModeAuto {
		ctrls[ctrlAutoWhiteBalance] = 1
	}
	switch m.AF {
	case camera.AFModeContinuousPicture, camera.AFModeContinuousVideo:
		ctrls[ctrlFocusAuto] = 1
	default:
		ctrls[ctrlFocusAuto] = 0
	}
	return ctrls
}

const (
	ctrlExposureAuto     = 0x009a0901
	ctrlFocusAuto        = 0x009a090c
	ctrlAutoWhiteBalance = 0x0098090c

	exposureManual           = 1
	exposureAperturePriority = 3
)
